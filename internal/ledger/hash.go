package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// DomainStatement separates statement IDs from any other hash this
// database might hold. The version suffix allows changing the algorithm.
const DomainStatement = "propgroups/statement/v1"

// StatementID returns the content-addressed identity of the ordinal-th
// statement of a migration.
//
// Format: SHA256(domain 0x00 len(migration) migration ordinal statement),
// with lengths and the ordinal as big-endian uint64. The statement bytes are
// hashed as written: ClickHouse compares string literals byte for byte, so
// canonically equivalent statements are still different statements.
func StatementID(migration string, ordinal int, statement string) string {
	h := sha256.New()
	h.Write([]byte(DomainStatement))
	h.Write([]byte{0x00})

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(migration)))
	h.Write(buf[:])
	h.Write([]byte(migration))

	binary.BigEndian.PutUint64(buf[:], uint64(ordinal))
	h.Write(buf[:])

	h.Write([]byte(statement))
	return hex.EncodeToString(h.Sum(nil))
}
