// Package migrate applies planned property group migrations.
//
// A Runner walks the planned statements in order and sends each one to an
// Executor. Every statement that succeeds is recorded in the ledger, so a
// second run skips it. The first failure stops the run.
//
// A run is recorded in the ledger with a UUIDv7 run ID, its start and finish
// times, and the applied/skipped counts. Runs that fail are recorded with
// the error text.
//
// Dry runs use WriterExecutor, which prints statements instead of executing
// them and records nothing.
package migrate
