// Package chexec executes schema-change statements against ClickHouse over
// the native protocol.
package chexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"
)

// DefaultDialTimeout applies when Config.DialTimeout is zero.
const DefaultDialTimeout = 10 * time.Second

// Config holds connection settings.
type Config struct {
	Address     string
	Database    string
	User        string
	Password    string
	DialTimeout time.Duration
}

// Client is a connected executor.
type Client struct {
	conn *ch.Client
}

func options(cfg Config) ch.Options {
	return ch.Options{
		Address:     cfg.Address,
		Database:    cfg.Database,
		User:        cfg.User,
		Password:    cfg.Password,
		DialTimeout: orDefault(cfg.DialTimeout, DefaultDialTimeout),
		ClientName:  "propgroups",
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Dial connects to the server described by cfg.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	conn, err := ch.Dial(ctx, options(cfg))
	if err != nil {
		return nil, fmt.Errorf("dial clickhouse %s: %w", cfg.Address, err)
	}
	slog.Debug("connected to clickhouse", "address", cfg.Address, "database", cfg.Database)
	return &Client{conn: conn}, nil
}

// Exec sends one statement and waits for it to finish.
func (c *Client) Exec(ctx context.Context, statement string) error {
	if err := c.conn.Do(ctx, ch.Query{Body: statement}); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Columns returns the column names of table, in position order.
// table may be qualified as db.table; otherwise the connection's database
// is used.
func (c *Client) Columns(ctx context.Context, table string) ([]string, error) {
	db, name := "currentDatabase()", quoteString(table)
	if before, after, ok := strings.Cut(table, "."); ok {
		db, name = quoteString(before), quoteString(after)
	}

	var (
		col   proto.ColStr
		names []string
	)
	err := c.conn.Do(ctx, ch.Query{
		Body: fmt.Sprintf(
			"SELECT name FROM system.columns WHERE database = %s AND table = %s ORDER BY position",
			db, name),
		Result: proto.Results{{Name: "name", Data: &col}},
		OnResult: func(_ context.Context, _ proto.Block) error {
			for i := 0; i < col.Rows(); i++ {
				names = append(names, col.Row(i))
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	return names, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

var literalReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteString(s string) string {
	return "'" + literalReplacer.Replace(s) + "'"
}
