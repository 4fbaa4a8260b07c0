package migrate

import (
	"context"
	"fmt"
	"io"
)

// Executor runs one schema-change statement.
type Executor interface {
	Exec(ctx context.Context, statement string) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, statement string) error

func (f ExecutorFunc) Exec(ctx context.Context, statement string) error {
	return f(ctx, statement)
}

// WriterExecutor writes each statement to W terminated by ";\n".
type WriterExecutor struct {
	W io.Writer
}

func (e WriterExecutor) Exec(ctx context.Context, statement string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(e.W, "%s;\n", statement)
	return err
}
