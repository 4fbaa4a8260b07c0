package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Check failed (conformance mismatch, migration statement rejected)
	ExitCommandError = 2 // Command error (bad config, unknown group, unreadable manifests)
)

// Error codes reported in output. Manifest load errors use the
// manifest.ErrCode* values (E001-E011).
const (
	ErrCodeConfig      = "E020" // Configuration invalid or unreadable
	ErrCodeNotFound    = "E021" // Unknown table or group
	ErrCodeConformance = "E022" // Predicate and expression disagree
	ErrCodePlan        = "E023" // Manifest step cannot be planned
	ErrCodeLedger      = "E024" // Ledger cannot be opened or read
	ErrCodeConnect     = "E025" // ClickHouse connection failed
	ErrCodeMigrate     = "E026" // Statement execution failed
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// Reported is set when a formatter already wrote the error to the
	// command output.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// WasReported reports whether err was already written by OutputFormatter.Fail.
func WasReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// GetExitCode extracts the exit code from err.
// Returns ExitFailure if err is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool {
	return f.Format == "json"
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Emit writes data. In text mode text renders it; in JSON mode data is
// wrapped in an "ok" response.
func (f *OutputFormatter) Emit(data any, text func(w io.Writer)) error {
	if f.isJSON() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Fail writes an error response and returns an ExitError with exitCode.
// data, if non-nil, is included in the JSON response alongside the error.
func (f *OutputFormatter) Fail(exitCode int, code, message string, data, details any) error {
	if f.isJSON() {
		if err := f.encode(CLIResponse{
			Status: "error",
			Data:   data,
			Error:  &CLIError{Code: code, Message: message, Details: details},
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
		if f.Verbose && details != nil {
			fmt.Fprintf(f.Writer, "Details: %v\n", details)
		}
	}
	return &ExitError{Code: exitCode, Message: fmt.Sprintf("%s: %s", code, message), Reported: true}
}

// VerboseLog writes a diagnostic line when verbose mode is on.
// JSON output is never interleaved: diagnostics go to ErrWriter.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
