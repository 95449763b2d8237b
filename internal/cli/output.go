package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/types"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The ledger rejected the operation
	ExitCommandError = 2 // Bad flags, missing deployment, unreachable store
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ledgerError maps a ledger failure to an exit code. Rejections are the
// ledger doing its job; everything else is an environment problem.
func ledgerError(message string, err error) *ExitError {
	if fundme.IsRejection(err) {
		return WrapExitError(ExitFailure, message, err)
	}
	return WrapExitError(ExitCommandError, message, err)
}

// languageTag drives number grouping in text output.
var languageTag = language.English

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
	p      *message.Printer
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format: opts.Format,
		Writer: w,
		p:      message.NewPrinter(languageTag),
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// Result prints data as JSON, or calls text for the human form.
func (f *OutputFormatter) Result(data any, text func(p *message.Printer, w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.p, f.Writer)
	return nil
}

// money renders a USD value with thousands grouping ("$2,000.00").
func money(p *message.Printer, u types.USD) string {
	v, err := strconv.ParseFloat(u.Dollars(), 64)
	if err != nil {
		return u.Display()
	}
	if v < 0 {
		return p.Sprintf("-$%.2f", -v)
	}
	return p.Sprintf("$%.2f", v)
}
