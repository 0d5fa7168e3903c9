// Package errors classifies failures of the command line tool and maps them
// onto process exit codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/shmocker/dfparse/pkg/dockerfile"
)

// ErrorCategory is the broad class of a failure.
type ErrorCategory string

const (
	CategoryUnknown ErrorCategory = "unknown"
	CategoryUsage   ErrorCategory = "usage"
	CategoryConfig  ErrorCategory = "config"
	CategoryIO      ErrorCategory = "io"
	CategoryParse   ErrorCategory = "parse"
	CategoryLint    ErrorCategory = "lint"
)

// Exit codes returned by dfparse.
const (
	ExitOK     = 0
	ExitLint   = 1
	ExitParse  = 2
	ExitIO     = 3
	ExitConfig = 4
	ExitUsage  = 64
)

// ErrLintFailed is returned when lint findings exceed the configured
// tolerance.
var ErrLintFailed = stderrors.New("lint failed")

// ExitError carries an explicit exit code together with a hint for the user.
type ExitError struct {
	Err  error
	Code int
	Hint string
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// WithExitCode wraps err so that ExitCode returns code.
func WithExitCode(err error, code int, hint string) error {
	if err == nil {
		return nil
	}
	return &ExitError{Err: err, Code: code, Hint: hint}
}

// Usage marks err as a command line usage error.
func Usage(format string, args ...interface{}) error {
	return &ExitError{Err: fmt.Errorf(format, args...), Code: ExitUsage, Hint: "see --help"}
}

// Classify returns the category of err.
func Classify(err error) ErrorCategory {
	var exit *ExitError
	if stderrors.As(err, &exit) {
		for cat, code := range exitCodes {
			if code == exit.Code {
				return cat
			}
		}
	}

	var parseErr *dockerfile.ParseError
	var pathErr *os.PathError
	var cfgErr viper.ConfigParseError
	switch {
	case err == nil:
		return CategoryUnknown
	case stderrors.Is(err, ErrLintFailed):
		return CategoryLint
	case stderrors.As(err, &parseErr):
		return CategoryParse
	case stderrors.As(err, &cfgErr):
		return CategoryConfig
	case stderrors.As(err, &pathErr):
		return CategoryIO
	}
	return CategoryUnknown
}

var exitCodes = map[ErrorCategory]int{
	CategoryUsage:  ExitUsage,
	CategoryConfig: ExitConfig,
	CategoryIO:     ExitIO,
	CategoryParse:  ExitParse,
	CategoryLint:   ExitLint,
}

// ExitCode returns the process exit code for err. Unclassified errors exit
// with ExitLint, the generic failure code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exit *ExitError
	if stderrors.As(err, &exit) {
		return exit.Code
	}
	if code, ok := exitCodes[Classify(err)]; ok {
		return code
	}
	return ExitLint
}

// Hint returns the hint attached with WithExitCode, if any.
func Hint(err error) string {
	var exit *ExitError
	if stderrors.As(err, &exit) {
		return exit.Hint
	}
	return ""
}
