package dockerfile

import (
	"errors"
	"fmt"
	"strings"
)

// MaxDocumentSize is the default upper bound on input accepted by Parser.
const MaxDocumentSize = 1 << 20

// ErrorCode classifies a ParseError.
type ErrorCode int

const (
	UnterminatedString ErrorCode = iota + 1
	InvalidEscape
	InvalidCharacter
	UnterminatedHeredoc
	MalformedInstruction
	UnknownArrayElement
	UnexpectedEndOfInput
	InputTooLarge
)

// String returns a human readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case UnterminatedString:
		return "unterminated string"
	case InvalidEscape:
		return "invalid escape"
	case InvalidCharacter:
		return "invalid character"
	case UnterminatedHeredoc:
		return "unterminated heredoc"
	case MalformedInstruction:
		return "malformed instruction"
	case UnknownArrayElement:
		return "unknown array element"
	case UnexpectedEndOfInput:
		return "unexpected end of input"
	case InputTooLarge:
		return "input too large"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Sentinel errors matched by errors.Is against a *ParseError of the same code.
var (
	ErrUnterminatedString   = errors.New("unterminated string")
	ErrInvalidEscape        = errors.New("invalid escape")
	ErrInvalidCharacter     = errors.New("invalid character")
	ErrUnterminatedHeredoc  = errors.New("unterminated heredoc")
	ErrMalformedInstruction = errors.New("malformed instruction")
	ErrUnknownArrayElement  = errors.New("unknown array element")
	ErrUnexpectedEOF        = errors.New("unexpected end of input")
	ErrInputTooLarge        = errors.New("input too large")
)

var sentinels = map[ErrorCode]error{
	UnterminatedString:   ErrUnterminatedString,
	InvalidEscape:        ErrInvalidEscape,
	InvalidCharacter:     ErrInvalidCharacter,
	UnterminatedHeredoc:  ErrUnterminatedHeredoc,
	MalformedInstruction: ErrMalformedInstruction,
	UnknownArrayElement:  ErrUnknownArrayElement,
	UnexpectedEndOfInput: ErrUnexpectedEOF,
	InputTooLarge:        ErrInputTooLarge,
}

// ParseError describes why a document could not be parsed. Positions refer to
// the input after line ending normalization.
type ParseError struct {
	Code ErrorCode `json:"code"`

	// Offset is the 0-based byte offset of the failure
	Offset int `json:"offset"`

	// Line and Column are 1-based; Column counts bytes
	Line   int `json:"line"`
	Column int `json:"column"`

	// Instruction is the keyword being parsed, if any
	Instruction string `json:"instruction,omitempty"`

	Message string `json:"message"`

	// Expected describes what the parser was looking for
	Expected string `json:"expected,omitempty"`
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "line %d, column %d: ", e.Line, e.Column)
	if e.Instruction != "" {
		b.WriteString(e.Instruction)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Expected != "" {
		fmt.Fprintf(&b, " (expected %s)", e.Expected)
	}
	return b.String()
}

// Is reports whether target is the sentinel for e's code.
func (e *ParseError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

// AsParseError unwraps err into a *ParseError.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
