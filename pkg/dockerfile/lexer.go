package dockerfile

import (
	"fmt"
	"strings"
)

// Lexer is a byte cursor over normalized Dockerfile text. It tracks line and
// column as it advances and knows how to recognise line continuations.
type Lexer struct {
	source     string
	position   int  // current position in source
	line       int  // current line number
	lineStart  int  // position where current line starts
	escapeChar byte // continuation character (default '\')
}

func newLexer(source string) *Lexer {
	return &Lexer{
		source:     source,
		line:       1,
		escapeChar: '\\',
	}
}

func (l *Lexer) eof() bool { return l.position >= len(l.source) }

// peekChar returns the current byte, or 0 at end of input.
func (l *Lexer) peekChar() byte {
	if l.eof() {
		return 0
	}
	return l.source[l.position]
}

// peekAt returns the byte n positions ahead, or 0 past the end.
func (l *Lexer) peekAt(n int) byte {
	if l.position+n >= len(l.source) {
		return 0
	}
	return l.source[l.position+n]
}

func (l *Lexer) hasPrefix(s string) bool {
	return strings.HasPrefix(l.source[l.position:], s)
}

// readChar consumes and returns the current byte.
func (l *Lexer) readChar() byte {
	c := l.source[l.position]
	l.position++
	if c == '\n' {
		l.line++
		l.lineStart = l.position
	}
	return c
}

// skipTo advances to pos, which must not be behind the cursor.
func (l *Lexer) skipTo(pos int) {
	for l.position < pos && !l.eof() {
		l.readChar()
	}
}

func (l *Lexer) column() int { return l.position - l.lineStart + 1 }

func (l *Lexer) location() SourceLocation {
	return SourceLocation{Line: l.line, Column: l.column(), Offset: l.position, EndLine: l.line}
}

// lastLine is the line of the last consumed byte.
func (l *Lexer) lastLine() int {
	if l.position > 0 && l.source[l.position-1] == '\n' {
		return l.line - 1
	}
	return l.line
}

func (l *Lexer) atLineEnd() bool { return l.eof() || l.source[l.position] == '\n' }

// skipWhitespace skips spaces and tabs.
func (l *Lexer) skipWhitespace() {
	for !l.eof() && isBlank(l.source[l.position]) {
		l.position++
	}
}

func (l *Lexer) readWhile(pred func(byte) bool) string {
	start := l.position
	for !l.eof() && pred(l.source[l.position]) {
		l.position++
	}
	return l.source[start:l.position]
}

// readLine returns the rest of the physical line without consuming its ending.
func (l *Lexer) readLine() string {
	end := l.lineEnd(l.position)
	s := l.source[l.position:end]
	l.position = end
	return s
}

// lineEnd returns the index of the next '\n' at or after pos, or len(source).
func (l *Lexer) lineEnd(pos int) int {
	if i := strings.IndexByte(l.source[pos:], '\n'); i >= 0 {
		return pos + i
	}
	return len(l.source)
}

// continuationEnd reports whether a line continuation starts at pos: the
// escape character, optional spaces or tabs, then a line ending or end of
// input. It returns the position just past the continuation.
func (l *Lexer) continuationEnd(pos int) (int, bool) {
	if pos >= len(l.source) || l.source[pos] != l.escapeChar {
		return 0, false
	}
	i := pos + 1
	for i < len(l.source) && isBlank(l.source[i]) {
		i++
	}
	switch {
	case i == len(l.source):
		return i, true
	case l.source[i] == '\n':
		return i + 1, true
	}
	return 0, false
}

func (l *Lexer) atContinuation() bool {
	_, ok := l.continuationEnd(l.position)
	return ok
}

// errorAt builds a ParseError positioned at pos.
func (l *Lexer) errorAt(pos int, code ErrorCode, expected, format string, args ...interface{}) *ParseError {
	if pos > len(l.source) {
		pos = len(l.source)
	}
	line := 1 + strings.Count(l.source[:pos], "\n")
	lineStart := strings.LastIndexByte(l.source[:pos], '\n') + 1
	return &ParseError{
		Code:     code,
		Offset:   pos,
		Line:     line,
		Column:   pos - lineStart + 1,
		Message:  fmt.Sprintf(format, args...),
		Expected: expected,
	}
}

func (l *Lexer) errorf(code ErrorCode, expected, format string, args ...interface{}) *ParseError {
	return l.errorAt(l.position, code, expected, format, args...)
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordChar(c byte) bool { return isLetter(c) || isDigit(c) || c == '_' }

func isImageChar(c byte) bool {
	return isWordChar(c) || strings.IndexByte(".:/@${}-", c) >= 0
}

func isAliasChar(c byte) bool { return isWordChar(c) || c == '-' }

func isHeredocDelimChar(c byte) bool {
	return isWordChar(c) || c == '-' || c == '.' || c == '/'
}

func isQuote(c byte) bool { return c == '"' || c == '\'' }
