package dockerfile

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// readQuoted consumes a single- or double-quoted literal starting at the
// cursor and returns its decoded value. Both quote styles share one escape
// table; an escaped line ending is dropped and an unknown escape yields the
// escaped character itself.
func (l *Lexer) readQuoted() (string, error) {
	open := l.position
	quote := l.readChar()
	var b strings.Builder
	for {
		if l.eof() {
			return "", l.errorAt(open, UnterminatedString, "closing "+string(quote), "unterminated string literal")
		}
		c := l.source[l.position]
		switch {
		case c == quote:
			l.readChar()
			return b.String(), nil
		case c == '\n':
			return "", l.errorAt(open, UnterminatedString, "closing "+string(quote), "line ends inside string literal")
		case c == 0x00 || c == 0x1f:
			return "", l.errorf(InvalidCharacter, "", "character %U is not allowed in a string literal", rune(c))
		case c == '\\':
			if err := l.readEscape(&b, quote, open); err != nil {
				return "", err
			}
		default:
			b.WriteByte(l.readChar())
		}
	}
}

func (l *Lexer) readEscape(b *strings.Builder, quote byte, open int) error {
	start := l.position
	l.readChar()
	if l.eof() {
		return l.errorAt(open, UnterminatedString, "closing "+string(quote), "unterminated string literal")
	}
	c := l.readChar()
	switch c {
	case 'b':
		b.WriteByte('\b')
	case 't':
		b.WriteByte('\t')
	case 'n':
		b.WriteByte('\n')
	case 'f':
		b.WriteByte('\f')
	case 'r':
		b.WriteByte('\r')
	case '"', '\\', '\'':
		b.WriteByte(c)
	case '\n':
		// escaped line ending: dropped
	case 'u':
		r, err := l.readHexRune(start, 4)
		if err != nil {
			return err
		}
		if utf16.IsSurrogate(r) {
			r, err = l.readLowSurrogate(start, r)
			if err != nil {
				return err
			}
		}
		b.WriteRune(r)
	case 'U':
		r, err := l.readHexRune(start, 8)
		if err != nil {
			return err
		}
		if r < 0 || r > utf8.MaxRune || utf16.IsSurrogate(r) {
			return l.errorAt(start, InvalidEscape, "a valid code point", "escape \\U%08X is not a valid code point", r)
		}
		b.WriteRune(r)
	default:
		// lenient: keep the escaped character as is
		l.position--
		_, size := utf8.DecodeRuneInString(l.source[l.position:])
		b.WriteString(l.source[l.position : l.position+size])
		l.position += size
	}
	return nil
}

func (l *Lexer) readHexRune(start, digits int) (rune, error) {
	end := l.position + digits
	if end > len(l.source) {
		end = len(l.source)
	}
	hex := l.source[l.position:end]
	if len(hex) != digits {
		return 0, l.errorAt(start, InvalidEscape, strconv.Itoa(digits)+" hex digits", "incomplete unicode escape")
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, l.errorAt(start, InvalidEscape, strconv.Itoa(digits)+" hex digits", "invalid unicode escape %q", hex)
	}
	l.position = end
	return rune(v), nil
}

// readLowSurrogate completes a \uD800-\uDBFF escape with the low half that
// must follow it.
func (l *Lexer) readLowSurrogate(start int, hi rune) (rune, error) {
	if hi < 0xd800 || hi > 0xdbff || !l.hasPrefix(`\u`) {
		return 0, l.errorAt(start, InvalidEscape, "a valid code point", "unpaired surrogate \\u%04X", hi)
	}
	l.position += 2
	lo, err := l.readHexRune(l.position-2, 4)
	if err != nil {
		return 0, err
	}
	r := utf16.DecodeRune(hi, lo)
	if r == utf8.RuneError {
		return 0, l.errorAt(start, InvalidEscape, "a valid code point", "invalid surrogate pair \\u%04X\\u%04X", hi, lo)
	}
	return r, nil
}

// readStringArray consumes an exec-form array such as ["a", "b",]. Elements
// must be quoted literals; whitespace and line continuations may appear
// between tokens.
func (l *Lexer) readStringArray() ([]string, error) {
	l.readChar() // [
	out := []string{}
	wantElement := true
	for {
		l.skipBreakableSpace()
		if l.eof() {
			return nil, l.errorf(UnexpectedEndOfInput, "']'", "unterminated array")
		}
		c := l.source[l.position]
		switch {
		case c == ']':
			l.readChar()
			return out, nil
		case isQuote(c) && wantElement:
			s, err := l.readQuoted()
			if err != nil {
				return nil, err
			}
			out = append(out, s)
			wantElement = false
		case c == ',' && !wantElement:
			l.readChar()
			wantElement = true
		case c == '\n':
			return nil, l.errorf(MalformedInstruction, "']'", "unterminated array")
		case wantElement:
			return nil, l.errorf(UnknownArrayElement, "quoted string", "array elements must be quoted strings")
		default:
			return nil, l.errorf(MalformedInstruction, "',' or ']'", "unexpected %q in array", c)
		}
	}
}
