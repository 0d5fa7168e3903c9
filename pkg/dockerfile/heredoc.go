package dockerfile

import "strings"

// readHeredocDecl consumes a <<DELIM declaration at the cursor. Whitespace
// may separate the marker from the delimiter, and the delimiter may be
// wrapped in matching quotes.
func (l *Lexer) readHeredocDecl() (Heredoc, error) {
	l.position += 2 // <<
	l.skipWhitespace()
	var quote byte
	if isQuote(l.peekChar()) {
		quote = l.readChar()
	}
	name := l.readWhile(isHeredocDelimChar)
	if name == "" {
		return Heredoc{}, l.errorf(MalformedInstruction, "heredoc delimiter", "missing heredoc delimiter")
	}
	if quote != 0 {
		if l.peekChar() != quote {
			return Heredoc{}, l.errorf(MalformedInstruction, "closing "+string(quote), "unterminated heredoc delimiter")
		}
		l.readChar()
	}
	return Heredoc{Delimiter: name, Quoted: quote != 0}, nil
}

// readHeredocBodies consumes the line ending that closes a declaration line
// at decl and then one body per heredoc, in order. Each body runs until a
// line exactly equal to its delimiter; the terminator is not part of it.
func (l *Lexer) readHeredocBodies(docs []Heredoc, decl int) error {
	if l.eof() {
		return l.errorAt(decl, UnterminatedHeredoc, "terminator "+docs[0].Delimiter, "heredoc %s has no body", docs[0].Delimiter)
	}
	if l.peekChar() != '\n' {
		return l.errorf(MalformedInstruction, "end of line", "unexpected content after heredoc declaration")
	}
	l.readChar()
	for i := range docs {
		if err := l.readHeredocBody(&docs[i], decl); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lexer) readHeredocBody(h *Heredoc, decl int) error {
	var body strings.Builder
	for {
		if l.eof() {
			return l.errorAt(decl, UnterminatedHeredoc, "terminator "+h.Delimiter, "heredoc %s is never terminated", h.Delimiter)
		}
		end := l.lineEnd(l.position)
		line := l.source[l.position:end]
		if line == h.Delimiter {
			l.position = end
			if !l.eof() {
				l.readChar()
			}
			h.Body = body.String()
			return nil
		}
		if end == len(l.source) {
			return l.errorAt(decl, UnterminatedHeredoc, "terminator "+h.Delimiter, "heredoc %s is never terminated", h.Delimiter)
		}
		body.WriteString(line)
		body.WriteByte('\n')
		l.position = end
		l.readChar()
	}
}

// findHeredocs returns the positions of the heredoc declarations on the
// logical line at the cursor. It follows continuations, skipping the blank
// and comment lines the splicer skips. Markers inside quotes, markers glued
// to a preceding word (as in $((1<<2))) and here-strings are ignored, and a
// delimiter must start with a letter, '_' or a quote.
func (l *Lexer) findHeredocs() []int {
	var found []int
	var quote byte
	pos := l.position
	for {
		end := l.lineEnd(pos)
		line := l.source[pos:end]
		continued := false
		if t := strings.TrimRight(line, " \t"); t != "" && t[len(t)-1] == l.escapeChar {
			line, continued = t[:len(t)-1], true
		}
		found, quote = scanHeredocMarkers(line, pos, quote, found)
		if !continued || end == len(l.source) {
			return found
		}
		if pos = l.nextContentLine(end + 1); pos == len(l.source) {
			return found
		}
	}
}

// nextContentLine returns the start of the first line at or after pos that
// is neither blank nor a comment, or len(source).
func (l *Lexer) nextContentLine(pos int) int {
	for pos < len(l.source) {
		i := pos
		for i < len(l.source) && isBlank(l.source[i]) {
			i++
		}
		switch {
		case i == len(l.source):
			return i
		case l.source[i] == '\n':
			pos = i + 1
		case l.source[i] == '#':
			end := l.lineEnd(i)
			if end == len(l.source) {
				return end
			}
			pos = end + 1
		default:
			return pos
		}
	}
	return pos
}

// scanHeredocMarkers appends the offsets of heredoc markers in line, which
// starts at offset start, to found. quote is the quoting state carried over
// from the previous physical line of the same logical line.
func scanHeredocMarkers(line string, start int, quote byte, found []int) ([]int, byte) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
			}
		case quote == '"':
			if c == '\\' {
				i++
			} else if c == '"' {
				quote = 0
			}
		case c == '\\':
			i++
		case isQuote(c):
			quote = c
		case c == '<' && strings.HasPrefix(line[i:], "<<"):
			if i > 0 && !isBlank(line[i-1]) {
				i++
				continue
			}
			j := i + 2
			for j < len(line) && isBlank(line[j]) {
				j++
			}
			if isHeredocStart(line[j:]) {
				found = append(found, start+i)
			}
			i = j - 1
		}
	}
	return found, quote
}

// isHeredocStart reports whether s begins like a heredoc delimiter rather
// than an operand such as the 2 in $(( 1 << 2 )).
func isHeredocStart(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		return len(s) > 1 && (isLetter(s[1]) || s[1] == '_')
	}
	return isLetter(s[0]) || s[0] == '_' || isQuote(s[0])
}
