package dockerfile

import "strings"

// BreakableComponent is one piece of a spliced instruction body: either text
// from a physical line or a comment line embedded in a continuation.
type BreakableComponent struct {
	Text    string `json:"text"`
	Comment bool   `json:"comment,omitempty"`
}

// BreakableString is instruction content that may span several physical
// lines joined by continuations.
type BreakableString struct {
	Components []BreakableComponent `json:"components"`
}

// NewBreakableString returns a single-line BreakableString.
func NewBreakableString(text string) BreakableString {
	if text == "" {
		return BreakableString{}
	}
	return BreakableString{Components: []BreakableComponent{{Text: text}}}
}

// String joins the text components; embedded comments are left out and no
// separator is inserted where lines were spliced.
func (b BreakableString) String() string {
	var sb strings.Builder
	for _, c := range b.Components {
		if !c.Comment {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}

// Raw is like String but keeps embedded comments, each on its own line.
func (b BreakableString) Raw() string {
	var sb strings.Builder
	for i, c := range b.Components {
		if c.Comment {
			if i > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(c.Text)
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// Comments returns the embedded comment lines, markers included.
func (b BreakableString) Comments() []string {
	var out []string
	for _, c := range b.Components {
		if c.Comment {
			out = append(out, c.Text)
		}
	}
	return out
}

// IsEmpty reports whether there is no text besides whitespace.
func (b BreakableString) IsEmpty() bool { return strings.TrimSpace(b.String()) == "" }

func (b *BreakableString) appendText(s string) {
	if s != "" {
		b.Components = append(b.Components, BreakableComponent{Text: s})
	}
}

func (b *BreakableString) appendComment(s string) {
	b.Components = append(b.Components, BreakableComponent{Text: s, Comment: true})
}

type spliceState int

const (
	stateContent spliceState = iota
	stateContinuation
	stateCommentLine
)

type lineClass int

const (
	lineContent lineClass = iota
	lineBlank
	lineComment
)

// classifyLine looks at the physical line starting at the cursor, which must
// follow a continuation.
func (l *Lexer) classifyLine() lineClass {
	i := l.position
	for i < len(l.source) && isBlank(l.source[i]) {
		i++
	}
	switch {
	case i == len(l.source) || l.source[i] == '\n':
		return lineBlank
	case l.source[i] == '#':
		return lineComment
	}
	return lineContent
}

// skipLine consumes the rest of the physical line and its ending.
func (l *Lexer) skipLine() {
	l.position = l.lineEnd(l.position)
	if !l.eof() {
		l.readChar()
	}
}

// readBreakable consumes content up to the first line ending that is not
// escaped, leaving that line ending unconsumed. Continuations are elided
// without inserting anything; blank lines after a continuation are skipped
// and comment lines after a continuation are kept as comment components.
func (l *Lexer) readBreakable() BreakableString {
	var out BreakableString
	var seg strings.Builder
	state := stateContent
	for {
		switch state {
		case stateContent:
			if l.atLineEnd() {
				out.appendText(seg.String())
				return out
			}
			if end, ok := l.continuationEnd(l.position); ok {
				out.appendText(seg.String())
				seg.Reset()
				l.skipTo(end)
				state = stateContinuation
				continue
			}
			seg.WriteByte(l.readChar())
		case stateContinuation:
			if l.eof() {
				return out
			}
			switch l.classifyLine() {
			case lineBlank:
				l.skipLine()
			case lineComment:
				state = stateCommentLine
			default:
				state = stateContent
			}
		case stateCommentLine:
			l.skipWhitespace()
			out.appendComment(l.readLine())
			if !l.eof() {
				l.readChar()
			}
			state = stateContinuation
		}
	}
}

// skipBreakableSpace skips spaces, tabs and continuations, together with the
// blank and comment lines a continuation may be followed by. It stops before
// an unescaped line ending and reports whether anything was consumed.
func (l *Lexer) skipBreakableSpace() bool {
	start := l.position
	for !l.eof() {
		c := l.source[l.position]
		if isBlank(c) {
			l.position++
			continue
		}
		end, ok := l.continuationEnd(l.position)
		if !ok {
			break
		}
		l.skipTo(end)
		l.skipContinuedLines()
	}
	return l.position > start
}

func (l *Lexer) skipContinuedLines() {
	for !l.eof() {
		if l.classifyLine() == lineContent {
			return
		}
		l.skipLine()
	}
}

// readToken consumes a bare token: everything up to whitespace, a line
// ending or a byte matched by stop. A continuation inside a token splices
// the next line onto it.
func (l *Lexer) readToken(stop func(byte) bool) string {
	var b strings.Builder
	for !l.eof() {
		c := l.source[l.position]
		if isBlank(c) || c == '\n' || (stop != nil && stop(c)) {
			break
		}
		if end, ok := l.continuationEnd(l.position); ok {
			l.skipTo(end)
			l.skipContinuedLines()
			continue
		}
		b.WriteByte(l.readChar())
	}
	return b.String()
}
