package dockerfile

import (
	"fmt"
	"strings"
)

// String renders the document as Dockerfile text that parses back into an
// equal document.
func (d *Document) String() string {
	escape := d.Escape
	if escape == 0 {
		escape = '\\'
	}
	var b strings.Builder
	for _, s := range d.Steps {
		b.WriteString(s.render(escape))
		b.WriteByte('\n')
	}
	return b.String()
}

func (c *Comment) String() string               { return c.render('\\') }
func (f *FromInstruction) String() string       { return f.render('\\') }
func (a *ArgInstruction) String() string        { return a.render('\\') }
func (l *LabelInstruction) String() string      { return l.render('\\') }
func (c *CopyInstruction) String() string       { return c.render('\\') }
func (r *RunInstruction) String() string        { return r.render('\\') }
func (e *EntrypointInstruction) String() string { return e.render('\\') }
func (c *CmdInstruction) String() string        { return c.render('\\') }
func (e *EnvInstruction) String() string        { return e.render('\\') }
func (m *MiscInstruction) String() string       { return m.render('\\') }

func (c *Comment) render(byte) string { return "#" + c.Text }

func (f *FromInstruction) render(byte) string {
	var b strings.Builder
	b.WriteString("FROM")
	writeFlags(&b, f.Flags)
	b.WriteByte(' ')
	b.WriteString(f.Image)
	if f.Alias != "" {
		b.WriteString(" AS ")
		b.WriteString(f.Alias)
	}
	return b.String()
}

func (a *ArgInstruction) render(byte) string {
	s := "ARG " + a.Name
	if a.Default != nil {
		if a.Default.Quoted || !isBareToken(a.Default.Value) && a.Default.Value != "" {
			s += "=" + quote(a.Default.Value)
		} else {
			s += "=" + a.Default.Value
		}
	}
	return s
}

func (l *LabelInstruction) render(byte) string {
	var b strings.Builder
	b.WriteString("LABEL")
	for _, kv := range l.Pairs {
		b.WriteByte(' ')
		if isBareToken(kv.Key) && !strings.Contains(kv.Key, "=") {
			b.WriteString(kv.Key)
		} else {
			b.WriteString(quote(kv.Key))
		}
		b.WriteByte('=')
		b.WriteString(quote(kv.Value))
	}
	return b.String()
}

func (e *EnvInstruction) render(byte) string {
	var b strings.Builder
	b.WriteString("ENV")
	for _, kv := range e.Pairs {
		b.WriteByte(' ')
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(quote(kv.Value))
	}
	return b.String()
}

func (c *CopyInstruction) render(byte) string {
	var b strings.Builder
	b.WriteString("COPY")
	writeFlags(&b, c.Flags)
	if c.IsHeredoc() {
		for _, h := range c.Heredocs {
			b.WriteByte(' ')
			writeHeredocDecl(&b, h)
		}
		b.WriteByte(' ')
		b.WriteString(renderPath(c.Destination))
		writeHeredocBodies(&b, c.Heredocs)
		return b.String()
	}
	for _, src := range c.Sources {
		b.WriteByte(' ')
		b.WriteString(renderPath(src))
	}
	b.WriteByte(' ')
	b.WriteString(renderPath(c.Destination))
	return b.String()
}

func (r *RunInstruction) render(escape byte) string {
	var b strings.Builder
	b.WriteString("RUN")
	writeFlags(&b, r.Flags)
	b.WriteByte(' ')
	writeCommand(&b, r.Command, escape)
	return b.String()
}

func (e *EntrypointInstruction) render(escape byte) string {
	var b strings.Builder
	b.WriteString("ENTRYPOINT ")
	writeCommand(&b, e.Command, escape)
	return b.String()
}

func (c *CmdInstruction) render(escape byte) string {
	var b strings.Builder
	b.WriteString("CMD ")
	writeCommand(&b, c.Command, escape)
	return b.String()
}

func (m *MiscInstruction) render(escape byte) string {
	var b strings.Builder
	b.WriteString(m.Instruction)
	if len(m.Arguments.Components) > 0 {
		b.WriteByte(' ')
		writeBreakable(&b, m.Arguments, escape)
	}
	writeHeredocBodies(&b, m.Heredocs)
	return b.String()
}

func writeFlags(b *strings.Builder, flags []Flag) {
	for _, f := range flags {
		b.WriteString(" --")
		b.WriteString(f.Name)
		if f.Value != "" {
			b.WriteByte('=')
			b.WriteString(f.Value)
		}
	}
}

func writeCommand(b *strings.Builder, c Command, escape byte) {
	switch c.Form {
	case FormExec:
		b.WriteByte('[')
		for i, arg := range c.Exec {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(arg))
		}
		b.WriteByte(']')
	case FormHeredoc:
		writeBreakable(b, c.Shell, escape)
		writeHeredocBodies(b, c.Heredocs)
	default:
		writeBreakable(b, c.Shell, escape)
	}
}

// writeBreakable puts each component back on its own physical line, joining
// text lines with a continuation.
func writeBreakable(b *strings.Builder, s BreakableString, escape byte) {
	for i, c := range s.Components {
		if i > 0 {
			if !s.Components[i-1].Comment {
				b.WriteByte(escape)
			}
			b.WriteByte('\n')
		}
		b.WriteString(c.Text)
	}
}

func writeHeredocDecl(b *strings.Builder, h Heredoc) {
	b.WriteString("<<")
	if h.Quoted {
		b.WriteByte('"')
		b.WriteString(h.Delimiter)
		b.WriteByte('"')
		return
	}
	b.WriteString(h.Delimiter)
}

func writeHeredocBodies(b *strings.Builder, docs []Heredoc) {
	for _, h := range docs {
		b.WriteByte('\n')
		b.WriteString(h.Body)
		b.WriteString(h.Delimiter)
	}
}

func renderPath(p string) string {
	if isBareToken(p) && !strings.HasPrefix(p, "--") && !strings.HasPrefix(p, "<<") && !strings.HasPrefix(p, "[") {
		return p
	}
	return quote(p)
}

// isBareToken reports whether s survives as an unquoted token.
func isBareToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c == 0x7f || isQuote(c) || c == '\\' || c == '`' {
			return false
		}
	}
	return true
}

// quote renders s as a double-quoted literal using the escapes understood by
// the literal reader.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}
