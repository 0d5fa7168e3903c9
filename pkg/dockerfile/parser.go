package dockerfile

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// ParserImpl implements the Parser interface. It holds no per-document state
// and may be shared between goroutines.
type ParserImpl struct {
	maxSize int64
}

// Option configures a ParserImpl.
type Option func(*ParserImpl)

// WithMaxSize limits the accepted input size in bytes. Zero or a negative
// value disables the limit.
func WithMaxSize(n int64) Option {
	return func(p *ParserImpl) { p.maxSize = n }
}

// New creates a new Dockerfile parser.
func New(opts ...Option) Parser {
	p := &ParserImpl{maxSize: MaxDocumentSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses a Dockerfile from the given reader.
func (p *ParserImpl) Parse(reader io.Reader) (*Document, error) {
	if p.maxSize > 0 {
		reader = io.LimitReader(reader, p.maxSize+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read Dockerfile")
	}
	return p.ParseBytes(content)
}

// ParseFile parses a Dockerfile from the specified file path.
func (p *ParserImpl) ParseFile(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file %s", path)
	}
	defer file.Close()

	doc, err := p.Parse(file)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return doc, nil
}

// ParseBytes parses a Dockerfile from byte content.
func (p *ParserImpl) ParseBytes(content []byte) (*Document, error) {
	if p.maxSize > 0 && int64(len(content)) > p.maxSize {
		return nil, &ParseError{
			Code:    InputTooLarge,
			Offset:  int(p.maxSize),
			Line:    1 + bytes.Count(content[:p.maxSize], []byte{'\n'}),
			Column:  1,
			Message: "Dockerfile exceeds the maximum size of " + byteSize(p.maxSize),
		}
	}
	return Parse(string(content))
}

// Parse parses Dockerfile text without a size limit. Either the whole text
// parses and a Document is returned, or a *ParseError is.
func Parse(text string) (*Document, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	doc := &Document{
		Steps:  []Step{},
		Escape: '\\',
		Digest: digest.FromString(text),
	}
	p := &parser{lx: newLexer(text)}
	if err := p.parseDirectives(doc); err != nil {
		return nil, err
	}
	p.lx.escapeChar = doc.Escape
	for {
		p.lx.skipWhitespace()
		if p.lx.eof() {
			break
		}
		if p.lx.peekChar() == '\n' {
			p.lx.readChar()
			continue
		}
		step, err := p.parseStep()
		if err != nil {
			return nil, err
		}
		doc.Steps = append(doc.Steps, step)
	}
	return doc, nil
}

// parser carries the state of a single parse.
type parser struct {
	lx      *Lexer
	keyword string
	start   SourceLocation
}

var directivePattern = regexp.MustCompile(`^#[ \t]*([A-Za-z][A-Za-z0-9]*)[ \t]*=[ \t]*(.*?)[ \t]*$`)

var knownDirectives = map[string]bool{"syntax": true, "escape": true, "check": true}

// parseDirectives reads parser directives from the leading comment lines
// without consuming them; they are returned as comments by the main loop as
// well. Scanning stops at the first line that is not a known directive.
func (p *parser) parseDirectives(doc *Document) error {
	src := p.lx.source
	for pos, line := 0, 1; pos < len(src); line++ {
		end := p.lx.lineEnd(pos)
		m := directivePattern.FindStringSubmatch(src[pos:end])
		if m == nil {
			return nil
		}
		name := strings.ToLower(m[1])
		if !knownDirectives[name] {
			return nil
		}
		if _, dup := doc.Directive(name); dup {
			return p.lx.errorAt(pos, MalformedInstruction, "", "only one %s parser directive can be used", name)
		}
		if name == "escape" {
			if m[2] != "\\" && m[2] != "`" {
				return p.lx.errorAt(pos, MalformedInstruction, "'\\' or '`'", "invalid escape directive %q", m[2])
			}
			doc.Escape = m[2][0]
		}
		doc.Directives = append(doc.Directives, &Directive{
			Name:     name,
			Value:    m[2],
			Location: SourceLocation{Line: line, Column: 1, Offset: pos, EndLine: line},
		})
		pos = end + 1
	}
	return nil
}

// parseStep parses one comment or instruction, including its line ending.
func (p *parser) parseStep() (Step, error) {
	lx := p.lx
	p.start = lx.location()
	p.keyword = ""

	c := lx.peekChar()
	if c == '#' {
		lx.readChar()
		text := lx.readLine()
		if !lx.eof() {
			lx.readChar()
		}
		return &Comment{Text: text, Location: p.span()}, nil
	}
	if !isLetter(c) {
		return nil, lx.errorf(MalformedInstruction, "instruction keyword", "unexpected %q at start of instruction", c)
	}

	p.keyword = strings.ToUpper(lx.readWhile(isLetter))
	if !lx.atLineEnd() && !isBlank(lx.peekChar()) && !lx.atContinuation() {
		return nil, p.fail(lx.errorf(MalformedInstruction, "whitespace after keyword", "unexpected %q after %s", lx.peekChar(), p.keyword))
	}
	lx.skipBreakableSpace()

	var step Step
	var err error
	switch p.keyword {
	case "FROM":
		step, err = p.parseFrom()
	case "ARG":
		step, err = p.parseArg()
	case "LABEL":
		step, err = p.parseLabel()
	case "COPY":
		step, err = p.parseCopy()
	case "RUN":
		step, err = p.parseRun()
	case "ENTRYPOINT":
		step, err = p.parseEntrypoint()
	case "CMD":
		step, err = p.parseCmd()
	case "ENV":
		step, err = p.parseEnv()
	default:
		step, err = p.parseMisc()
	}
	if err != nil {
		return nil, p.fail(err)
	}
	return step, nil
}

// span returns the location of the current step, ending at the last
// consumed line.
func (p *parser) span() SourceLocation {
	loc := p.start
	loc.EndLine = p.lx.lastLine()
	if loc.EndLine < loc.Line {
		loc.EndLine = loc.Line
	}
	return loc
}

// fail attributes err to the instruction being parsed.
func (p *parser) fail(err error) error {
	if pe, ok := err.(*ParseError); ok && pe.Instruction == "" {
		pe.Instruction = p.keyword
	}
	return err
}

// endLine requires the logical line to end here and consumes its line ending.
func (p *parser) endLine() error {
	lx := p.lx
	lx.skipBreakableSpace()
	if lx.eof() {
		return nil
	}
	if lx.peekChar() != '\n' {
		return lx.errorf(MalformedInstruction, "end of line", "unexpected %q", lx.peekChar())
	}
	lx.readChar()
	return nil
}

// parseFlags consumes leading --name[=value] options.
func (p *parser) parseFlags() ([]Flag, error) {
	lx := p.lx
	var flags []Flag
	for lx.hasPrefix("--") {
		lx.position += 2
		name := lx.readWhile(isLetter)
		if name == "" {
			return nil, lx.errorf(MalformedInstruction, "flag name", "invalid flag")
		}
		flag := Flag{Name: strings.ToLower(name)}
		if lx.peekChar() == '=' {
			lx.readChar()
			flag.Value = lx.readToken(nil)
			if flag.Value == "" {
				return nil, lx.errorf(MalformedInstruction, "flag value", "missing value for --%s", name)
			}
		}
		if !lx.atLineEnd() && !isBlank(lx.peekChar()) && !lx.atContinuation() {
			return nil, lx.errorf(MalformedInstruction, "'=' or whitespace", "unexpected %q in flag --%s", lx.peekChar(), name)
		}
		flags = append(flags, flag)
		lx.skipBreakableSpace()
	}
	return flags, nil
}

// readHeredocLine consumes a logical instruction line carrying the heredoc
// declarations at positions, followed by their bodies. The line itself is
// spliced like any other instruction body.
func (p *parser) readHeredocLine(positions []int) (BreakableString, []Heredoc, error) {
	lx := p.lx
	decl := lx.position
	docs := make([]Heredoc, 0, len(positions))
	for _, pos := range positions {
		lx.position = pos
		h, err := lx.readHeredocDecl()
		if err != nil {
			return BreakableString{}, nil, err
		}
		docs = append(docs, h)
	}
	lx.position = decl
	text := lx.readBreakable()
	if err := lx.readHeredocBodies(docs, decl); err != nil {
		return BreakableString{}, nil, err
	}
	return text, docs, nil
}

func byteSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return strconv.FormatInt(n>>20, 10) + " MiB"
	case n >= 1<<10 && n%(1<<10) == 0:
		return strconv.FormatInt(n>>10, 10) + " KiB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}
