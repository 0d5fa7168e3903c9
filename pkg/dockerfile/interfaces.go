// Package dockerfile turns Dockerfile text into an ordered list of structured
// build steps. It is a purely syntactic front end: nothing is executed, no
// build context is consulted and shell bodies are never interpreted.
package dockerfile

import (
	"io"

	digest "github.com/opencontainers/go-digest"
)

// Parser parses Dockerfiles into Documents.
type Parser interface {
	// Parse parses a Dockerfile from the given reader
	Parse(reader io.Reader) (*Document, error)

	// ParseFile parses a Dockerfile from the specified file path
	ParseFile(path string) (*Document, error)

	// ParseBytes parses a Dockerfile from byte content
	ParseBytes(content []byte) (*Document, error)
}

// Document is the result of a successful parse. It is built once and must be
// treated as read-only afterwards.
type Document struct {
	// Steps holds comments and instructions in source order
	Steps []Step `json:"steps" yaml:"steps"`

	// Directives contains parser directives (escape, syntax) found at the top of the file
	Directives []*Directive `json:"directives,omitempty" yaml:"directives,omitempty"`

	// Escape is the line continuation character in effect
	Escape byte `json:"-" yaml:"-"`

	// Digest identifies the normalized source text
	Digest digest.Digest `json:"digest" yaml:"digest"`
}

// Instructions returns the non-comment steps.
func (d *Document) Instructions() []Step {
	out := make([]Step, 0, len(d.Steps))
	for _, s := range d.Steps {
		if s.Kind() != KindComment {
			out = append(out, s)
		}
	}
	return out
}

// Directive returns the value of the named parser directive.
func (d *Document) Directive(name string) (string, bool) {
	for _, dir := range d.Directives {
		if dir.Name == name {
			return dir.Value, true
		}
	}
	return "", false
}

// Stage is a view over the instructions that follow one FROM.
type Stage struct {
	// Name is the optional stage name (from AS clause)
	Name string `json:"name,omitempty"`

	// Index is the zero-based index of this stage
	Index int `json:"index"`

	From *FromInstruction `json:"from"`

	// Instructions excludes the FROM itself and comments
	Instructions []Step `json:"instructions"`
}

// Stages groups the document's instructions by FROM. Instructions that
// precede the first FROM are not part of any stage.
func (d *Document) Stages() []*Stage {
	var stages []*Stage
	for _, s := range d.Steps {
		switch st := s.(type) {
		case *FromInstruction:
			stages = append(stages, &Stage{Name: st.Alias, Index: len(stages), From: st})
		case *Comment:
		default:
			if len(stages) > 0 {
				cur := stages[len(stages)-1]
				cur.Instructions = append(cur.Instructions, s)
			}
		}
	}
	return stages
}

// Kind identifies the variant of a Step.
type Kind int

const (
	KindComment Kind = iota
	KindFrom
	KindArg
	KindLabel
	KindCopy
	KindRun
	KindEntrypoint
	KindCmd
	KindEnv
	KindMisc
)

func (k Kind) String() string {
	switch k {
	case KindComment:
		return "COMMENT"
	case KindFrom:
		return "FROM"
	case KindArg:
		return "ARG"
	case KindLabel:
		return "LABEL"
	case KindCopy:
		return "COPY"
	case KindRun:
		return "RUN"
	case KindEntrypoint:
		return "ENTRYPOINT"
	case KindCmd:
		return "CMD"
	case KindEnv:
		return "ENV"
	case KindMisc:
		return "MISC"
	default:
		return "UNKNOWN"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Step is a single comment or instruction. The set of implementations is
// closed: Comment, FromInstruction, ArgInstruction, LabelInstruction,
// CopyInstruction, RunInstruction, EntrypointInstruction, CmdInstruction,
// EnvInstruction and MiscInstruction.
type Step interface {
	// Kind returns the variant tag
	Kind() Kind

	// GetCmd returns the canonical upper-case keyword, or "#" for comments
	GetCmd() string

	// GetFlags returns the --name=value flags in source order
	GetFlags() []Flag

	// GetLocation returns where the step starts and ends
	GetLocation() SourceLocation

	// String renders the step as Dockerfile text
	String() string

	render(escape byte) string
}

// SourceLocation contains source location information for steps.
type SourceLocation struct {
	// Line is the line number (1-based)
	Line int `json:"line"`

	// Column is the column number (1-based)
	Column int `json:"column"`

	// Offset is the byte offset of the first character
	Offset int `json:"offset"`

	// EndLine is the last line covered by the step, heredoc bodies included
	EndLine int `json:"end_line"`
}

// Flag is a --name=value option. Value is empty for bare flags such as --link.
type Flag struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// KeyValue is one LABEL or ENV pair with quoting resolved.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Directive represents a parser directive.
type Directive struct {
	// Name is the lower-cased directive name (escape, syntax)
	Name string `json:"name"`

	Value string `json:"value"`

	Location SourceLocation `json:"location"`
}

// Comment is a whole-line comment outside any instruction.
type Comment struct {
	// Text follows the # marker, line ending excluded
	Text string `json:"text"`

	Location SourceLocation `json:"location"`
}

// FromInstruction represents a FROM instruction.
type FromInstruction struct {
	Flags []Flag `json:"flags,omitempty"`

	// Image is the base image reference as written
	Image string `json:"image"`

	// Alias is the stage name from the AS clause
	Alias string `json:"alias,omitempty"`

	Location SourceLocation `json:"location"`
}

// Platform returns the value of the --platform flag.
func (f *FromInstruction) Platform() string { return flagValue(f.Flags, "platform") }

// ArgDefault is the default of an ARG. Quoted reports whether it was written
// as a quoted literal; Value is already unescaped.
type ArgDefault struct {
	Value  string `json:"value"`
	Quoted bool   `json:"quoted"`
}

// ArgInstruction represents an ARG instruction.
type ArgInstruction struct {
	Name string `json:"name"`

	// Default is nil when no = was given
	Default *ArgDefault `json:"default,omitempty"`

	Location SourceLocation `json:"location"`
}

// LabelInstruction represents a LABEL instruction.
type LabelInstruction struct {
	Pairs []KeyValue `json:"pairs"`

	Location SourceLocation `json:"location"`
}

// EnvInstruction represents an ENV instruction.
type EnvInstruction struct {
	Pairs []KeyValue `json:"pairs"`

	Location SourceLocation `json:"location"`
}

// Heredoc is an inline document introduced by <<DELIM.
type Heredoc struct {
	Delimiter string `json:"delimiter"`

	// Body holds every line up to the terminator, each with its line ending
	Body string `json:"body"`

	// Quoted is set when the delimiter was written as <<"EOF" or <<'EOF'
	Quoted bool `json:"quoted,omitempty"`
}

// CopyInstruction represents a COPY instruction. Exactly one of Sources and
// Heredocs is non-empty.
type CopyInstruction struct {
	Flags []Flag `json:"flags,omitempty"`

	// Sources are the pathspecs of the standard form
	Sources []string `json:"sources,omitempty"`

	// Heredocs are the inline sources of the heredoc form, in declaration order
	Heredocs []Heredoc `json:"heredocs,omitempty"`

	Destination string `json:"destination"`

	Location SourceLocation `json:"location"`
}

// IsHeredoc reports whether the instruction uses the heredoc form.
func (c *CopyInstruction) IsHeredoc() bool { return len(c.Heredocs) > 0 }

// CommandForm tells how a RUN, CMD or ENTRYPOINT body was written.
type CommandForm int

const (
	FormShell CommandForm = iota
	FormExec
	FormHeredoc
)

func (f CommandForm) String() string {
	switch f {
	case FormExec:
		return "exec"
	case FormHeredoc:
		return "heredoc"
	default:
		return "shell"
	}
}

func (f CommandForm) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// Command is the body of RUN, CMD and ENTRYPOINT.
type Command struct {
	Form CommandForm `json:"form"`

	// Exec holds the decoded array elements of the exec form
	Exec []string `json:"exec,omitempty"`

	// Shell holds the spliced shell text. For the heredoc form it is the
	// logical line carrying the declarations, e.g. "python3 <<EOF".
	Shell BreakableString `json:"shell"`

	// Heredocs is set for the heredoc form only
	Heredocs []Heredoc `json:"heredocs,omitempty"`
}

// RunInstruction represents a RUN instruction.
type RunInstruction struct {
	// Flags are options such as --mount, --network and --security
	Flags []Flag `json:"flags,omitempty"`

	Command Command `json:"command"`

	Location SourceLocation `json:"location"`
}

// EntrypointInstruction represents an ENTRYPOINT instruction.
type EntrypointInstruction struct {
	Command Command `json:"command"`

	Location SourceLocation `json:"location"`
}

// CmdInstruction represents a CMD instruction.
type CmdInstruction struct {
	Command Command `json:"command"`

	Location SourceLocation `json:"location"`
}

// MiscInstruction is any instruction without a dedicated representation.
type MiscInstruction struct {
	// Instruction is the upper-cased keyword
	Instruction string `json:"instruction"`

	// Arguments is everything after the keyword, spliced
	Arguments BreakableString `json:"arguments"`

	// Heredocs are bodies declared on the instruction line, e.g. ADD <<EOF /x
	Heredocs []Heredoc `json:"heredocs,omitempty"`

	Location SourceLocation `json:"location"`
}

func (*Comment) Kind() Kind               { return KindComment }
func (*FromInstruction) Kind() Kind       { return KindFrom }
func (*ArgInstruction) Kind() Kind        { return KindArg }
func (*LabelInstruction) Kind() Kind      { return KindLabel }
func (*CopyInstruction) Kind() Kind       { return KindCopy }
func (*RunInstruction) Kind() Kind        { return KindRun }
func (*EntrypointInstruction) Kind() Kind { return KindEntrypoint }
func (*CmdInstruction) Kind() Kind        { return KindCmd }
func (*EnvInstruction) Kind() Kind        { return KindEnv }
func (*MiscInstruction) Kind() Kind       { return KindMisc }

func (*Comment) GetCmd() string               { return "#" }
func (*FromInstruction) GetCmd() string       { return "FROM" }
func (*ArgInstruction) GetCmd() string        { return "ARG" }
func (*LabelInstruction) GetCmd() string      { return "LABEL" }
func (*CopyInstruction) GetCmd() string       { return "COPY" }
func (*RunInstruction) GetCmd() string        { return "RUN" }
func (*EntrypointInstruction) GetCmd() string { return "ENTRYPOINT" }
func (*CmdInstruction) GetCmd() string        { return "CMD" }
func (*EnvInstruction) GetCmd() string        { return "ENV" }
func (m *MiscInstruction) GetCmd() string     { return m.Instruction }

func (*Comment) GetFlags() []Flag               { return nil }
func (f *FromInstruction) GetFlags() []Flag     { return f.Flags }
func (*ArgInstruction) GetFlags() []Flag        { return nil }
func (*LabelInstruction) GetFlags() []Flag      { return nil }
func (c *CopyInstruction) GetFlags() []Flag     { return c.Flags }
func (r *RunInstruction) GetFlags() []Flag      { return r.Flags }
func (*EntrypointInstruction) GetFlags() []Flag { return nil }
func (*CmdInstruction) GetFlags() []Flag        { return nil }
func (*EnvInstruction) GetFlags() []Flag        { return nil }
func (*MiscInstruction) GetFlags() []Flag       { return nil }

func (c *Comment) GetLocation() SourceLocation               { return c.Location }
func (f *FromInstruction) GetLocation() SourceLocation       { return f.Location }
func (a *ArgInstruction) GetLocation() SourceLocation        { return a.Location }
func (l *LabelInstruction) GetLocation() SourceLocation      { return l.Location }
func (c *CopyInstruction) GetLocation() SourceLocation       { return c.Location }
func (r *RunInstruction) GetLocation() SourceLocation        { return r.Location }
func (e *EntrypointInstruction) GetLocation() SourceLocation { return e.Location }
func (c *CmdInstruction) GetLocation() SourceLocation        { return c.Location }
func (e *EnvInstruction) GetLocation() SourceLocation        { return e.Location }
func (m *MiscInstruction) GetLocation() SourceLocation       { return m.Location }

func flagValue(flags []Flag, name string) string {
	for _, f := range flags {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}
