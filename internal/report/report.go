// Package report renders batch results as JSON, YAML or human readable text.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/shmocker/dfparse/internal/batch"
	"github.com/shmocker/dfparse/pkg/dockerfile"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Report is the serialized form of a batch.
type Report struct {
	RunID   string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Files   []*File       `json:"files" yaml:"files"`
	Summary batch.Summary `json:"summary" yaml:"summary"`
}

// File is the serialized outcome for one input.
type File struct {
	Path       string                     `json:"path" yaml:"path"`
	Digest     digest.Digest              `json:"digest,omitempty" yaml:"digest,omitempty"`
	Directives []*dockerfile.Directive    `json:"directives,omitempty" yaml:"directives,omitempty"`
	Steps      []*Step                    `json:"steps,omitempty" yaml:"steps,omitempty"`
	Warnings   []*dockerfile.ParseWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error      *Error                     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Step wraps a dockerfile.Step with its kind and canonical text.
type Step struct {
	Kind     dockerfile.Kind           `json:"kind" yaml:"kind"`
	Location dockerfile.SourceLocation `json:"location" yaml:"location"`
	Text     string                    `json:"text" yaml:"text"`
	Value    dockerfile.Step           `json:"value" yaml:"value"`
}

// Error describes why an input could not be parsed.
type Error struct {
	Code        string `json:"code,omitempty" yaml:"code,omitempty"`
	Line        int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column      int    `json:"column,omitempty" yaml:"column,omitempty"`
	Offset      int    `json:"offset,omitempty" yaml:"offset,omitempty"`
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Message     string `json:"message" yaml:"message"`
	Expected    string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// Options selects what goes into a report.
type Options struct {
	// Steps includes the parsed steps of every document
	Steps bool
	RunID string
}

// Build converts batch results into a Report.
func Build(results []*batch.Result, opts Options) *Report {
	r := &Report{RunID: opts.RunID, Files: make([]*File, 0, len(results)), Summary: batch.Summarize(results)}
	for _, res := range results {
		f := &File{Path: res.Path, Warnings: res.Warnings}
		if res.Err != nil {
			f.Error = newError(res.Err)
		}
		if doc := res.Document; doc != nil {
			f.Digest = doc.Digest
			f.Directives = doc.Directives
			if opts.Steps {
				f.Steps = make([]*Step, 0, len(doc.Steps))
				for _, s := range doc.Steps {
					f.Steps = append(f.Steps, &Step{Kind: s.Kind(), Location: s.GetLocation(), Text: s.String(), Value: s})
				}
			}
		}
		r.Files = append(r.Files, f)
	}
	return r
}

func newError(err error) *Error {
	pe, ok := dockerfile.AsParseError(err)
	if !ok {
		return &Error{Message: err.Error()}
	}
	return &Error{
		Code:        pe.Code.String(),
		Line:        pe.Line,
		Column:      pe.Column,
		Offset:      pe.Offset,
		Instruction: pe.Instruction,
		Message:     pe.Message,
		Expected:    pe.Expected,
	}
}

// Writer renders reports in one format.
type Writer struct {
	out    io.Writer
	format string

	path, errc, warnc, infoc, okc, dim *color.Color
}

// NewWriter creates a Writer. Colors only apply to the text format.
func NewWriter(out io.Writer, format string, noColor bool) (*Writer, error) {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return nil, errors.Errorf("unsupported format %q", format)
	}
	w := &Writer{
		out:    out,
		format: format,
		path:   color.New(color.Bold),
		errc:   color.New(color.FgRed, color.Bold),
		warnc:  color.New(color.FgYellow),
		infoc:  color.New(color.FgCyan),
		okc:    color.New(color.FgGreen),
		dim:    color.New(color.Faint),
	}
	for _, c := range []*color.Color{w.path, w.errc, w.warnc, w.infoc, w.okc, w.dim} {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return w, nil
}

// Write renders r.
func (w *Writer) Write(r *Report) error {
	var err error
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.out)
		enc.SetIndent("", "  ")
		err = enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w.out)
		enc.SetIndent(2)
		if err = enc.Encode(r); err == nil {
			err = enc.Close()
		}
	default:
		err = w.writeText(r)
	}
	return errors.Wrapf(err, "failed to write %s report", w.format)
}

func (w *Writer) writeText(r *Report) error {
	var b strings.Builder
	for _, f := range r.Files {
		if f.Error != nil {
			w.writeFileError(&b, f)
			continue
		}
		if len(f.Steps) > 0 {
			w.writeSteps(&b, f)
		}
		for _, warn := range f.Warnings {
			b.WriteString(w.path.Sprintf("%s:%d:", f.Path, warn.Location.Line))
			b.WriteByte(' ')
			b.WriteString(w.severity(warn.Severity))
			fmt.Fprintf(&b, ": %s %s\n", warn.Message, w.dim.Sprintf("[%s]", warn.Rule))
		}
	}
	w.writeSummary(&b, r.Summary)
	_, err := io.WriteString(w.out, b.String())
	return err
}

func (w *Writer) writeFileError(b *strings.Builder, f *File) {
	e := f.Error
	if e.Line > 0 {
		b.WriteString(w.path.Sprintf("%s:%d:%d:", f.Path, e.Line, e.Column))
	} else {
		b.WriteString(w.path.Sprintf("%s:", f.Path))
	}
	b.WriteByte(' ')
	b.WriteString(w.errc.Sprint("error"))
	b.WriteString(": ")
	if e.Instruction != "" {
		b.WriteString(e.Instruction)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Expected != "" {
		fmt.Fprintf(b, " (expected %s)", e.Expected)
	}
	if e.Code != "" {
		b.WriteByte(' ')
		b.WriteString(w.dim.Sprintf("[%s]", e.Code))
	}
	b.WriteByte('\n')
}

func (w *Writer) writeSteps(b *strings.Builder, f *File) {
	b.WriteString(w.path.Sprint(f.Path))
	if f.Digest != "" {
		b.WriteByte(' ')
		b.WriteString(w.dim.Sprint(shortDigest(f.Digest)))
	}
	b.WriteByte('\n')
	for _, s := range f.Steps {
		lines := strings.Split(s.Text, "\n")
		fmt.Fprintf(b, "%5d  %-10s %s\n", s.Location.Line, s.Kind, lines[0])
		for _, l := range lines[1:] {
			fmt.Fprintf(b, "%5s  %-10s %s\n", "", "", l)
		}
	}
}

func (w *Writer) writeSummary(b *strings.Builder, s batch.Summary) {
	parts := []string{fmt.Sprintf("%d file(s)", s.Files)}
	if s.Failed > 0 {
		parts = append(parts, w.errc.Sprintf("%d failed", s.Failed))
	}
	if s.Errors > 0 {
		parts = append(parts, w.errc.Sprintf("%d error(s)", s.Errors))
	}
	if s.Warnings > 0 {
		parts = append(parts, w.warnc.Sprintf("%d warning(s)", s.Warnings))
	}
	if s.Notices > 0 {
		parts = append(parts, w.infoc.Sprintf("%d notice(s)", s.Notices))
	}
	if s.Failed == 0 && s.Errors == 0 && s.Warnings == 0 {
		parts = append(parts, w.okc.Sprint("ok"))
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteByte('\n')
}

func (w *Writer) severity(s dockerfile.WarningSeverity) string {
	switch s {
	case dockerfile.WarningError:
		return w.errc.Sprint(string(s))
	case dockerfile.WarningWarning:
		return w.warnc.Sprint(string(s))
	default:
		return w.infoc.Sprint(string(s))
	}
}

func shortDigest(d digest.Digest) string {
	if d.Validate() != nil {
		return d.String()
	}
	enc := d.Encoded()
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return string(d.Algorithm()) + ":" + enc
}
