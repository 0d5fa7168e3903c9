package dockerfile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/containerd/containerd/platforms"
	"github.com/moby/buildkit/util/suggest"
	"github.com/pkg/errors"
)

// WarningSeverity represents the severity of a lint finding.
type WarningSeverity string

const (
	WarningInfo    WarningSeverity = "info"
	WarningWarning WarningSeverity = "warning"
	WarningError   WarningSeverity = "error"
)

// ParseWarning is a finding reported by the Validator on a parsed Document.
type ParseWarning struct {
	// Rule is a stable identifier such as "UnknownInstruction"
	Rule string `json:"rule" yaml:"rule"`

	// Message is the warning message
	Message string `json:"message" yaml:"message"`

	// Location is where the warning occurred
	Location SourceLocation `json:"location" yaml:"location"`

	// Severity is the warning severity
	Severity WarningSeverity `json:"severity" yaml:"severity"`
}

func (w *ParseWarning) String() string {
	return fmt.Sprintf("line %d: %s: %s (%s)", w.Location.Line, w.Severity, w.Message, w.Rule)
}

var (
	// deferredInstructions are valid instructions kept as MiscInstruction
	// that a later version may give a structured form.
	deferredInstructions = []string{"ADD", "WORKDIR", "USER"}

	// unsupportedInstructions are valid instructions only kept as raw text.
	unsupportedInstructions = []string{"EXPOSE", "VOLUME", "ONBUILD", "STOPSIGNAL", "HEALTHCHECK", "SHELL", "MAINTAINER"}

	parsedInstructions = []string{"FROM", "RUN", "ARG", "LABEL", "COPY", "ENTRYPOINT", "CMD", "ENV"}
)

var knownFlags = map[Kind][]string{
	KindFrom: {"platform"},
	KindCopy: {"from", "chown", "chmod", "link", "parents", "exclude"},
	KindRun:  {"mount", "network", "security"},
}

// Validator checks a parsed Document for semantic problems that are not
// syntax errors.
type Validator struct {
	// Configuration options
	checkPlatforms bool
	reportMisc     bool
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithPlatformCheck toggles validation of FROM --platform values.
func WithPlatformCheck(enabled bool) ValidatorOption {
	return func(v *Validator) { v.checkPlatforms = enabled }
}

// WithUnstructuredNotices toggles the info findings for instructions whose
// arguments are only kept as raw text.
func WithUnstructuredNotices(enabled bool) ValidatorOption {
	return func(v *Validator) { v.reportMisc = enabled }
}

// NewValidator creates a new validator with default settings.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		checkPlatforms: true,
		reportMisc:     true,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns all findings in source order of the rules that produced
// them. A nil document yields a single error finding.
func (v *Validator) Validate(doc *Document) []*ParseWarning {
	if doc == nil {
		return []*ParseWarning{{Rule: "NilDocument", Message: "document is nil", Severity: WarningError}}
	}

	var out []*ParseWarning
	report := func(rule string, sev WarningSeverity, loc SourceLocation, format string, args ...interface{}) {
		out = append(out, &ParseWarning{Rule: rule, Message: fmt.Sprintf(format, args...), Location: loc, Severity: sev})
	}

	v.validateInstructionOrder(doc, report)
	v.validateStages(doc, report)
	for _, step := range doc.Instructions() {
		v.validateFlags(step, report)
		switch s := step.(type) {
		case *FromInstruction:
			v.validateFromInstruction(s, report)
		case *MiscInstruction:
			v.validateMiscInstruction(s, report)
		}
	}
	return out
}

// HasErrors reports whether any finding has error severity.
func HasErrors(warnings []*ParseWarning) bool {
	for _, w := range warnings {
		if w.Severity == WarningError {
			return true
		}
	}
	return false
}

type reportFunc func(rule string, sev WarningSeverity, loc SourceLocation, format string, args ...interface{})

// validateInstructionOrder ensures a FROM exists and only ARG precedes it.
func (v *Validator) validateInstructionOrder(doc *Document, report reportFunc) {
	for _, step := range doc.Instructions() {
		switch step.Kind() {
		case KindFrom:
			return
		case KindArg:
			continue
		}
		report("InstructionBeforeFrom", WarningError, step.GetLocation(),
			"instruction %s found before FROM", step.GetCmd())
	}
	report("NoFromInstruction", WarningError, SourceLocation{Line: 1, Column: 1, EndLine: 1},
		"Dockerfile must contain at least one FROM instruction")
}

// validateStages checks stage names, cross-stage references and instructions
// that only take effect once per stage.
func (v *Validator) validateStages(doc *Document, report reportFunc) {
	stageNames := make(map[string]int)
	for i, stage := range doc.Stages() {
		if name := stage.Name; name != "" {
			lower := strings.ToLower(name)
			if prev, exists := stageNames[lower]; exists {
				report("DuplicateStageName", WarningError, stage.From.Location,
					"duplicate stage name '%s' at stage %d (previously defined at stage %d)", name, i, prev)
			} else {
				stageNames[lower] = i
			}
			if name != lower {
				report("StageNameCasing", WarningInfo, stage.From.Location,
					"stage name '%s' should be lowercase", name)
			}
		}

		counts := make(map[string][]Step)
		for _, step := range stage.Instructions {
			counts[step.GetCmd()] = append(counts[step.GetCmd()], step)
			if cp, ok := step.(*CopyInstruction); ok {
				v.validateStageReference(flagValue(cp.Flags, "from"), i, stageNames, cp.Location, report)
			}
		}
		for _, cmd := range []string{"CMD", "ENTRYPOINT", "HEALTHCHECK"} {
			if steps := counts[cmd]; len(steps) > 1 {
				for _, s := range steps[:len(steps)-1] {
					report("MultipleInstructions", WarningInfo, s.GetLocation(),
						"only the last %s instruction in a stage takes effect", cmd)
				}
			}
		}
	}
}

// validateStageReference checks COPY --from against the stages defined so far.
func (v *Validator) validateStageReference(ref string, current int, names map[string]int, loc SourceLocation, report reportFunc) {
	if ref == "" || strings.Contains(ref, "$") {
		return
	}
	if idx, err := strconv.Atoi(ref); err == nil {
		if idx < 0 || idx >= current {
			report("UndefinedStage", WarningError, loc, "COPY --from=%d does not refer to a previous stage", idx)
		}
		return
	}
	if idx, ok := names[strings.ToLower(ref)]; ok {
		if idx == current {
			report("UndefinedStage", WarningError, loc, "COPY --from=%s refers to the current stage", ref)
		}
		return
	}
	// anything that looks like an image reference is assumed to be one
	if strings.ContainsAny(ref, ":/.@") {
		return
	}
	report("UndefinedStage", WarningWarning, loc,
		"COPY --from=%s does not name a previous stage and will be treated as an image", ref)
}

func (v *Validator) validateFromInstruction(from *FromInstruction, report reportFunc) {
	platform := from.Platform()
	if !v.checkPlatforms || platform == "" || strings.Contains(platform, "$") {
		return
	}
	if _, err := platforms.Parse(platform); err != nil {
		report("InvalidPlatform", WarningWarning, from.Location, "invalid platform %q: %v", platform, err)
	}
}

// validateFlags reports flags the instruction does not know about.
func (v *Validator) validateFlags(step Step, report reportFunc) {
	known, ok := knownFlags[step.Kind()]
	if !ok {
		return
	}
	for _, f := range step.GetFlags() {
		if contains(known, f.Name) {
			continue
		}
		err := suggest.WrapError(errors.Errorf("unknown flag --%s for %s", f.Name, step.GetCmd()), f.Name, known, true)
		report("UnknownFlag", WarningWarning, step.GetLocation(), "%v", err)
	}
}

// validateMiscInstruction classifies instructions kept as raw text.
func (v *Validator) validateMiscInstruction(misc *MiscInstruction, report reportFunc) {
	name := misc.Instruction
	switch {
	case name == "MAINTAINER":
		report("MaintainerDeprecated", WarningWarning, misc.Location,
			"MAINTAINER is deprecated, use LABEL org.opencontainers.image.authors instead")
	case contains(deferredInstructions, name), contains(unsupportedInstructions, name):
		if v.reportMisc {
			report("UnstructuredInstruction", WarningInfo, misc.Location,
				"%s arguments are kept as raw text", name)
		}
	default:
		err := suggest.WrapError(errors.Errorf("unknown instruction: %s", name), name, allInstructionNames(), false)
		report("UnknownInstruction", WarningError, misc.Location, "%v", err)
	}
}

func allInstructionNames() []string {
	names := make([]string, 0, len(parsedInstructions)+len(deferredInstructions)+len(unsupportedInstructions))
	names = append(names, parsedInstructions...)
	names = append(names, deferredInstructions...)
	return append(names, unsupportedInstructions...)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
