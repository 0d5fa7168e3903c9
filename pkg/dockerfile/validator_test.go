package dockerfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rules(warnings []*ParseWarning) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, w.Rule)
	}
	return out
}

func TestValidatorRules(t *testing.T) {
	tests := []struct {
		name       string
		dockerfile string
		want       []string
		hasErrors  bool
	}{
		{
			name:       "clean multi-stage build",
			dockerfile: "ARG V=1\nFROM golang:$V AS build\nRUN go build\nFROM alpine\nCOPY --from=build /out /bin/app\nCMD [\"app\"]",
			want:       []string{},
		},
		{
			name:       "no FROM at all",
			dockerfile: "# only a comment\nARG X",
			want:       []string{"NoFromInstruction"},
			hasErrors:  true,
		},
		{
			name:       "instruction before FROM",
			dockerfile: "LABEL a=b\nFROM alpine",
			want:       []string{"InstructionBeforeFrom"},
			hasErrors:  true,
		},
		{
			name:       "duplicate stage name ignores case",
			dockerfile: "FROM alpine AS base\nFROM alpine AS Base",
			want:       []string{"DuplicateStageName", "StageNameCasing"},
			hasErrors:  true,
		},
		{
			name:       "COPY from unknown stage",
			dockerfile: "FROM alpine\nCOPY --from=builder /a /b",
			want:       []string{"UndefinedStage"},
		},
		{
			name:       "COPY from stage index not yet defined",
			dockerfile: "FROM alpine\nCOPY --from=0 /a /b",
			want:       []string{"UndefinedStage"},
			hasErrors:  true,
		},
		{
			name:       "COPY from current stage",
			dockerfile: "FROM alpine AS app\nCOPY --from=app /a /b",
			want:       []string{"UndefinedStage"},
			hasErrors:  true,
		},
		{
			name:       "COPY from image or variable is not checked",
			dockerfile: "FROM alpine\nCOPY --from=nginx:latest /a /b\nCOPY --from=$STAGE /a /b",
			want:       []string{},
		},
		{
			name:       "repeated CMD in one stage",
			dockerfile: "FROM alpine\nCMD a\nCMD b\nFROM alpine\nCMD c",
			want:       []string{"MultipleInstructions"},
		},
		{
			name:       "invalid platform",
			dockerfile: "FROM --platform=linux/arm64/v8/extra alpine",
			want:       []string{"InvalidPlatform"},
		},
		{
			name:       "platform from build arg is not checked",
			dockerfile: "FROM --platform=$BUILDPLATFORM alpine",
			want:       []string{},
		},
		{
			name:       "unknown flag",
			dockerfile: "FROM alpine\nRUN --mout=type=cache,target=/x true",
			want:       []string{"UnknownFlag"},
		},
		{
			name:       "MAINTAINER is deprecated",
			dockerfile: "FROM alpine\nMAINTAINER someone",
			want:       []string{"MaintainerDeprecated"},
		},
		{
			name:       "unstructured instructions",
			dockerfile: "FROM alpine\nWORKDIR /app\nEXPOSE 80",
			want:       []string{"UnstructuredInstruction", "UnstructuredInstruction"},
		},
		{
			name:       "unknown instruction",
			dockerfile: "FROM alpine\nCOPYY a b",
			want:       []string{"UnknownInstruction"},
			hasErrors:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse(tt.dockerfile)
			require.NoError(t, err)

			warnings := NewValidator().Validate(doc)
			assert.Equal(t, tt.want, rules(warnings))
			assert.Equal(t, tt.hasErrors, HasErrors(warnings))
		})
	}
}

func TestValidatorSuggestions(t *testing.T) {
	doc, err := Parse("FROM alpine\nRUN --mout=type=cache,target=/x true\nWORKDIRR /app")
	require.NoError(t, err)

	warnings := NewValidator().Validate(doc)
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0].Message, "unknown flag --mout for RUN")
	assert.Contains(t, warnings[0].Message, "did you mean")
	assert.Contains(t, warnings[1].Message, "unknown instruction: WORKDIRR")
	assert.Contains(t, warnings[1].Message, "did you mean")
	assert.Equal(t, 3, warnings[1].Location.Line)
}

func TestValidatorOptions(t *testing.T) {
	doc, err := Parse("FROM --platform=not/a/valid/platform alpine\nWORKDIR /app")
	require.NoError(t, err)

	warnings := NewValidator(WithPlatformCheck(false), WithUnstructuredNotices(false)).Validate(doc)
	assert.Empty(t, warnings)

	warnings = NewValidator().Validate(doc)
	assert.Equal(t, []string{"InvalidPlatform", "UnstructuredInstruction"}, rules(warnings))
}

func TestValidatorNilDocument(t *testing.T) {
	warnings := NewValidator().Validate(nil)
	require.Len(t, warnings, 1)
	assert.True(t, HasErrors(warnings))
}

func TestParseWarningString(t *testing.T) {
	w := &ParseWarning{Rule: "StageNameCasing", Message: "stage name 'X' should be lowercase", Location: SourceLocation{Line: 4}, Severity: WarningInfo}
	assert.Equal(t, "line 4: info: stage name 'X' should be lowercase (StageNameCasing)", w.String())
}
