package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dferrors "github.com/shmocker/dfparse/internal/errors"
)

type testRun struct {
	code   int
	stdout string
	stderr string
}

// runCLI executes the command line against an in-memory filesystem.
func runCLI(t *testing.T, files map[string]string, stdin string, args ...string) testRun {
	t.Helper()
	// keep a developer's own config file out of the way
	t.Setenv("HOME", t.TempDir())

	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	var stdout, stderr bytes.Buffer
	a := &app{
		fs:     fs,
		stdin:  strings.NewReader(stdin),
		stdout: &stdout,
		stderr: &stderr,
	}
	code := execute(context.Background(), a, args)
	return testRun{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

var cliFiles = map[string]string{
	"/src/Dockerfile":      "FROM golang:1.22 AS build\nRUN go build \\\n  ./...\nFROM alpine\nCOPY --from=build /out /app\n",
	"/src/bad/Dockerfile":  "FROM alpine\nRUN [\"a\", b]\n",
	"/src/lint/Dockerfile": "RUN echo\nFROM alpine\n",
	"/src/warn/Dockerfile": "FROM alpine\nCOPY --form=a b c\n",
}

func TestExecuteExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"parse ok", []string{"parse", "/src/Dockerfile"}, dferrors.ExitOK},
		{"parse failure", []string{"parse", "/src/bad/Dockerfile"}, dferrors.ExitParse},
		{"lint ok", []string{"lint", "/src/Dockerfile"}, dferrors.ExitOK},
		{"lint errors", []string{"lint", "/src/lint/Dockerfile"}, dferrors.ExitLint},
		{"lint warnings", []string{"lint", "/src/warn/Dockerfile"}, dferrors.ExitOK},
		{"lint strict warnings", []string{"lint", "--strict", "/src/warn/Dockerfile"}, dferrors.ExitLint},
		{"lint parse failure", []string{"lint", "/src/bad/Dockerfile"}, dferrors.ExitParse},
		{"fmt ok", []string{"fmt", "/src/Dockerfile"}, dferrors.ExitOK},
		{"missing path", []string{"parse", "/nope"}, dferrors.ExitIO},
		{"bad format", []string{"parse", "-o", "xml", "/src/Dockerfile"}, dferrors.ExitConfig},
		{"unknown command", []string{"frobnicate"}, dferrors.ExitUsage},
		{"unknown flag", []string{"parse", "--bogus"}, dferrors.ExitUsage},
		{"version", []string{"version"}, dferrors.ExitOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, cliFiles, "", tt.args...)
			assert.Equal(t, tt.want, res.code, "stdout: %s\nstderr: %s", res.stdout, res.stderr)
		})
	}
}

func TestParseText(t *testing.T) {
	res := runCLI(t, cliFiles, "", "parse", "/src/Dockerfile")
	require.Equal(t, dferrors.ExitOK, res.code, res.stderr)

	assert.Contains(t, res.stdout, "/src/Dockerfile sha256:")
	assert.Contains(t, res.stdout, "    1  FROM       FROM golang:1.22 AS build\n")
	assert.Contains(t, res.stdout, "    5  COPY       COPY --from=build /out /app\n")
	assert.True(t, strings.HasSuffix(res.stdout, "1 file(s), ok\n"), res.stdout)
	assert.NotContains(t, res.stdout, "\x1b[", "no colors without a terminal")
}

func TestParseJSONFromStdin(t *testing.T) {
	res := runCLI(t, nil, "FROM scratch\nCMD [\"/app\"]\n", "parse", "--format", "json")
	require.Equal(t, dferrors.ExitOK, res.code, res.stderr)

	var decoded struct {
		RunID string `json:"run_id"`
		Files []struct {
			Path  string `json:"path"`
			Steps []struct {
				Kind string `json:"kind"`
			} `json:"steps"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &decoded))
	assert.NotEmpty(t, decoded.RunID)
	require.Len(t, decoded.Files, 1)
	assert.Equal(t, "-", decoded.Files[0].Path)
	require.Len(t, decoded.Files[0].Steps, 2)
	assert.Equal(t, "FROM", decoded.Files[0].Steps[0].Kind)
	assert.Equal(t, "CMD", decoded.Files[0].Steps[1].Kind)
}

func TestParseFailureReport(t *testing.T) {
	res := runCLI(t, cliFiles, "", "parse", "/src/bad/Dockerfile")
	require.Equal(t, dferrors.ExitParse, res.code)

	assert.Contains(t, res.stdout, "/src/bad/Dockerfile:2:11: error: RUN:")
	assert.Contains(t, res.stderr, "category=parse")
}

func TestLintDirectory(t *testing.T) {
	res := runCLI(t, cliFiles, "", "lint", "/src")
	require.Equal(t, dferrors.ExitParse, res.code, "bad/Dockerfile fails to parse")

	assert.Contains(t, res.stdout, "/src/lint/Dockerfile:1: error:")
	assert.Contains(t, res.stdout, "[InstructionBeforeFrom]")
	assert.Contains(t, res.stdout, "[UnknownFlag]")
	assert.Contains(t, res.stdout, "4 file(s), 1 failed")
}

func TestFmt(t *testing.T) {
	res := runCLI(t, cliFiles, "", "fmt", "/src/Dockerfile")
	require.Equal(t, dferrors.ExitOK, res.code, res.stderr)
	assert.Equal(t, cliFiles["/src/Dockerfile"], res.stdout)

	multi := runCLI(t, cliFiles, "", "fmt", "/src/Dockerfile", "/src/warn/Dockerfile")
	require.Equal(t, dferrors.ExitOK, multi.code, multi.stderr)
	assert.True(t, strings.HasPrefix(multi.stdout, "# /src/Dockerfile\n"), multi.stdout)
	assert.Contains(t, multi.stdout, "# /src/warn/Dockerfile\nFROM alpine\n")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dfparse.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("format: yaml\nstrict: true\n"), 0o644))

	res := runCLI(t, cliFiles, "", "--config", cfgPath, "lint", "/src/warn/Dockerfile")
	assert.Equal(t, dferrors.ExitLint, res.code, "strict comes from the config file")
	assert.Contains(t, res.stdout, "rule: UnknownFlag")

	res = runCLI(t, cliFiles, "", "--config", filepath.Join(dir, "missing.yaml"), "parse", "/src/Dockerfile")
	assert.Equal(t, dferrors.ExitConfig, res.code)
}

func TestVerboseLogging(t *testing.T) {
	res := runCLI(t, cliFiles, "", "-v", "parse", "/src/Dockerfile")
	require.Equal(t, dferrors.ExitOK, res.code)
	assert.Contains(t, res.stderr, "configuration loaded")
	assert.Contains(t, res.stderr, "Dockerfile parsed")
	assert.Contains(t, res.stderr, "run_id=")
}

func TestVersion(t *testing.T) {
	res := runCLI(t, nil, "", "version")
	require.Equal(t, dferrors.ExitOK, res.code)
	assert.Contains(t, res.stdout, "dfparse version: dev")
}
