package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmocker/dfparse/pkg/dockerfile"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int64("max-size", 0, "")
	flags.String("format", "", "")
	flags.Bool("strict", false, "")
	flags.Int("concurrency", 0, "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	os.Unsetenv("NO_COLOR")
	path := writeConfig(t, "empty.yaml", "")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(dockerfile.MaxDocumentSize), cfg.MaxSize)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, FormatText, cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, runtime.NumCPU(), cfg.Concurrency)
	assert.False(t, cfg.Strict)
	assert.False(t, cfg.NoColor)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "dfparse.yaml", "format: yaml\nmax_size: 1024\nstrict: true\nconcurrency: 2\n")

	t.Run("config file", func(t *testing.T) {
		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, FormatYAML, cfg.Format)
		assert.Equal(t, int64(1024), cfg.MaxSize)
		assert.True(t, cfg.Strict)
		assert.Equal(t, 2, cfg.Concurrency)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("DFPARSE_FORMAT", "json")
		t.Setenv("DFPARSE_MAX_SIZE", "2048")
		cfg, err := Load(path, nil)
		require.NoError(t, err)
		assert.Equal(t, FormatJSON, cfg.Format)
		assert.Equal(t, int64(2048), cfg.MaxSize)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("DFPARSE_FORMAT", "json")
		flags := testFlags()
		require.NoError(t, flags.Parse([]string{"--format=text", "--concurrency=7"}))
		cfg, err := Load(path, flags)
		require.NoError(t, err)
		assert.Equal(t, FormatText, cfg.Format)
		assert.Equal(t, 7, cfg.Concurrency)
		// unset flags do not shadow the file
		assert.Equal(t, int64(1024), cfg.MaxSize)
	})
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"unknown format", "format: xml\n", "unsupported format"},
		{"unknown log format", "log_format: logfmt\n", "unsupported log format"},
		{"bad log level", "log_level: loud\n", "invalid log level"},
		{"malformed file", "format: [\n", "failed to read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "bad.yaml", tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
		require.Error(t, err)
	})
}

func TestValidateNormalizes(t *testing.T) {
	cfg := &Config{Format: "JSON", LogFormat: "Text", LogLevel: "debug"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, FormatText, cfg.LogFormat)
	assert.Equal(t, runtime.NumCPU(), cfg.Concurrency)
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug", LogFormat: FormatJSON}
	logger := cfg.NewLogger()
	assert.Equal(t, logrus.DebugLevel, logger.Level)
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	cfg = &Config{LogLevel: "warn", LogFormat: FormatText, NoColor: true}
	logger = cfg.NewLogger()
	assert.Equal(t, logrus.WarnLevel, logger.Level)
	require.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.True(t, logger.Formatter.(*logrus.TextFormatter).DisableColors)
}

func TestParserOptions(t *testing.T) {
	cfg := &Config{MaxSize: 8}
	parser := dockerfile.New(cfg.ParserOptions()...)
	_, err := parser.ParseBytes([]byte("FROM alpine:3.19\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, dockerfile.ErrInputTooLarge)
}
