// Package config provides configuration management for dfparse.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shmocker/dfparse/pkg/dockerfile"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DFPARSE"

// Output formats understood by the report package.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config represents the application configuration.
type Config struct {
	// Parser settings
	MaxSize int64 `mapstructure:"max_size"`

	// Output settings
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`

	// Strict makes lint fail on warnings, not only on errors
	Strict bool `mapstructure:"strict"`

	// Concurrency bounds how many files are parsed at once
	Concurrency int `mapstructure:"concurrency"`

	// Logging settings
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"max-size":    "max_size",
	"format":      "format",
	"no-color":    "no_color",
	"strict":      "strict",
	"concurrency": "concurrency",
	"log-level":   "log_level",
	"log-format":  "log_format",
}

// Load loads configuration from defaults, an optional config file, environment
// variables and finally any of flags that were set on the command line.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("max_size", dockerfile.MaxDocumentSize)
	v.SetDefault("format", FormatText)
	v.SetDefault("no_color", false)
	v.SetDefault("strict", false)
	v.SetDefault("concurrency", runtime.NumCPU())
	v.SetDefault("log_level", logrus.InfoLevel.String())
	v.SetDefault("log_format", FormatText)

	// Configure viper for environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// NO_COLOR is honoured as well, see https://no-color.org
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		v.SetDefault("no_color", true)
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "failed to bind flag --%s", name)
				}
			}
		}
	}

	// Configure config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".dfparse")
		v.AddConfigPath(".")
		v.AddConfigPath(homeDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate normalizes the configuration and rejects unknown values.
func (c *Config) Validate() error {
	c.Format = strings.ToLower(c.Format)
	switch c.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return errors.Errorf("unsupported format %q (want text, json or yaml)", c.Format)
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	switch c.LogFormat {
	case FormatText, FormatJSON:
	default:
		return errors.Errorf("unsupported log format %q (want text or json)", c.LogFormat)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log level")
	}

	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	return nil
}

// ParserOptions returns the parser options implied by the configuration.
func (c *Config) ParserOptions() []dockerfile.Option {
	return []dockerfile.Option{dockerfile.WithMaxSize(c.MaxSize)}
}

// NewLogger builds the logger described by the configuration. Logs go to
// stderr so that reports on stdout stay machine readable.
func (c *Config) NewLogger() *logrus.Logger {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	var formatter logrus.Formatter = &logrus.TextFormatter{DisableColors: c.NoColor}
	if c.LogFormat == FormatJSON {
		formatter = &logrus.JSONFormatter{}
	}

	return &logrus.Logger{
		Out:       os.Stderr,
		Formatter: formatter,
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "dfparse")
	}
	return home
}
