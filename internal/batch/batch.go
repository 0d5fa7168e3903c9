// Package batch parses and validates many Dockerfiles concurrently.
package batch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/shmocker/dfparse/internal/cache"
	"github.com/shmocker/dfparse/pkg/dockerfile"
)

// StdinPath names standard input in a list of paths.
const StdinPath = "-"

// Result is the outcome for one input. Err is set when the file could not be
// read or parsed; Warnings are only computed for parsed documents.
type Result struct {
	Path     string
	Document *dockerfile.Document
	Warnings []*dockerfile.ParseWarning
	Err      error
	Duration time.Duration
}

// Failed reports whether the input could not be parsed.
func (r *Result) Failed() bool { return r.Err != nil }

// Runner parses files from a filesystem with bounded concurrency.
type Runner struct {
	fs          afero.Fs
	parser      dockerfile.Parser
	validator   *dockerfile.Validator
	cache       *cache.Cache
	concurrency int
	stdin       io.Reader
	log         logrus.FieldLogger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency bounds the number of files processed at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) { r.concurrency = n }
}

// WithValidator makes the runner lint every parsed document.
func WithValidator(v *dockerfile.Validator) Option {
	return func(r *Runner) { r.validator = v }
}

// WithCache shares parse results between identical inputs.
func WithCache(c *cache.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithStdin sets the reader used for the "-" path.
func WithStdin(in io.Reader) Option {
	return func(r *Runner) { r.stdin = in }
}

// WithLogger sets the logger for per-file diagnostics.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Runner) { r.log = log }
}

// New creates a Runner reading from fs.
func New(fs afero.Fs, parser dockerfile.Parser, opts ...Option) *Runner {
	r := &Runner{
		fs:          fs,
		parser:      parser,
		concurrency: 1,
		stdin:       os.Stdin,
		log:         logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency < 1 {
		r.concurrency = 1
	}
	return r
}

// Run processes paths and returns one Result per path, in input order.
// Per-file failures are reported in the results; the returned error is only
// set when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, paths []string) ([]*Result, error) {
	results := make([]*Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, path := range paths {
		i, path := i, path
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.process(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) process(path string) *Result {
	start := time.Now()
	log := r.log.WithField("path", path)
	res := &Result{Path: path}

	content, err := r.read(path)
	if err == nil {
		res.Document, err = r.parse(content)
		if err != nil {
			err = errors.WithMessage(err, path)
		}
	}
	res.Err = err
	res.Duration = time.Since(start)

	if err != nil {
		log.WithError(err).Debug("Dockerfile failed")
		return res
	}
	if r.validator != nil {
		res.Warnings = r.validator.Validate(res.Document)
	}
	log.WithFields(logrus.Fields{
		"steps":    len(res.Document.Steps),
		"warnings": len(res.Warnings),
		"digest":   res.Document.Digest.String(),
		"duration": res.Duration,
	}).Debug("Dockerfile parsed")
	return res
}

func (r *Runner) read(path string) ([]byte, error) {
	if path == StdinPath {
		content, err := io.ReadAll(r.stdin)
		return content, errors.Wrap(err, "failed to read standard input")
	}
	content, err := afero.ReadFile(r.fs, path)
	return content, errors.Wrapf(err, "failed to read %s", path)
}

func (r *Runner) parse(content []byte) (*dockerfile.Document, error) {
	if r.cache == nil {
		return r.parser.ParseBytes(content)
	}
	return r.cache.Load(content, r.parser.ParseBytes)
}

// IsDockerfile reports whether a file name looks like a Dockerfile:
// Dockerfile, Dockerfile.<suffix>, <prefix>.Dockerfile or Containerfile.
func IsDockerfile(name string) bool {
	base := filepath.Base(name)
	lower := strings.ToLower(base)
	switch {
	case lower == "dockerfile", lower == "containerfile":
		return true
	case strings.HasPrefix(lower, "dockerfile."), strings.HasSuffix(lower, ".dockerfile"):
		return true
	}
	return false
}

// Expand replaces directories in paths by the Dockerfiles found below them,
// sorted by name. Files and "-" are kept as given; duplicates are dropped.
func Expand(fs afero.Fs, paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		if p == StdinPath {
			add(p)
			continue
		}
		info, err := fs.Stat(p)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot access %s", p)
		}
		if !info.IsDir() {
			add(p)
			continue
		}

		var found []string
		err = afero.Walk(fs, p, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if path != p && skipDir(info.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if IsDockerfile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to walk %s", p)
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}
	return out, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor"
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Files    int `json:"files" yaml:"files"`
	Failed   int `json:"failed" yaml:"failed"`
	Errors   int `json:"errors" yaml:"errors"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Notices  int `json:"notices" yaml:"notices"`
}

// Summarize tallies parse failures and findings by severity.
func Summarize(results []*Result) Summary {
	s := Summary{Files: len(results)}
	for _, res := range results {
		if res.Failed() {
			s.Failed++
			continue
		}
		for _, w := range res.Warnings {
			switch w.Severity {
			case dockerfile.WarningError:
				s.Errors++
			case dockerfile.WarningWarning:
				s.Warnings++
			default:
				s.Notices++
			}
		}
	}
	return s
}
