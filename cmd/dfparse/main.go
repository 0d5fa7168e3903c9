package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shmocker/dfparse/internal/batch"
	"github.com/shmocker/dfparse/internal/cache"
	"github.com/shmocker/dfparse/internal/config"
	dferrors "github.com/shmocker/dfparse/internal/errors"
	"github.com/shmocker/dfparse/internal/report"
	"github.com/shmocker/dfparse/pkg/dockerfile"
)

var (
	// Version information (set by build)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// app holds what the commands need from the outside world.
type app struct {
	fs     afero.Fs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	tty    bool

	// Global flags
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *logrus.Logger
	log    *logrus.Entry
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dfparse",
		Short: "Parse and lint Dockerfiles",
		Long: `dfparse turns Dockerfiles into structured, ordered build steps.

It understands line continuations, embedded comments, exec arrays, quoted
literals, heredocs and parser directives, reports syntax errors with exact
positions and runs a set of lint rules on the result.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./.dfparse.yaml or $HOME/.dfparse.yaml)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringP("format", "o", config.FormatText, "output format: text, json or yaml")
	flags.Bool("no-color", false, "disable colored output")
	flags.Int64("max-size", dockerfile.MaxDocumentSize, "maximum Dockerfile size in bytes, 0 for no limit")
	flags.IntP("concurrency", "j", 0, "number of files processed in parallel (default: number of CPUs)")
	flags.String("log-level", logrus.InfoLevel.String(), "log level: debug, info, warn or error")
	flags.String("log-format", config.FormatText, "log format: text or json")

	lintCmd := &cobra.Command{
		Use:   "lint [flags] [PATH...]",
		Short: "Parse Dockerfiles and report lint findings",
		Long: `Parse Dockerfiles and report lint findings. Directories are searched for
Dockerfiles; "-" or no argument reads standard input.`,
		RunE: a.runLint,
	}
	lintCmd.Flags().Bool("strict", false, "fail on warnings, not only on errors")
	lintCmd.Flags().Bool("no-platform-check", false, "do not validate FROM --platform values")
	lintCmd.Flags().Bool("quiet-notices", false, "hide notices about instructions kept as raw text")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "parse [flags] [PATH...]",
			Short: "Parse Dockerfiles and print their steps",
			Long: `Parse Dockerfiles and print their steps. Directories are searched for
Dockerfiles; "-" or no argument reads standard input.`,
			RunE: a.runParse,
		},
		lintCmd,
		&cobra.Command{
			Use:   "fmt [flags] [PATH...]",
			Short: "Print Dockerfiles in canonical form",
			RunE:  a.runFmt,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(a.stdout, "dfparse version: %s\n", version)
				fmt.Fprintf(a.stdout, "Git commit: %s\n", commit)
				fmt.Fprintf(a.stdout, "Build time: %s\n", buildTime)
			},
		},
	)
	return rootCmd
}

// setup loads the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Flags())
	if err != nil {
		return dferrors.WithExitCode(err, dferrors.ExitConfig, "check the config file and DFPARSE_* environment variables")
	}
	if a.verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}
	if !a.tty {
		cfg.NoColor = true
	}
	a.cfg = cfg

	a.logger = cfg.NewLogger()
	a.logger.SetOutput(a.stderr)
	a.log = a.logger.WithField("run_id", uuid.NewString())
	a.log.WithFields(logrus.Fields{
		"version":     version,
		"config":      a.cfgFile,
		"format":      cfg.Format,
		"concurrency": cfg.Concurrency,
	}).Debug("configuration loaded")
	return nil
}

// run parses the inputs named by args.
func (a *app) run(ctx context.Context, args []string, validator *dockerfile.Validator) ([]*batch.Result, error) {
	if len(args) == 0 {
		args = []string{batch.StdinPath}
	}
	paths, err := batch.Expand(a.fs, args)
	if err != nil {
		return nil, dferrors.WithExitCode(err, dferrors.ExitIO, "")
	}
	if len(paths) == 0 {
		return nil, dferrors.Usage("no Dockerfiles found in %v", args)
	}

	opts := []batch.Option{
		batch.WithConcurrency(a.cfg.Concurrency),
		batch.WithCache(cache.New()),
		batch.WithStdin(a.stdin),
		batch.WithLogger(a.log),
	}
	if validator != nil {
		opts = append(opts, batch.WithValidator(validator))
	}
	parser := dockerfile.New(a.cfg.ParserOptions()...)
	return batch.New(a.fs, parser, opts...).Run(ctx, paths)
}

func (a *app) write(results []*batch.Result, steps bool) error {
	w, err := report.NewWriter(a.stdout, a.cfg.Format, a.cfg.NoColor)
	if err != nil {
		return dferrors.Usage("%v", err)
	}
	runID, _ := a.log.Data["run_id"].(string)
	return w.Write(report.Build(results, report.Options{Steps: steps, RunID: runID}))
}

func (a *app) runParse(cmd *cobra.Command, args []string) error {
	results, err := a.run(cmd.Context(), args, nil)
	if err != nil {
		return err
	}
	if err := a.write(results, true); err != nil {
		return err
	}
	return parseFailure(results)
}

func (a *app) runLint(cmd *cobra.Command, args []string) error {
	noPlatform, _ := cmd.Flags().GetBool("no-platform-check")
	quietNotices, _ := cmd.Flags().GetBool("quiet-notices")
	validator := dockerfile.NewValidator(
		dockerfile.WithPlatformCheck(!noPlatform),
		dockerfile.WithUnstructuredNotices(!quietNotices),
	)

	results, err := a.run(cmd.Context(), args, validator)
	if err != nil {
		return err
	}
	if err := a.write(results, false); err != nil {
		return err
	}
	if err := parseFailure(results); err != nil {
		return err
	}

	summary := batch.Summarize(results)
	switch {
	case summary.Errors > 0:
		return dferrors.WithExitCode(errors.Wrapf(dferrors.ErrLintFailed, "%d error(s)", summary.Errors), dferrors.ExitLint, "")
	case a.cfg.Strict && summary.Warnings > 0:
		return dferrors.WithExitCode(errors.Wrapf(dferrors.ErrLintFailed, "%d warning(s) in strict mode", summary.Warnings),
			dferrors.ExitLint, "run without --strict to tolerate warnings")
	}
	return nil
}

func (a *app) runFmt(cmd *cobra.Command, args []string) error {
	results, err := a.run(cmd.Context(), args, nil)
	if err != nil {
		return err
	}
	for _, res := range results {
		if res.Failed() {
			continue
		}
		if len(results) > 1 {
			fmt.Fprintf(a.stdout, "# %s\n", res.Path)
		}
		if _, err := io.WriteString(a.stdout, res.Document.String()); err != nil {
			return errors.Wrap(err, "failed to write output")
		}
	}
	return parseFailure(results)
}

// parseFailure returns the first parse error, annotated with the failure
// count when more than one input failed.
func parseFailure(results []*batch.Result) error {
	var first error
	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
			if first == nil {
				first = res.Err
			}
		}
	}
	if first == nil {
		return nil
	}
	if failed > 1 {
		first = errors.WithMessage(first, strconv.Itoa(failed)+" files failed, first")
	}
	return first
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func main() {
	a := &app{
		fs:     afero.NewOsFs(),
		stdin:  os.Stdin,
		stdout: colorable.NewColorableStdout(),
		stderr: colorable.NewColorableStderr(),
		tty:    isTerminal(os.Stdout),
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	os.Exit(execute(ctx, a, os.Args[1:]))
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, a *app, args []string) int {
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return dferrors.ExitOK
	}

	fields := logrus.Fields{"category": dferrors.Classify(err)}
	if hint := dferrors.Hint(err); hint != "" {
		fields["hint"] = hint
	}
	log := a.log
	if log == nil {
		// configuration failed before the logger existed
		log = logrus.NewEntry(&logrus.Logger{
			Out:       a.stderr,
			Formatter: new(logrus.TextFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		})
	}
	log.WithFields(fields).Error(err)

	if a.cfg == nil && dferrors.Classify(err) == dferrors.CategoryUnknown {
		// cobra rejected the command line before any command ran
		return dferrors.ExitUsage
	}
	return dferrors.ExitCode(err)
}
