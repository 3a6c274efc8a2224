package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	razor "github.com/tqc/go-razor"
)

// ExitError is an error carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

type globalOptions struct {
	configPath string
	service    string
	logLevel   string
	logFormat  string
}

const usage = `
razor - compile and render Razor-style views.

Usage:
  razor [options] <command> [command options]

Commands:
  gen         generate template source from a markup file
  render      render a view from a views directory
  precompile  store the generated source of every view in SQLite

Options:
`

// run parses the global options and dispatches the command.
func run(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("razor", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}

	var opts globalOptions
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file.")
	fs.StringVar(&opts.service, "service", "", "Configured service to use. Defaults to the file's default.")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Logging level: 'debug', 'info', 'warn' or 'error'.")
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log output format: 'text' or 'json'.")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return usageError("%v", err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil
	}

	logger, err := newLogger(os.Stderr, opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}
	svc, err := newService(opts, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "gen":
		return runGen(ctx, out, svc, rest)
	case "render":
		return runRender(ctx, out, svc, rest)
	case "precompile":
		return runPrecompile(ctx, out, svc, logger, rest)
	}
	return usageError("unknown command %q", cmd)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	hopts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return nil, usageError("invalid log-format: must be 'text' or 'json'")
}

func newService(opts globalOptions, logger *slog.Logger) (*razor.Service, error) {
	if opts.configPath == "" {
		cfg := razor.DefaultConfig()
		cfg.Logger = logger
		return razor.New(cfg)
	}
	fc, err := razor.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	name := opts.service
	if name == "" {
		name = fc.Default
	}
	cfg, ok := fc.Services[name]
	if !ok {
		return nil, usageError("service %q is not configured", name)
	}
	cfg.Logger = logger.With("service", name)
	return razor.New(cfg)
}
