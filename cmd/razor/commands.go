package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	razor "github.com/tqc/go-razor"
	"github.com/tqc/go-razor/store"
)

func newCommandFlags(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("razor "+name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func parseCommand(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return true, nil
		}
		return false, usageError("%v", err)
	}
	return false, nil
}

// runGen writes the source generated for a markup file.
func runGen(_ context.Context, out io.Writer, svc *razor.Service, args []string) error {
	fs := newCommandFlags("gen", out)
	in := fs.String("in", "", "Markup file to generate from.")
	dst := fs.String("out", "", "Output file. Defaults to standard output.")
	base := fs.String("base", "", "Base type of the generated page.")
	name := fs.String("name", "", "Template name. Defaults to the input file name.")
	if exit, err := parseCommand(fs, args); exit || err != nil {
		return err
	}
	if *in == "" {
		return usageError("gen: -in is required")
	}

	raw, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	if *name == "" {
		*name = filepath.Base(*in)
	}
	code, err := svc.ParseToCode(string(raw), nil, *name, *base)
	if err != nil {
		return err
	}
	if *dst == "" {
		_, err = io.WriteString(out, code)
		return err
	}
	if err := atomic.WriteFile(*dst, strings.NewReader(code)); err != nil {
		return fmt.Errorf("failed to write %s: %w", *dst, err)
	}
	return nil
}

// runRender renders one view of a views directory.
func runRender(ctx context.Context, out io.Writer, svc *razor.Service, args []string) error {
	fs := newCommandFlags("render", out)
	views := fs.String("views", ".", "Directory containing the Views tree.")
	viewName := fs.String("view", "", "View to render, e.g. Home/Index or ~/Views/Home/Index.cshtml.")
	modelPath := fs.String("model", "", "YAML or JSON file holding the model.")
	dbPath := fs.String("db", "", "Precompiled view database to load before the views directory.")
	if exit, err := parseCommand(fs, args); exit || err != nil {
		return err
	}
	if *viewName == "" {
		return usageError("render: -view is required")
	}

	var model any
	if *modelPath != "" {
		raw, err := os.ReadFile(*modelPath)
		if err != nil {
			return err
		}
		var m map[string]any
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("failed to parse model %s: %w", *modelPath, err)
		}
		model = m
	}

	engine := razor.NewEngine(*views, svc)
	if *dbPath != "" {
		st, closeStore, err := openStore(*dbPath)
		if err != nil {
			return err
		}
		defer closeStore()
		if err := engine.LoadPrecompiled(ctx, st); err != nil {
			return err
		}
	}
	if err := engine.Load(ctx); err != nil {
		return err
	}
	return engine.Render(out, *viewName, model)
}

// runPrecompile stores every view of a views directory.
func runPrecompile(ctx context.Context, out io.Writer, svc *razor.Service, logger *slog.Logger, args []string) error {
	fs := newCommandFlags("precompile", out)
	views := fs.String("views", ".", "Directory containing the Views tree.")
	dbPath := fs.String("db", "", "SQLite database to write.")
	if exit, err := parseCommand(fs, args); exit || err != nil {
		return err
	}
	if *dbPath == "" {
		return usageError("precompile: -db is required")
	}

	engine := razor.NewEngine(*views, svc)
	if err := engine.Load(ctx); err != nil {
		return err
	}
	st, closeStore, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := engine.Precompile(ctx, st); err != nil {
		return err
	}
	logger.Info("views precompiled", "views", len(engine.Views()), "db", *dbPath)
	fmt.Fprintf(out, "precompiled %d views\n", len(engine.Views()))
	return nil
}

func openStore(path string) (*store.Store, func(), error) {
	db, err := initDB(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	st, err := store.New(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return st, func() {
		st.Close()
		_ = db.Close()
	}, nil
}
