// Package compiler turns generated template source into executable units.
// Source is parsed with text/template and, when the model type is static,
// type checked against it with templatecheck.
package compiler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"text/template"
	"time"

	"github.com/jba/templatecheck"
	"github.com/microcosm-cc/bluemonday"

	"github.com/tqc/go-razor/internal/codegen"
	"github.com/tqc/go-razor/internal/dynamic"
	"github.com/tqc/go-razor/page"
)

// Options configure a Compiler.
type Options struct {
	Namespaces Namespaces
	Bases      codegen.Bases
	// Policy backs the html namespace's Sanitize helper when Namespaces is
	// nil.
	Policy *bluemonday.Policy
	// Timeout bounds a single compilation. Zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Compiler compiles generated source. It is safe for concurrent use.
type Compiler struct {
	namespaces Namespaces
	bases      codegen.Bases
	timeout    time.Duration
	logger     *slog.Logger
}

// New returns a compiler. Missing options fall back to the built-ins.
func New(opts Options) *Compiler {
	c := &Compiler{
		namespaces: opts.Namespaces,
		bases:      opts.Bases,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
	if c.namespaces == nil {
		c.namespaces = DefaultNamespaces(opts.Policy)
	}
	if c.bases == nil {
		c.bases = codegen.DefaultBases()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Unit is a compiled template. It is immutable; every render works on a
// fresh page from NewPage.
type Unit struct {
	Name       string
	Header     codegen.Header
	Source     string
	ModelType  reflect.Type
	CompiledAt time.Time

	tmpl *template.Template
	enc  page.Encoder
}

// NewPage instantiates a page bound to a private copy of the unit's
// template.
func (u *Unit) NewPage() (*page.Page, error) {
	t, err := u.tmpl.Clone()
	if err != nil {
		return nil, fmt.Errorf("[compiler] failed to clone %q: %w", u.Name, err)
	}
	p := page.New(page.Options{
		Name:         u.Name,
		Encoder:      u.enc,
		DynamicModel: u.Header.DynamicModel,
	}, func(p *page.Page) error {
		return t.Execute(p.Buffer(), p.Model())
	})
	t.Funcs(instanceFuncs(p, t))
	return p, nil
}

// instanceFuncs binds the page protocol functions used by generated source.
// Compilation binds them to a nil page so the signatures are known to the
// parser and the type checker.
func instanceFuncs(p *page.Page, t *template.Template) template.FuncMap {
	return template.FuncMap{
		"clear": func() string {
			p.Clear()
			return ""
		},
		"write": func(v any) string {
			p.Write(v)
			return ""
		},
		"writeLiteral": func(s string) string {
			p.WriteLiteral(s)
			return ""
		},
		"member": dynamic.Member,
		// withModel is ranged over to bind dot to the unwrapped model. A
		// one-element slice keeps zero models, which with would skip.
		"withModel": func() []any {
			return []any{p.RawModel()}
		},
		"setLayout": func(name string) string {
			p.SetLayout(name)
			return ""
		},
		"defineSection": func(name string) (string, error) {
			return "", p.DefineSection(name, func() error {
				return t.ExecuteTemplate(p.Buffer(), codegen.SectionPrefix+name, p.Model())
			})
		},
		"renderSection": func(name string, required bool) (page.HTML, error) {
			return p.RenderSection(name, required)
		},
		"renderBody": func() page.HTML {
			return p.RenderBody()
		},
		"isSectionDefined": func(name string) bool {
			return p.IsSectionDefined(name)
		},
	}
}

// CompileText compiles previously generated source, recovering its header.
func (c *Compiler) CompileText(ctx context.Context, name, text string, modelType reflect.Type) (*Unit, error) {
	h, err := codegen.ReadHeader(text)
	if err != nil {
		return nil, &CompilationError{Name: name, Diagnostics: []Diagnostic{{
			Message:  err.Error(),
			Location: Location{Template: name},
		}}}
	}
	return c.Compile(ctx, name, &codegen.Source{Header: h, Name: name, Text: text}, modelType)
}

// Compile compiles src. name becomes the root template name; when empty the
// generated class name is used. The compilation is abandoned when ctx is done
// or the configured timeout elapses.
func (c *Compiler) Compile(ctx context.Context, name string, src *codegen.Source, modelType reflect.Type) (*Unit, error) {
	if name == "" {
		name = src.Class
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("[compiler] compile %q: %w", name, err)
	}

	type result struct {
		unit *Unit
		err  error
	}
	start := time.Now()
	done := make(chan result, 1)
	go func() {
		u, err := c.compile(name, src, modelType)
		done <- result{u, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("[compiler] compile %q: %w", name, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		c.logger.Debug("compiled template",
			"name", name,
			"class", src.Class,
			"base", src.Base,
			"duration", time.Since(start))
		return r.unit, nil
	}
}

func (c *Compiler) compile(name string, src *codegen.Source, modelType reflect.Type) (*Unit, error) {
	cerr := &CompilationError{Name: name}

	base, ok := c.bases.Lookup(src.BaseName())
	if !ok {
		cerr.Diagnostics = append(cerr.Diagnostics, Diagnostic{
			Message:  fmt.Sprintf("base type %q is not registered", src.BaseName()),
			Location: Location{Template: name},
		})
	}
	nsFuncs, diags := c.namespaces.Funcs(name, src.Imports)
	cerr.Diagnostics = append(cerr.Diagnostics, diags...)
	if len(cerr.Diagnostics) > 0 {
		return nil, cerr
	}

	protocol := instanceFuncs(nil, nil)
	t, err := template.New(name).
		Option("missingkey=error").
		Funcs(nsFuncs).
		Funcs(protocol).
		Parse(src.Text)
	if err != nil {
		cerr.Diagnostics = append(cerr.Diagnostics, diagnose(name, err))
		return nil, cerr
	}

	if checkable(modelType, src.DynamicModel) {
		dot := reflect.Zero(modelType).Interface()
		if err := templatecheck.CheckText(t, dot); err != nil {
			cerr.Diagnostics = append(cerr.Diagnostics, diagnose(name, err))
		}
		for _, s := range src.Sections {
			st := t.Lookup(codegen.SectionPrefix + s)
			if st == nil {
				continue
			}
			if err := templatecheck.CheckText(st, dot); err != nil {
				cerr.Diagnostics = append(cerr.Diagnostics, diagnose(name, err))
			}
		}
		if len(cerr.Diagnostics) > 0 {
			return nil, cerr
		}
	}

	var enc page.Encoder = page.TextEncoder{}
	if base.HTML {
		enc = page.HTMLEncoder{}
	}
	return &Unit{
		Name:       name,
		Header:     src.Header,
		Source:     src.Text,
		ModelType:  modelType,
		CompiledAt: time.Now(),
		tmpl:       t,
		enc:        enc,
	}, nil
}

// checkable reports whether generated source can be type checked against
// modelType. Dynamic and interface models are only known at render time.
func checkable(modelType reflect.Type, dynamicModel bool) bool {
	if modelType == nil || dynamicModel {
		return false
	}
	return modelType.Kind() != reflect.Interface
}
