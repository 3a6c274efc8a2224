// Package razor compiles Razor-style markup into Go templates and renders
// them with layouts, sections and start pages.
//
// A Service owns a cache of compiled templates keyed by name:
//
//	svc, _ := razor.New(razor.DefaultConfig())
//	out, err := svc.Parse(ctx, "Hello @Model.Name!", User{Name: "Ada"}, "hello")
//
// ViewEngine loads a tree of view files and renders them by virtual path.
package razor

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/tqc/go-razor/internal/codegen"
	"github.com/tqc/go-razor/internal/compiler"
	"github.com/tqc/go-razor/internal/markup"
	"github.com/tqc/go-razor/internal/registry"
	"github.com/tqc/go-razor/page"
)

// Service compiles, caches and runs templates. It is safe for concurrent use.
type Service struct {
	cfg      Config
	logger   *slog.Logger
	bases    codegen.Bases
	base     codegen.BaseType
	compiler *compiler.Compiler
	registry *registry.Registry
	executor *page.Executor

	mu     sync.RWMutex
	models map[string]reflect.Type
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	policy, err := cfg.policy()
	if err != nil {
		return nil, err
	}

	bases := codegen.DefaultBases()
	for _, b := range cfg.BaseTypes {
		if b.Name == "" {
			return nil, fmt.Errorf("[razor] base type without a name")
		}
		bases[b.Name] = b
	}
	base, ok := bases.Lookup(cfg.BaseType)
	if !ok {
		return nil, fmt.Errorf("[razor] unknown base type %q", cfg.BaseType)
	}

	namespaces := compiler.DefaultNamespaces(policy)
	for _, ns := range cfg.Namespaces {
		if _, ok := namespaces[ns]; !ok {
			return nil, fmt.Errorf("[razor] unknown namespace %q", ns)
		}
	}

	s := &Service{
		cfg:    cfg,
		logger: cfg.logger(),
		bases:  bases,
		base:   base,
		models: map[string]reflect.Type{},
		compiler: compiler.New(compiler.Options{
			Namespaces: namespaces,
			Bases:      bases,
			Policy:     policy,
			Timeout:    cfg.CompileTimeout,
			Logger:     cfg.logger(),
		}),
		registry: registry.New(),
	}
	s.executor = page.NewExecutor(&serviceResolver{s: s}, s.pathOptions(), s.logger)
	return s, nil
}

func (s *Service) pathOptions() page.PathOptions {
	opts := page.DefaultPathOptions()
	if s.cfg.ViewRoot != "" {
		opts.RootMarker = s.cfg.ViewRoot
	}
	if s.cfg.ViewStartName != "" {
		opts.StartPageName = s.cfg.ViewStartName
	}
	if len(s.cfg.Extensions) > 0 {
		opts.Extensions = s.cfg.Extensions
	}
	return opts
}

// Namespaces returns the namespaces every template imports.
func (s *Service) Namespaces() []string {
	return append([]string(nil), s.cfg.Namespaces...)
}

// RegisterModel makes the type of sample available to @model directives
// under name.
func (s *Service) RegisterModel(name string, sample any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[name] = reflect.TypeOf(sample)
}

// Compile compiles source for modelType and caches it under name. If name
// is already cached nothing is compiled. modelType may be nil.
func (s *Service) Compile(ctx context.Context, source string, modelType reflect.Type, name string) error {
	if name == "" {
		return ErrNameRequired
	}
	_, err := s.compile(ctx, source, modelType, name, false)
	return err
}

// CompileWithAnonymous compiles source for a model whose members are looked
// up by name at render time.
func (s *Service) CompileWithAnonymous(ctx context.Context, source string, name string) error {
	if name == "" {
		return ErrNameRequired
	}
	_, err := s.compile(ctx, source, nil, name, true)
	return err
}

// Parse renders the template cached under name, compiling source for the
// type of model first when the name is unknown. An empty name compiles a
// one-off template that is not cached.
func (s *Service) Parse(ctx context.Context, source string, model any, name string) (string, error) {
	unit, err := s.compile(ctx, source, reflect.TypeOf(model), name, false)
	if err != nil {
		return "", err
	}
	return s.run(unit, model)
}

// Run renders the cached template name without a model.
func (s *Service) Run(ctx context.Context, name string) (string, error) {
	return s.RunModel(ctx, nil, name)
}

// RunModel renders the cached template name with model.
func (s *Service) RunModel(ctx context.Context, model any, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	unit, err := s.registry.Get(name)
	if err != nil {
		return "", err
	}
	return s.run(unit, model)
}

// ParseToCode returns the source generated for the markup without compiling
// it. An empty baseTypeName selects the configured base.
func (s *Service) ParseToCode(source string, modelType reflect.Type, name, baseTypeName string) (string, error) {
	base := s.base
	if baseTypeName != "" {
		b, ok := s.bases.Lookup(baseTypeName)
		if !ok {
			return "", fmt.Errorf("[razor] unknown base type %q", baseTypeName)
		}
		base = b
	}
	src, _, err := s.generate(source, modelType, name, base, false)
	if err != nil {
		return "", err
	}
	return src.Text, nil
}

// Templates lists the names of the cached templates.
func (s *Service) Templates() []string {
	return s.registry.Names()
}

// IsCached reports whether a template is cached under name.
func (s *Service) IsCached(name string) bool {
	return s.registry.Contains(name)
}

func (s *Service) compile(ctx context.Context, source string, modelType reflect.Type, name string, dynamicModel bool) (*compiler.Unit, error) {
	unit, cached, err := s.registry.Compile(ctx, name, func(ctx context.Context) (*compiler.Unit, error) {
		src, mt, err := s.generate(source, modelType, name, s.base, dynamicModel)
		if err != nil {
			return nil, err
		}
		return s.compiler.Compile(ctx, name, src, mt)
	})
	if err != nil {
		s.logger.Error("template compilation failed", "name", name, "error", err)
		return nil, err
	}
	if !cached {
		s.logger.Info("template compiled", "name", name, "class", unit.Header.Class, "model", unit.Header.Model)
	}
	return unit, nil
}

// generate parses and generates source. A @model directive overrides the
// model type of the call; the returned type is the one compiled against.
func (s *Service) generate(source string, modelType reflect.Type, name string, base codegen.BaseType, dynamicModel bool) (*codegen.Source, reflect.Type, error) {
	doc, err := markup.Parse(name, source)
	if err != nil {
		return nil, nil, err
	}
	if doc.Model != "" {
		if modelType, dynamicModel, err = s.resolveModel(name, doc.Model, modelType); err != nil {
			return nil, nil, err
		}
	}
	src, err := codegen.GenerateDocument(doc, codegen.Options{
		Name:       name,
		ModelType:  modelType,
		Dynamic:    dynamicModel,
		Base:       &base,
		Namespaces: s.cfg.Namespaces,
	})
	if err != nil {
		return nil, nil, err
	}
	return src, modelType, nil
}

func (s *Service) resolveModel(name, declared string, given reflect.Type) (reflect.Type, bool, error) {
	if declared == codegen.DynamicModel {
		return nil, true, nil
	}
	s.mu.RLock()
	registered, ok := s.models[declared]
	s.mu.RUnlock()

	switch {
	case ok && (given == nil || given == registered):
		return registered, false, nil
	case !ok && given != nil && (given.String() == declared || given.Name() == declared):
		return given, false, nil
	case !ok && given == nil:
		return nil, false, modelError(name, "unknown model type %q", declared)
	}
	return nil, false, modelError(name, "model type %s does not match @model %s", given, declared)
}

func modelError(name, format string, args ...any) error {
	return &compiler.CompilationError{Name: name, Diagnostics: []compiler.Diagnostic{{
		Message:  fmt.Sprintf(format, args...),
		Location: compiler.Location{Template: name},
	}}}
}

func (s *Service) run(unit *compiler.Unit, model any) (string, error) {
	p, err := unit.NewPage()
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(unit.Name, "~/") {
		p.SetVirtualPath(unit.Name)
	}
	p.SetModel(model)
	return s.executor.Render(p)
}

// serviceResolver resolves layouts and start pages by template name.
type serviceResolver struct {
	s *Service
}

func (r *serviceResolver) StartPage(vp string) (page.Factory, bool) {
	unit, err := r.s.registry.Get(vp)
	if err != nil {
		return nil, false
	}
	return unit.NewPage, true
}

func (r *serviceResolver) ResolveLayout(layout string, _ *page.Page) (string, page.Factory, error) {
	unit, err := r.s.registry.Get(layout)
	if err != nil {
		return "", nil, err
	}
	return unit.Name, unit.NewPage, nil
}
