package razor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tqc/go-razor/internal/codegen"
	"github.com/tqc/go-razor/internal/compiler"
	"github.com/tqc/go-razor/page"
	"github.com/tqc/go-razor/store"
)

// ViewEngine loads view files from a filesystem, compiles them through a
// Service and renders them by virtual path.
type ViewEngine struct {
	dirPrefix       string
	fs              fs.FS
	svc             *Service
	executor        *page.Executor
	parsedFiles     map[string]*ParsedFile
	lastCompileTime int64
	mu              sync.RWMutex
}

// NewEngine creates a new engine pointing to a directory with views.
func NewEngine(dir string, svc *Service) *ViewEngine {
	return NewEngineFS(os.DirFS(dir), svc)
}

// NewEngineFS creates a new engine pointing to a filesystem.
// When using embed.FS, pass the embedded folder as prefix.
func NewEngineFS(fsys fs.FS, svc *Service, prefix ...string) *ViewEngine {
	var dirPrefix string
	if len(prefix) > 0 {
		dirPrefix = prefix[0]
	}
	e := &ViewEngine{
		dirPrefix:       dirPrefix,
		fs:              fsys,
		svc:             svc,
		parsedFiles:     map[string]*ParsedFile{},
		lastCompileTime: -1,
	}
	e.executor = page.NewExecutor(resolveContext{e: e}, svc.pathOptions(), svc.logger)
	return e
}

// Load reads every view file from the filesystem and compiles the ones that
// changed since the last load. A changed file is compiled under a new key;
// renders already holding the previous unit are unaffected. Files that
// disappeared are dropped.
func (e *ViewEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	seen := map[string]bool{}
	compiled := 0

	root := "."
	if e.dirPrefix != "" {
		root = e.dirPrefix
	}
	err := fs.WalkDir(e.fs, root, func(p string, info fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if !slices.Contains(e.svc.cfg.Extensions, ext) {
			return nil
		}
		vp := e.virtualPath(p)
		seen[vp] = true

		stats, err := info.Info()
		if err != nil {
			return err
		}
		if old, ok := e.parsedFiles[vp]; ok && !old.Precompiled && stats.ModTime().UnixMilli() <= e.lastCompileTime {
			return nil
		}

		raw, err := fs.ReadFile(e.fs, p)
		if err != nil {
			return err
		}
		f := newParsedFile(vp, string(raw), time.Now().UnixMilli())
		if old, ok := e.parsedFiles[vp]; ok && old.Hash == f.Hash {
			if old.Precompiled {
				e.parsedFiles[vp] = f
			}
			return nil
		}
		if _, err := e.svc.compile(ctx, f.Raw, nil, f.Name, false); err != nil {
			return fmt.Errorf("[%s] %w", vp, err)
		}
		e.parsedFiles[vp] = f
		compiled++
		return nil
	})
	if err != nil {
		return err
	}

	for vp, f := range e.parsedFiles {
		if !seen[vp] && !f.Precompiled {
			delete(e.parsedFiles, vp)
		}
	}
	e.lastCompileTime = start.UnixMilli()
	e.svc.logger.Info("views loaded", "views", len(e.parsedFiles), "compiled", compiled, "duration", time.Since(start))
	return nil
}

// Render renders view into w. view is a virtual path such as
// "~/Views/Home/Index.cshtml" or a "Controller/View" pair such as
// "Home/Index".
func (e *ViewEngine) Render(w io.Writer, view string, model any) error {
	f, ok := e.findView(view)
	if !ok {
		return &page.TemplateNotFoundError{Name: view}
	}
	p, err := e.factory(f)()
	if err != nil {
		return err
	}
	p.SetModel(model)
	out, err := e.executor.Render(p)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// Sources returns the generated source of every loaded view keyed by
// virtual path.
func (e *ViewEngine) Sources() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]string, len(e.parsedFiles))
	for vp, f := range e.parsedFiles {
		if u, err := e.svc.registry.Get(f.Name); err == nil {
			out[vp] = u.Source
		}
	}
	return out
}

// Views lists the loaded virtual paths in sorted order.
func (e *ViewEngine) Views() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	vps := make([]string, 0, len(e.parsedFiles))
	for vp := range e.parsedFiles {
		vps = append(vps, vp)
	}
	sort.Strings(vps)
	return vps
}

// Precompile writes the generated source of every loaded view to st.
func (e *ViewEngine) Precompile(ctx context.Context, st *store.Store) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for vp, f := range e.parsedFiles {
		u, err := e.svc.registry.Get(f.Name)
		if err != nil {
			return err
		}
		if err := st.Put(ctx, store.View{
			VirtualPath: vp,
			SourceHash:  f.Hash,
			Generated:   u.Source,
			CompiledAt:  u.CompiledAt,
		}); err != nil {
			return err
		}
	}
	return nil
}

// LoadPrecompiled compiles the views stored in st without their markup.
// A later Load skips files whose content matches the stored hash.
func (e *ViewEngine) LoadPrecompiled(ctx context.Context, st *store.Store) error {
	views, err := st.List(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range views {
		key := unitKey(v.VirtualPath, v.SourceHash)
		if _, err := e.svc.registry.Get(key); err != nil {
			if err := e.compilePrecompiled(ctx, key, v.Generated); err != nil {
				return fmt.Errorf("[%s] %w", v.VirtualPath, err)
			}
		}
		e.parsedFiles[v.VirtualPath] = &ParsedFile{
			Name:        key,
			VirtualPath: v.VirtualPath,
			Hash:        v.SourceHash,
			Precompiled: true,
			ParsedAt:    v.CompiledAt.UnixMilli(),
		}
	}
	e.svc.logger.Info("precompiled views loaded", "views", len(views))
	return nil
}

func (e *ViewEngine) compilePrecompiled(ctx context.Context, key, text string) error {
	_, _, err := e.svc.registry.Compile(ctx, key, func(ctx context.Context) (*compiler.Unit, error) {
		h, err := codegen.ReadHeader(text)
		if err != nil {
			return nil, err
		}
		var modelType reflect.Type
		if h.Model != "" && !h.DynamicModel {
			e.svc.mu.RLock()
			modelType = e.svc.models[h.Model]
			e.svc.mu.RUnlock()
		}
		return e.svc.compiler.CompileText(ctx, key, text, modelType)
	})
	return err
}

func (e *ViewEngine) lookup(vp string) (*ParsedFile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.parsedFiles[vp]
	return f, ok
}

// findView resolves a view reference to a loaded file.
func (e *ViewEngine) findView(view string) (*ParsedFile, bool) {
	cfg := e.svc.cfg
	base := view
	if !strings.HasPrefix(view, "~/") {
		base = "~" + path.Join(cfg.ViewRoot, view)
	}
	if path.Ext(base) != "" {
		return e.lookup(base)
	}
	for _, ext := range cfg.Extensions {
		if f, ok := e.lookup(base + ext); ok {
			return f, true
		}
	}
	return nil, false
}

// factory returns a page factory for f's current unit.
func (e *ViewEngine) factory(f *ParsedFile) page.Factory {
	return func() (*page.Page, error) {
		u, err := e.svc.registry.Get(f.Name)
		if err != nil {
			return nil, err
		}
		p, err := u.NewPage()
		if err != nil {
			return nil, err
		}
		p.SetVirtualPath(f.VirtualPath)
		return p, nil
	}
}

// virtualPath converts a filesystem path to a virtual path relative to the
// engine dir.
func (e *ViewEngine) virtualPath(p string) string {
	if e.dirPrefix != "" {
		p = strings.TrimPrefix(strings.TrimPrefix(p, e.dirPrefix), "/")
	}
	return "~/" + p
}
