package page

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// State is a step of the render state machine.
type State int

const (
	StateInit State = iota
	StateRunningViewStart
	StateRunningBody
	StateRunningLayout
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunningViewStart:
		return "running-view-start"
	case StateRunningBody:
		return "running-body"
	case StateRunningLayout:
		return "running-layout"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Factory produces a fresh page instance.
type Factory func() (*Page, error)

// Resolver locates the pages a render chain needs besides the content page.
type Resolver interface {
	// StartPage returns the start page registered under the virtual path vp.
	StartPage(vp string) (Factory, bool)
	// ResolveLayout maps the layout reference made by from to the identity of
	// the layout page and a factory for it.
	ResolveLayout(layout string, from *Page) (string, Factory, error)
}

// PathOptions describes the virtual path convention used to find start pages.
type PathOptions struct {
	// Delimiter separates path segments.
	Delimiter string
	// RootMarker bounds the upward walk: it stops once the remaining path no
	// longer contains the marker.
	RootMarker string
	// StartPageName is the file name of a start page without extension.
	StartPageName string
	// Extensions are tried in order at every level.
	Extensions []string
}

// DefaultPathOptions returns the "~/Views/.../_ViewStart.cshtml" convention.
func DefaultPathOptions() PathOptions {
	return PathOptions{
		Delimiter:     "/",
		RootMarker:    "/Views/",
		StartPageName: "_ViewStart",
		Extensions:    []string{".cshtml"},
	}
}

// StartPageLevels lists the candidate start page paths for vp, one slice per
// directory level, outermost level first.
func (o PathOptions) StartPageLevels(vp string) [][]string {
	if o.Delimiter == "" || o.RootMarker == "" {
		return nil
	}
	var levels [][]string
	for strings.Contains(vp, o.RootMarker) {
		i := strings.LastIndex(vp, o.Delimiter)
		if i < 0 {
			break
		}
		vp = vp[:i]
		level := make([]string, 0, len(o.Extensions))
		for _, ext := range o.Extensions {
			level = append(level, vp+o.Delimiter+o.StartPageName+ext)
		}
		levels = append(levels, level)
	}
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
	return levels
}

// Executor runs the render chain of a content page: start pages, the page
// body and any number of layouts.
type Executor struct {
	resolver Resolver
	paths    PathOptions
	logger   *slog.Logger
}

// NewExecutor returns an executor resolving pages through r.
func NewExecutor(r Resolver, paths PathOptions, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{resolver: r, paths: paths, logger: logger}
}

// Render executes p and its layouts and returns the composed output. Nothing
// is returned on failure.
func (e *Executor) Render(p *Page) (string, error) {
	out, err := e.render(p)
	if err != nil {
		e.transition(p, StateFailed, "error", err)
		return "", err
	}
	e.transition(p, StateDone, "bytes", len(out))
	return out, nil
}

func (e *Executor) render(p *Page) (string, error) {
	e.transition(p, StateRunningViewStart)
	if err := e.runStartPages(p); err != nil {
		return "", err
	}

	e.transition(p, StateRunningBody)
	p.resetForBody()
	if err := p.Execute(); err != nil {
		return "", err
	}
	p.body = p.buf.String()
	p.buf.Reset()

	var (
		out      = p.body
		sections = p.sections
		current  = p
		visited  = map[string]bool{}
		chain    []string
	)
	if p.name != "" {
		visited[p.name] = true
		chain = append(chain, p.name)
	}

	for k := 1; current.layout != ""; k++ {
		if e.resolver == nil {
			return "", &TemplateNotFoundError{Name: current.layout}
		}
		key, factory, err := e.resolver.ResolveLayout(current.layout, current)
		if err != nil {
			return "", err
		}
		// A page naming itself as layout is the top of the chain.
		if key != "" && key == current.name {
			break
		}
		if visited[key] {
			return "", &LayoutCycleError{Chain: append(chain, key)}
		}
		visited[key] = true
		chain = append(chain, key)

		layout, err := factory()
		if err != nil {
			return "", err
		}
		layout.SetModel(p.RawModel())
		layout.inherit(out, sections, p.buf)

		e.transition(layout, StateRunningLayout, "depth", k)
		if err := layout.Execute(); err != nil {
			return "", err
		}
		out = layout.buf.String()
		layout.buf.Reset()
		sections = layout.sections
		current = layout
	}
	return out, nil
}

// runStartPages seeds p's layout from the start pages above its virtual path.
// Start pages run outer to inner with no model; each sees the layout chosen
// by the ones before it.
func (e *Executor) runStartPages(p *Page) error {
	if p.virtualPath == "" || e.resolver == nil {
		return nil
	}
	layout := p.layout
	for _, level := range e.paths.StartPageLevels(p.virtualPath) {
		for _, candidate := range level {
			if candidate == p.virtualPath {
				continue
			}
			factory, ok := e.resolver.StartPage(candidate)
			if !ok {
				continue
			}
			sp, err := factory()
			if err != nil {
				return err
			}
			sp.layout = layout
			if err := sp.Execute(); err != nil {
				return fmt.Errorf("[%s] start page: %w", candidate, err)
			}
			layout = sp.layout
			e.logger.Debug("start page executed", "page", p.name, "start_page", candidate, "layout", layout)
			break
		}
	}
	p.layout = layout
	return nil
}

func (e *Executor) transition(p *Page, s State, attrs ...any) {
	args := append([]any{"page", p.name, "state", s.String()}, attrs...)
	e.logger.Debug("render state", args...)
}
