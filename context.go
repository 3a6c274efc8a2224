package razor

import (
	"path"
	"strings"

	"github.com/tqc/go-razor/page"
)

// resolveContext resolves layouts and start pages against the views of an
// engine. It is the page.Resolver of the engine's executor.
type resolveContext struct {
	e *ViewEngine
}

var _ page.Resolver = resolveContext{}

func (r resolveContext) StartPage(vp string) (page.Factory, bool) {
	f, ok := r.e.lookup(vp)
	if !ok {
		return nil, false
	}
	return r.e.factory(f), true
}

// ResolveLayout maps a layout reference to a loaded view. References
// starting with "~/" are virtual paths; anything else is tried against the
// location formats with the requesting view's directory.
func (r resolveContext) ResolveLayout(layout string, from *page.Page) (string, page.Factory, error) {
	for _, vp := range r.candidates(layout, from.VirtualPath()) {
		if f, ok := r.e.lookup(vp); ok {
			return f.Name, r.e.factory(f), nil
		}
	}
	return "", nil, &page.TemplateNotFoundError{Name: layout}
}

func (r resolveContext) candidates(layout, fromVP string) []string {
	cfg := r.e.svc.cfg
	var bases []string
	if strings.HasPrefix(layout, "~/") {
		bases = []string{layout}
	} else {
		controller := controllerOf(fromVP, cfg.ViewRoot)
		for _, format := range cfg.LocationFormats {
			vp := strings.ReplaceAll(format, "{0}", layout)
			vp = strings.ReplaceAll(vp, "{1}", controller)
			bases = append(bases, path.Clean(vp))
		}
	}

	var out []string
	for _, b := range bases {
		if path.Ext(b) != "" {
			out = append(out, b)
			continue
		}
		for _, ext := range cfg.Extensions {
			out = append(out, b+ext)
		}
	}
	return out
}
