package page

import (
	"github.com/tqc/go-razor/internal/dynamic"
)

// HTML is markup that must be written without encoding. RenderBody,
// RenderSection and the Raw helper return it.
type HTML string

// Renderable is the core capability of a compiled page: run the generated
// body and collect what it writes.
type Renderable interface {
	Execute() error
	Write(v any)
	WriteLiteral(s string)
	Clear()
	Result() string
}

// Section is a deferred content block declared by a page. It writes into the
// declaring page's buffer when invoked.
type Section func() error

// Options describes a page instance produced by a compiled unit.
type Options struct {
	// Name is the page identity used for layout self and cycle checks.
	Name string
	// VirtualPath locates ancestor start pages. It may be empty.
	VirtualPath string
	// Encoder formats expression results. Defaults to TextEncoder.
	Encoder Encoder
	// DynamicModel routes model access through the dynamic adapter.
	DynamicModel bool
}

// Page is one execution of a compiled unit. Pages are created per render call
// and never reused across renders.
type Page struct {
	name         string
	virtualPath  string
	model        any
	raw          any
	layout       string
	body         string
	sections     map[string]Section
	inherited    map[string]Section
	buf          *Buffer
	enc          Encoder
	dynamicModel bool
	exec         func(*Page) error
}

var _ Renderable = (*Page)(nil)

// New creates a page whose body is run by exec.
func New(opts Options, exec func(*Page) error) *Page {
	enc := opts.Encoder
	if enc == nil {
		enc = TextEncoder{}
	}
	return &Page{
		name:         opts.Name,
		virtualPath:  opts.VirtualPath,
		sections:     map[string]Section{},
		buf:          NewBuffer(),
		enc:          enc,
		dynamicModel: opts.DynamicModel,
		exec:         exec,
	}
}

// Name returns the page identity.
func (p *Page) Name() string { return p.name }

// VirtualPath returns the hierarchical path used for start page discovery.
func (p *Page) VirtualPath() string { return p.virtualPath }

// SetVirtualPath overrides the virtual path of the page.
func (p *Page) SetVirtualPath(vp string) { p.virtualPath = vp }

// HasDynamicModel reports whether model access goes through the adapter.
func (p *Page) HasDynamicModel() bool { return p.dynamicModel }

// Model returns the bound model.
func (p *Page) Model() any { return p.model }

// SetModel binds v. Pages compiled for an anonymous model type get v wrapped
// in a dynamic object.
func (p *Page) SetModel(v any) {
	p.raw = v
	if p.dynamicModel && v != nil {
		if _, ok := v.(*dynamic.Object); !ok {
			p.model = dynamic.Wrap(v)
			return
		}
	}
	p.model = v
}

// RawModel returns the model as it was bound, before any wrapping.
func (p *Page) RawModel() any {
	if obj, ok := p.raw.(*dynamic.Object); ok {
		return obj.Unwrap()
	}
	return p.raw
}

// Layout returns the layout the page asked for.
func (p *Page) Layout() string { return p.layout }

// SetLayout chooses the layout page.
func (p *Page) SetLayout(name string) { p.layout = name }

// Body returns the captured body of the child page.
func (p *Page) Body() string { return p.body }

// Buffer returns the output buffer the page writes into.
func (p *Page) Buffer() *Buffer { return p.buf }

// Encoder returns the encoder used by Write.
func (p *Page) Encoder() Encoder { return p.enc }

// Sections returns the sections declared by this page.
func (p *Page) Sections() map[string]Section { return p.sections }

// Execute runs the generated body.
func (p *Page) Execute() error {
	if p.exec == nil {
		return nil
	}
	return p.exec(p)
}

// Write encodes v and appends it. Nil values write nothing.
func (p *Page) Write(v any) {
	if v == nil {
		return
	}
	_, _ = p.buf.WriteString(p.enc.Encode(v))
}

// WriteLiteral appends s as is.
func (p *Page) WriteLiteral(s string) {
	_, _ = p.buf.WriteString(s)
}

// Clear empties the output buffer.
func (p *Page) Clear() {
	p.buf.Reset()
}

// Result returns the current buffer contents.
func (p *Page) Result() string {
	return p.buf.String()
}

// DefineSection stores block under name. It is invoked lazily by a layout.
func (p *Page) DefineSection(name string, block Section) error {
	if _, ok := p.sections[name]; ok {
		return &DuplicateSectionError{Section: name, Page: p.name}
	}
	p.sections[name] = block
	return nil
}

// IsSectionDefined reports whether name can be rendered by this page.
func (p *Page) IsSectionDefined(name string) bool {
	_, ok := p.lookupSection(name)
	return ok
}

// RenderSection runs the named section and returns its output. A section that
// is not defined yields an empty string unless it is required.
func (p *Page) RenderSection(name string, required bool) (HTML, error) {
	block, ok := p.lookupSection(name)
	if !ok {
		if required {
			return "", &MissingSectionError{Section: name, Page: p.name}
		}
		return "", nil
	}
	out, err := p.buf.Capture(block)
	if err != nil {
		return "", err
	}
	return HTML(out), nil
}

// RenderBody returns the body captured from the child page.
func (p *Page) RenderBody() HTML {
	return HTML(p.body)
}

// Sections transferred from a child take precedence over the page's own.
func (p *Page) lookupSection(name string) (Section, bool) {
	if block, ok := p.inherited[name]; ok {
		return block, true
	}
	block, ok := p.sections[name]
	return block, ok
}

func (p *Page) resetForBody() {
	p.sections = map[string]Section{}
	p.buf.Reset()
}

// inherit hands the child's body, sections and buffer to a layout page.
func (p *Page) inherit(body string, sections map[string]Section, buf *Buffer) {
	p.body = body
	p.inherited = sections
	p.buf = buf
}
