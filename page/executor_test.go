package page

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqc/go-razor/internal/dynamic"
)

type fakeResolver struct {
	pages  map[string]func(p *Page) error
	starts map[string]func(p *Page) error
}

func (r *fakeResolver) factory(name string, body func(p *Page) error) Factory {
	return func() (*Page, error) {
		return New(Options{Name: name}, body), nil
	}
}

func (r *fakeResolver) StartPage(vp string) (Factory, bool) {
	body, ok := r.starts[vp]
	if !ok {
		return nil, false
	}
	return r.factory(vp, body), true
}

func (r *fakeResolver) ResolveLayout(layout string, _ *Page) (string, Factory, error) {
	body, ok := r.pages[layout]
	if !ok {
		return "", nil, &TemplateNotFoundError{Name: layout}
	}
	return layout, r.factory(layout, body), nil
}

func literal(s string) func(p *Page) error {
	return func(p *Page) error {
		p.WriteLiteral(s)
		return nil
	}
}

// wrapLayout renders "<prefix>[section S]body</prefix>".
func wrapLayout(prefix, section string, required bool) func(p *Page) error {
	return func(p *Page) error {
		p.WriteLiteral("<" + prefix + ">")
		if section != "" {
			s, err := p.RenderSection(section, required)
			if err != nil {
				return err
			}
			p.Write(s)
		}
		p.Write(p.RenderBody())
		p.WriteLiteral("</" + prefix + ">")
		return nil
	}
}

func newTestExecutor(r Resolver) *Executor {
	return NewExecutor(r, DefaultPathOptions(), nil)
}

func TestExecutor_BodyOnly(t *testing.T) {
	p := New(Options{Name: "p"}, literal("hi"))
	out, err := newTestExecutor(&fakeResolver{}).Render(p)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestExecutor_LayoutWithSection(t *testing.T) {
	r := &fakeResolver{pages: map[string]func(*Page) error{
		"L": wrapLayout("l", "S", true),
	}}
	p := New(Options{Name: "p"}, func(p *Page) error {
		p.SetLayout("L")
		if err := p.DefineSection("S", func() error {
			p.WriteLiteral("s")
			return nil
		}); err != nil {
			return err
		}
		p.WriteLiteral("body")
		return nil
	})

	out, err := newTestExecutor(r).Render(p)
	require.NoError(t, err)
	assert.Equal(t, "<l>sbody</l>", out)
}

func TestExecutor_NestedLayouts(t *testing.T) {
	r := &fakeResolver{pages: map[string]func(*Page) error{
		"Inner": func(p *Page) error {
			p.SetLayout("Outer")
			return wrapLayout("inner", "", false)(p)
		},
		"Outer": wrapLayout("outer", "", false),
	}}
	p := New(Options{Name: "p"}, func(p *Page) error {
		p.SetLayout("Inner")
		p.WriteLiteral("x")
		return nil
	})

	out, err := newTestExecutor(r).Render(p)
	require.NoError(t, err)
	assert.Equal(t, "<outer><inner>x</inner></outer>", out)
}

func TestExecutor_MissingSection(t *testing.T) {
	r := &fakeResolver{pages: map[string]func(*Page) error{
		"L": wrapLayout("l", "S", true),
	}}
	p := New(Options{Name: "p"}, func(p *Page) error {
		p.SetLayout("L")
		p.WriteLiteral("body")
		return nil
	})

	out, err := newTestExecutor(r).Render(p)
	var missing *MissingSectionError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "S", missing.Section)
	assert.Equal(t, "L", missing.Page)
	assert.Empty(t, out)
}

func TestExecutor_OptionalSection(t *testing.T) {
	r := &fakeResolver{pages: map[string]func(*Page) error{
		"L": wrapLayout("l", "S", false),
	}}
	p := New(Options{Name: "p"}, func(p *Page) error {
		p.SetLayout("L")
		p.WriteLiteral("body")
		return nil
	})

	out, err := newTestExecutor(r).Render(p)
	require.NoError(t, err)
	assert.Equal(t, "<l>body</l>", out)
}

func TestExecutor_InheritedSectionWins(t *testing.T) {
	r := &fakeResolver{pages: map[string]func(*Page) error{
		"L": func(p *Page) error {
			if err := p.DefineSection("S", func() error {
				p.WriteLiteral("layout")
				return nil
			}); err != nil {
				return err
			}
			assert.True(t, p.IsSectionDefined("S"))
			assert.False(t, p.IsSectionDefined("Other"))
			return wrapLayout("l", "S", true)(p)
		},
	}}
	p := New(Options{Name: "p"}, func(p *Page) error {
		p.SetLayout("L")
		return p.DefineSection("S", func() error {
			p.WriteLiteral("child")
			return nil
		})
	})

	out, err := newTestExecutor(r).Render(p)
	require.NoError(t, err)
	assert.Equal(t, "<l>child</l>", out)
}

func TestExecutor_SelfLayoutIsTerminal(t *testing.T) {
	p := New(Options{Name: "A"}, func(p *Page) error {
		p.SetLayout("A")
		p.WriteLiteral("a")
		return nil
	})
	r := &fakeResolver{pages: map[string]func(*Page) error{"A": literal("never")}}

	out, err := newTestExecutor(r).Render(p)
	require.NoError(t, err)
	assert.Equal(t, "a", out)
}

func TestExecutor_LayoutCycle(t *testing.T) {
	r := &fakeResolver{pages: map[string]func(*Page) error{
		"A": func(p *Page) error {
			p.SetLayout("B")
			return nil
		},
		"B": func(p *Page) error {
			p.SetLayout("A")
			return nil
		},
	}}
	p := New(Options{Name: "A"}, func(p *Page) error {
		p.SetLayout("B")
		return nil
	})

	_, err := newTestExecutor(r).Render(p)
	var cycle *LayoutCycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"A", "B", "A"}, cycle.Chain)
}

func TestExecutor_UnknownLayout(t *testing.T) {
	p := New(Options{Name: "p"}, func(p *Page) error {
		p.SetLayout("Nope")
		return nil
	})

	_, err := newTestExecutor(&fakeResolver{}).Render(p)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = newTestExecutor(nil).Render(New(Options{Name: "p"}, func(p *Page) error {
		p.SetLayout("Nope")
		return nil
	}))
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestExecutor_StartPages(t *testing.T) {
	var order []string
	r := &fakeResolver{
		starts: map[string]func(*Page) error{
			"~/Views/_ViewStart.cshtml": func(p *Page) error {
				order = append(order, "root")
				p.SetLayout("Outer")
				return nil
			},
			"~/Views/Home/_ViewStart.cshtml": func(p *Page) error {
				order = append(order, "home:"+p.Layout())
				p.SetLayout("Inner")
				return nil
			},
		},
		pages: map[string]func(*Page) error{
			"Inner": wrapLayout("inner", "", false),
		},
	}
	p := New(Options{Name: "p", VirtualPath: "~/Views/Home/Index.cshtml"}, literal("x"))

	out, err := newTestExecutor(r).Render(p)
	require.NoError(t, err)
	assert.Equal(t, "<inner>x</inner>", out)
	assert.Equal(t, []string{"root", "home:Outer"}, order)
}

func TestExecutor_PageLayoutOverridesStartPage(t *testing.T) {
	r := &fakeResolver{starts: map[string]func(*Page) error{
		"~/Views/_ViewStart.cshtml": func(p *Page) error {
			p.SetLayout("Missing")
			return nil
		},
	}}
	p := New(Options{Name: "p", VirtualPath: "~/Views/Index.cshtml"}, func(p *Page) error {
		p.SetLayout("")
		p.WriteLiteral("x")
		return nil
	})

	out, err := newTestExecutor(r).Render(p)
	require.NoError(t, err)
	assert.Equal(t, "x", out)
}

func TestExecutor_LayoutGetsRawModel(t *testing.T) {
	type model struct{ Name string }
	var seen any
	r := &fakeResolver{pages: map[string]func(*Page) error{
		"L": func(p *Page) error {
			seen = p.Model()
			p.Write(p.RenderBody())
			return nil
		},
	}}
	p := New(Options{Name: "p", DynamicModel: true}, func(p *Page) error {
		p.SetLayout("L")
		return nil
	})
	p.SetModel(model{Name: "Ada"})
	_, isObject := p.Model().(*dynamic.Object)
	require.True(t, isObject)

	_, err := newTestExecutor(r).Render(p)
	require.NoError(t, err)
	assert.Equal(t, model{Name: "Ada"}, seen)
}

func TestPage_DuplicateSection(t *testing.T) {
	p := New(Options{Name: "p"}, nil)
	noop := func() error { return nil }
	require.NoError(t, p.DefineSection("S", noop))

	var dup *DuplicateSectionError
	require.True(t, errors.As(p.DefineSection("S", noop), &dup))
	assert.Equal(t, "S", dup.Section)
}

func TestPathOptions_StartPageLevels(t *testing.T) {
	opts := DefaultPathOptions()
	opts.Extensions = []string{".cshtml", ".razor"}

	assert.Equal(t, [][]string{
		{"~/Views/_ViewStart.cshtml", "~/Views/_ViewStart.razor"},
		{"~/Views/Home/_ViewStart.cshtml", "~/Views/Home/_ViewStart.razor"},
	}, opts.StartPageLevels("~/Views/Home/Index.cshtml"))

	assert.Empty(t, opts.StartPageLevels("~/Pages/Index.cshtml"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running-layout", StateRunningLayout.String())
	assert.Equal(t, "state(9)", State(9).String())
}
