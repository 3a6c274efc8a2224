package razor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	Name string
}

func newTestService(t *testing.T, mutate ...func(*Config)) *Service {
	t.Helper()
	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	svc, err := New(cfg)
	require.NoError(t, err)
	return svc
}

func TestService_Parse(t *testing.T) {
	svc := newTestService(t)
	out, err := svc.Parse(context.Background(), "Hello @Model.Name!", user{Name: "Ada"}, "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!", out)
}

func TestService_ParseIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	src := `@section S {s}[@Model.Name]`

	first, err := svc.Parse(ctx, src, user{Name: "Ada"}, "idem")
	require.NoError(t, err)
	second, err := svc.Parse(ctx, src, user{Name: "Ada"}, "idem")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestService_SectionsAndLayout(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Compile(ctx, `<h1>@RenderSection("Title")</h1><p>@RenderBody()</p>`, nil, "_Layout"))
	out, err := svc.Parse(ctx, `@{ Layout = "_Layout"; }@section Title {My Page}content`, nil, "page")
	require.NoError(t, err)
	assert.Equal(t, "<h1>My Page</h1><p>content</p>", out)
}

func TestService_SelfReferencingLayoutIsTerminal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Compile(ctx, `@{ Layout = "B"; }<b>@RenderBody()</b>`, nil, "B"))
	require.NoError(t, svc.Compile(ctx, `@{ Layout = "B"; }a`, nil, "A"))

	out, err := svc.Run(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "<b>a</b>", out)
}

func TestService_LayoutCycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Compile(ctx, `@{ Layout = "A"; }b@RenderBody()`, nil, "B"))
	require.NoError(t, svc.Compile(ctx, `@{ Layout = "B"; }a`, nil, "A"))

	_, err := svc.Run(ctx, "A")
	var cycle *LayoutCycleError
	require.True(t, errors.As(err, &cycle), "got %v", err)
	assert.Equal(t, []string{"A", "B", "A"}, cycle.Chain)
}

func TestService_MissingSection(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Compile(ctx, `[@RenderSection("x")]`, nil, "required"))
	require.NoError(t, svc.Compile(ctx, `[@RenderSection("x", false)]`, nil, "optional"))

	_, err := svc.Parse(ctx, `@{ Layout = "required"; }body`, nil, "child1")
	var missing *MissingSectionError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, "x", missing.Section)

	out, err := svc.Parse(ctx, `@{ Layout = "optional"; }body`, nil, "child2")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestService_IsSectionDefined(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Compile(ctx, `@if (IsSectionDefined("Side")) {<aside>@RenderSection("Side")</aside>}@RenderBody()`, nil, "L"))

	out, err := svc.Parse(ctx, `@{ Layout = "L"; }@section Side {menu}main`, nil, "with")
	require.NoError(t, err)
	assert.Equal(t, "<aside>menu</aside>main", out)

	out, err = svc.Parse(ctx, `@{ Layout = "L"; }main`, nil, "without")
	require.NoError(t, err)
	assert.Equal(t, "main", out)
}

func TestService_NestedLayouts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Compile(ctx, `<html><head>@RenderSection("Head", false)</head>@RenderBody()</html>`, nil, "Root"))
	require.NoError(t, svc.Compile(ctx, `@{ Layout = "Root"; }@section Head {<title>@RenderSection("Title")</title>}<div>@RenderBody()</div>`, nil, "Column"))

	out, err := svc.Parse(ctx, `@{ Layout = "Column"; }@section Title {T}x`, nil, "content")
	require.NoError(t, err)
	assert.Equal(t, "<html><head><title>T</title></head><div>x</div></html>", out)
}

func TestService_CompileTwiceKeepsFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Compile(ctx, "first", nil, "same"))
	require.NoError(t, svc.Compile(ctx, "second", nil, "same"))

	out, err := svc.Run(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "first", out)
	assert.Equal(t, []string{"same"}, svc.Templates())
}

func TestService_CompileRequiresName(t *testing.T) {
	svc := newTestService(t)
	require.ErrorIs(t, svc.Compile(context.Background(), "x", nil, ""), ErrNameRequired)
	require.ErrorIs(t, svc.CompileWithAnonymous(context.Background(), "x", ""), ErrNameRequired)
}

func TestService_ParseWithoutNameIsNotCached(t *testing.T) {
	svc := newTestService(t)
	out, err := svc.Parse(context.Background(), "@Model.Name", user{Name: "x"}, "")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
	assert.Empty(t, svc.Templates())
}

func TestService_RunUnknown(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Run(context.Background(), "nope")
	require.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = svc.RunModel(context.Background(), user{}, "nope")
	var nf *TemplateNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nope", nf.Name)
}

func TestService_Errors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Parse(ctx, "@* open", nil, "p")
	var perr *ParseError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.False(t, svc.IsCached("p"))

	_, err = svc.Parse(ctx, "@Missing()", nil, "c")
	var cerr *CompilationError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.NotEmpty(t, cerr.Diagnostics)
	assert.False(t, svc.IsCached("c"))

	_, err = svc.Parse(ctx, "@Model.Age", user{Name: "x"}, "typed")
	require.True(t, errors.As(err, &cerr), "got %v", err)
}

func TestService_AnonymousModel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	model := struct {
		Name   string
		Nested struct{ City string }
	}{Name: "Ada"}
	model.Nested.City = "London"

	out, err := svc.Parse(ctx, "@Model.Name from @Model.Nested.City", model, "anon")
	require.NoError(t, err)
	assert.Equal(t, "Ada from London", out)

	_, err = svc.Parse(ctx, "@Model.Age", model, "anon-missing")
	var merr *MemberNotFoundError
	require.True(t, errors.As(err, &merr), "got %v", err)
	assert.Equal(t, "Age", merr.Member)
}

func TestService_PipelineOnAnonymousModel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	out, err := svc.Parse(ctx, `@(.Name)/@(printf "%s!" .Name)`, struct{ Name string }{"ada"}, "")
	require.NoError(t, err)
	assert.Equal(t, "ada/ada!", out)

	require.NoError(t, svc.Compile(ctx, "@model dynamic\n@section S {@(.Name)}@RenderSection(\"S\")", nil, "dyn-pipeline"))
	out, err = svc.RunModel(ctx, map[string]any{"Name": "map"}, "dyn-pipeline")
	require.NoError(t, err)
	assert.Equal(t, "map", out)
}

func TestService_ModelInsideLoop(t *testing.T) {
	type order struct {
		Customer string
		Items    []string
	}
	svc := newTestService(t)
	src := "@foreach (var it in Model.Items) {[@Model.Customer:@it:@(.Customer)]}"
	out, err := svc.Parse(context.Background(), src, order{Customer: "ada", Items: []string{"a", "b"}}, "loop")
	require.NoError(t, err)
	assert.Equal(t, "[ada:a:ada][ada:b:ada]", out)
}

func TestService_CompileWithAnonymous(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.CompileWithAnonymous(ctx, "@Model.Name", "dyn"))

	out, err := svc.RunModel(ctx, map[string]any{"Name": "map"}, "dyn")
	require.NoError(t, err)
	assert.Equal(t, "map", out)

	out, err = svc.RunModel(ctx, user{Name: "struct"}, "dyn")
	require.NoError(t, err)
	assert.Equal(t, "struct", out)
}

func TestService_ModelDirective(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	svc.RegisterModel("User", user{})

	require.NoError(t, svc.Compile(ctx, "@model User\nHi @Model.Name", nil, "typed"))
	out, err := svc.RunModel(ctx, user{Name: "Ada"}, "typed")
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada", out)

	err = svc.Compile(ctx, "@model User\n@Model.Age", nil, "typed-bad")
	var cerr *CompilationError
	require.True(t, errors.As(err, &cerr), "got %v", err)

	err = svc.Compile(ctx, "@model Unknown\nx", nil, "unknown")
	require.True(t, errors.As(err, &cerr), "got %v", err)

	err = svc.Compile(ctx, "@model User\nx", reflect.TypeOf(0), "mismatch")
	require.True(t, errors.As(err, &cerr), "got %v", err)

	require.NoError(t, svc.Compile(ctx, "@model dynamic\n@Model.Name", nil, "dynamic"))
	out, err = svc.RunModel(ctx, map[string]any{"Name": "m"}, "dynamic")
	require.NoError(t, err)
	assert.Equal(t, "m", out)
}

func TestService_HTMLBase(t *testing.T) {
	svc := newTestService(t, func(c *Config) {
		c.BaseType = "HtmlTemplateBase"
	})
	out, err := svc.Parse(context.Background(), `<p>@Model.Name</p>@Raw("<br>")`, user{Name: "<b>"}, "h")
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;b&gt;</p><br>", out)
}

func TestService_StartPages(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Compile(ctx, `@{ Layout = "Outer"; }`, nil, "~/Views/_ViewStart.cshtml"))
	require.NoError(t, svc.Compile(ctx, `[@RenderBody()]`, nil, "Outer"))
	require.NoError(t, svc.Compile(ctx, "x", nil, "~/Views/Home/Index.cshtml"))

	out, err := svc.Run(ctx, "~/Views/Home/Index.cshtml")
	require.NoError(t, err)
	assert.Equal(t, "[x]", out)
}

func TestService_ParseToCode(t *testing.T) {
	svc := newTestService(t)
	code, err := svc.ParseToCode("Hi @Model.Name", reflect.TypeOf(user{}), "gen", "HtmlTemplateBase")
	require.NoError(t, err)
	assert.Contains(t, code, "razor:base HtmlTemplateBase[razor.user]")
	assert.Contains(t, code, "{{clear}}Hi {{write .Name}}")
	assert.False(t, svc.IsCached("gen"))

	_, err = svc.ParseToCode("x", nil, "gen", "Nope")
	require.Error(t, err)
}

func TestService_ConcurrentParse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := []string{"a", "b", "c", "d"}[i%4]
			out, err := svc.Parse(ctx, "Hello @Model.Name!", user{Name: name}, "shared")
			assert.NoError(t, err)
			assert.Equal(t, "Hello "+name+"!", out)
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"shared"}, svc.Templates())
}

func TestNew_RejectsBadConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"base":      func(c *Config) { c.BaseType = "Nope" },
		"namespace": func(c *Config) { c.Namespaces = []string{"nope"} },
		"sanitizer": func(c *Config) { c.HTMLSanitizer = "loose" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
		})
	}
}

func TestNew_CustomBase(t *testing.T) {
	svc := newTestService(t, func(c *Config) {
		c.BaseTypes = []BaseType{{Name: "MailBase", Namespaces: []string{"core", "strings"}}}
		c.BaseType = "MailBase"
	})
	out, err := svc.Parse(context.Background(), "@Upper(Model.Name)", user{Name: "ada"}, "mail")
	require.NoError(t, err)
	assert.Equal(t, "ADA", out)
}
