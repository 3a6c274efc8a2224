// Package codegen turns a parsed template into Go text/template source. The
// generated source carries a metadata header and calls back into the page
// runtime through a small set of functions bound per page instance:
// clear, write, writeLiteral, member, setLayout, defineSection,
// renderSection, renderBody and isSectionDefined.
package codegen

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tqc/go-razor/internal/dynamic"
	"github.com/tqc/go-razor/internal/markup"
)

// SectionPrefix prefixes the associated template holding a section body.
const SectionPrefix = "section:"

// DynamicModel is the model name recorded for dynamic models.
const DynamicModel = "dynamic"

// helpers maps helper names used in markup to page runtime functions.
var helpers = map[string]string{
	"RenderBody":       "renderBody",
	"RenderSection":    "renderSection",
	"IsSectionDefined": "isSectionDefined",
}

// Options control a single generation.
type Options struct {
	// Name is used in error messages.
	Name string
	// ModelType is the model type the page is generated for. Nil means the
	// page has no model.
	ModelType reflect.Type
	// Dynamic forces model member access through the dynamic adapter. It
	// is implied for anonymous model types.
	Dynamic bool
	// Base defaults to TemplateBase.
	Base *BaseType
	// Namespaces are imported before the base's own.
	Namespaces []string
}

// Source is generated template source.
type Source struct {
	Header
	Name string
	Text string
}

// Generate parses markup and generates source for it.
func Generate(markupSrc string, opts Options) (*Source, error) {
	doc, err := markup.Parse(opts.Name, markupSrc)
	if err != nil {
		return nil, err
	}
	return GenerateDocument(doc, opts)
}

// GenerateDocument generates source for an already parsed document.
func GenerateDocument(doc *markup.Document, opts Options) (*Source, error) {
	base := TemplateBase
	if opts.Base != nil {
		base = *opts.Base
	}
	dyn := opts.Dynamic || (opts.ModelType != nil && dynamic.IsAnonymous(opts.ModelType))

	h := Header{
		Class:        "Template_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		DynamicModel: dyn,
		Imports:      mergeNamespaces(opts.Namespaces, base.Namespaces),
	}
	switch {
	case dyn:
		h.Model = DynamicModel
		h.Base = base.Name + "[" + DynamicModel + "]"
	case opts.ModelType != nil:
		h.Model = opts.ModelType.String()
		h.Base = base.Name + "[" + h.Model + "]"
	default:
		h.Base = base.Name
	}

	g := &generator{name: opts.Name, dynamic: dyn, sections: map[string]bool{}}
	var body strings.Builder
	body.WriteString("{{clear}}")
	if err := g.emit(&body, doc.Nodes, nil); err != nil {
		return nil, err
	}
	h.Sections = g.order

	var out strings.Builder
	out.WriteString(h.render())
	out.WriteString(body.String())
	out.WriteString(g.defines.String())
	return &Source{Header: h, Name: opts.Name, Text: out.String()}, nil
}

func mergeNamespaces(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, ns := range list {
			ns = strings.TrimSpace(ns)
			if ns == "" || seen[ns] {
				continue
			}
			seen[ns] = true
			out = append(out, ns)
		}
	}
	return out
}

type generator struct {
	name     string
	dynamic  bool
	sections map[string]bool
	order    []string
	defines  strings.Builder
}

func (g *generator) errorf(pos markup.Pos, format string, args ...any) error {
	return &markup.ParseError{Template: g.name, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// emit writes nodes to w. vars holds the loop variables in scope.
func (g *generator) emit(w *strings.Builder, nodes []markup.Node, vars []string) error {
	for _, n := range nodes {
		switch n := n.(type) {
		case *markup.Text:
			// A trailing brace would merge with the next action's delimiter.
			if strings.Contains(n.Value, "{{") || strings.Contains(n.Value, "}}") || strings.HasSuffix(n.Value, "{") {
				fmt.Fprintf(w, "{{writeLiteral %s}}", strconv.Quote(n.Value))
			} else {
				w.WriteString(n.Value)
			}
		case *markup.Expr:
			fmt.Fprintf(w, "{{write %s}}", g.operand(n.Path, vars))
		case *markup.Call:
			call, err := g.call(n, vars)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "{{write (%s)}}", call)
		case *markup.Pipeline:
			// Dot is the wrapped model on dynamic pages and the element
			// inside a loop; rebind it to the model as bound by the caller.
			if g.dynamic || len(vars) > 0 {
				fmt.Fprintf(w, "{{range withModel}}{{write (%s)}}{{end}}", n.Text)
			} else {
				fmt.Fprintf(w, "{{write (%s)}}", n.Text)
			}
		case *markup.SetLayout:
			fmt.Fprintf(w, "{{setLayout %s}}", strconv.Quote(n.Value))
		case *markup.Section:
			if g.sections[n.Name] {
				return g.errorf(n.Pos, "section %q is already defined", n.Name)
			}
			g.sections[n.Name] = true
			g.order = append(g.order, n.Name)
			var sec strings.Builder
			if err := g.emit(&sec, n.Body, nil); err != nil {
				return err
			}
			fmt.Fprintf(&g.defines, "{{define %s}}%s{{end}}", strconv.Quote(SectionPrefix+n.Name), sec.String())
			fmt.Fprintf(w, "{{defineSection %s}}", strconv.Quote(n.Name))
		case *markup.If:
			var cond string
			if n.CondCall != nil {
				call, err := g.call(n.CondCall, vars)
				if err != nil {
					return err
				}
				cond = "(" + call + ")"
			} else {
				cond = g.operand(n.Cond, vars)
			}
			if n.Negate {
				cond = "not " + cond
			}
			fmt.Fprintf(w, "{{if %s}}", cond)
			if err := g.emit(w, n.Then, vars); err != nil {
				return err
			}
			if len(n.Else) > 0 {
				w.WriteString("{{else}}")
				if err := g.emit(w, n.Else, vars); err != nil {
					return err
				}
			}
			w.WriteString("{{end}}")
		case *markup.ForEach:
			if n.Var == "Model" {
				return g.errorf(n.Pos, "loop variable cannot be named Model")
			}
			fmt.Fprintf(w, "{{range $%s := %s}}", n.Var, g.operand(n.Source, vars))
			if err := g.emit(w, n.Body, append(vars[:len(vars):len(vars)], n.Var)); err != nil {
				return err
			}
			w.WriteString("{{end}}")
		default:
			return g.errorf(n.Position(), "unsupported node %T", n)
		}
	}
	return nil
}

// operand renders a member path as a pipeline operand. Paths rooted at Model
// start at dot, or at $ inside a loop where range rebinds dot. Paths rooted
// at a loop variable start at that variable. Any other root is treated as a
// helper function call.
func (g *generator) operand(path []string, vars []string) string {
	var root string
	switch {
	case path[0] == "Model" && len(vars) > 0:
		root = "$"
	case path[0] == "Model":
		root = "."
	case inScope(vars, path[0]):
		root = "$" + path[0]
	default:
		if len(path) == 1 {
			return "(" + helperName(path[0]) + ")"
		}
		root = "(" + helperName(path[0]) + ")"
	}
	rest := path[1:]
	if len(rest) == 0 {
		return root
	}
	if g.dynamic {
		expr := root
		for _, m := range rest {
			expr = fmt.Sprintf("(member %s %s)", expr, strconv.Quote(m))
		}
		return expr
	}
	if root == "." {
		return "." + strings.Join(rest, ".")
	}
	return root + "." + strings.Join(rest, ".")
}

func (g *generator) call(c *markup.Call, vars []string) (string, error) {
	args := make([]string, 0, len(c.Args)+1)
	for _, a := range c.Args {
		switch a.Kind {
		case markup.ArgString:
			args = append(args, strconv.Quote(a.Value))
		case markup.ArgPath:
			args = append(args, g.operand(a.Path, vars))
		default:
			args = append(args, a.Value)
		}
	}
	switch c.Name {
	case "RenderBody":
		if len(args) != 0 {
			return "", g.errorf(c.Pos, "RenderBody takes no arguments")
		}
	case "RenderSection":
		switch {
		case len(args) == 1:
			args = append(args, "true")
		case len(args) != 2:
			return "", g.errorf(c.Pos, "RenderSection takes a name and an optional required flag")
		}
		if c.Args[0].Kind != markup.ArgString {
			return "", g.errorf(c.Pos, "RenderSection requires a section name literal")
		}
	}
	if len(args) == 0 {
		return helperName(c.Name), nil
	}
	return helperName(c.Name) + " " + strings.Join(args, " "), nil
}

func helperName(name string) string {
	if fn, ok := helpers[name]; ok {
		return fn
	}
	return name
}

func inScope(vars []string, name string) bool {
	for i := len(vars) - 1; i >= 0; i-- {
		if vars[i] == name {
			return true
		}
	}
	return false
}
