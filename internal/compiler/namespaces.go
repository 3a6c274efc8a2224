package compiler

import (
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/microcosm-cc/bluemonday"

	"github.com/tqc/go-razor/page"
)

// Namespaces maps a namespace name to the helpers it brings into scope.
type Namespaces map[string]template.FuncMap

// DefaultNamespaces returns the built-in helper namespaces. policy backs the
// html namespace's Sanitize helper; nil selects the UGC policy.
func DefaultNamespaces(policy *bluemonday.Policy) Namespaces {
	if policy == nil {
		policy = bluemonday.UGCPolicy()
	}
	return Namespaces{
		"core": {
			"Raw":     func(v any) page.HTML { return page.HTML(fmt.Sprint(v)) },
			"Format":  fmt.Sprintf,
			"Default": defaultValue,
		},
		"strings": {
			"Upper":     strings.ToUpper,
			"Lower":     strings.ToLower,
			"Trim":      strings.TrimSpace,
			"Replace":   strings.ReplaceAll,
			"Contains":  strings.Contains,
			"HasPrefix": strings.HasPrefix,
			"HasSuffix": strings.HasSuffix,
			"Join":      strings.Join,
			"Split":     strings.Split,
			"Repeat":    strings.Repeat,
		},
		"html": {
			"Sanitize":   func(s string) page.HTML { return page.HTML(policy.Sanitize(s)) },
			"UrlEncode":  url.QueryEscape,
			"PathEncode": url.PathEscape,
		},
	}
}

func defaultValue(def, v any) any {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && s == "" {
		return def
	}
	return v
}

// Funcs merges the helpers of the imported namespaces. Unknown namespaces
// produce one diagnostic each.
func (n Namespaces) Funcs(name string, imports []string) (template.FuncMap, []Diagnostic) {
	funcs := template.FuncMap{}
	var diags []Diagnostic
	for _, ns := range imports {
		fm, ok := n[ns]
		if !ok {
			diags = append(diags, Diagnostic{
				Message:  fmt.Sprintf("namespace %q is not registered", ns),
				Location: Location{Template: name},
			})
			continue
		}
		for k, v := range fm {
			funcs[k] = v
		}
	}
	return funcs, diags
}
