package codegen

import "strings"

// BaseType describes a page base the generator can declare. Bases compose
// capabilities: the encoder used for expression output and the helper
// namespaces the page needs.
type BaseType struct {
	Name string `yaml:"name"`
	// HTML selects the HTML-escaping encoder.
	HTML bool `yaml:"html"`
	// Namespaces are helper namespaces every page of this base imports.
	Namespaces []string `yaml:"namespaces"`
}

var (
	// TemplateBase is the plain text base.
	TemplateBase = BaseType{Name: "TemplateBase", Namespaces: []string{"core"}}
	// HTMLTemplateBase escapes expression output and adds the html helpers.
	HTMLTemplateBase = BaseType{Name: "HtmlTemplateBase", HTML: true, Namespaces: []string{"core", "html"}}
)

// Bases is a set of base types addressable by name.
type Bases map[string]BaseType

// DefaultBases returns the built-in base types.
func DefaultBases() Bases {
	return Bases{
		TemplateBase.Name:     TemplateBase,
		HTMLTemplateBase.Name: HTMLTemplateBase,
	}
}

// Lookup returns the base registered under name. An empty name or a generic
// declaration such as "TemplateBase[dynamic]" resolve like their bare name.
func (b Bases) Lookup(name string) (BaseType, bool) {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return TemplateBase, true
	}
	base, ok := b[name]
	return base, ok
}
