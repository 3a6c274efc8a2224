// Package markup parses the Razor dialect understood by go-razor into a
// syntax tree that separates literal markup from embedded code.
package markup

import "fmt"

// Pos is a 1-based location in template source.
type Pos struct {
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Position returns p. Embedding Pos gives every node its Position method.
func (p Pos) Position() Pos { return p }

// Node is an element of the syntax tree.
type Node interface {
	Position() Pos
}

// Document is a parsed template.
type Document struct {
	// Model is the type named by the @model directive, if any.
	Model string
	Nodes []Node
}

// Text is literal markup.
type Text struct {
	Pos
	Value string
}

// Expr is an implicit expression such as @Model.Name or @item.Title. Path[0]
// is the root identifier.
type Expr struct {
	Pos
	Path []string
}

// Call is a helper invocation such as @RenderSection("Title", false).
type Call struct {
	Pos
	Name string
	Args []Arg
}

// ArgKind classifies call arguments.
type ArgKind int

const (
	ArgString ArgKind = iota
	ArgBool
	ArgNumber
	ArgPath
)

// Arg is one argument of a Call. Value holds the literal text for strings
// (unquoted), booleans and numbers; Path is set for member paths.
type Arg struct {
	Kind  ArgKind
	Value string
	Path  []string
}

// Pipeline is an explicit expression @( ... ) holding a template pipeline.
type Pipeline struct {
	Pos
	Text string
}

// SetLayout is the code statement Layout = "name".
type SetLayout struct {
	Pos
	Value string
}

// Section is a named content block declared with @section.
type Section struct {
	Pos
	Name string
	Body []Node
}

// If is @if (cond) { ... } else { ... }. The condition is either the member
// path Cond or the helper call CondCall.
type If struct {
	Pos
	Negate   bool
	Cond     []string
	CondCall *Call
	Then     []Node
	Else     []Node
}

// ForEach is @foreach (var item in source) { ... }.
type ForEach struct {
	Pos
	Var    string
	Source []string
	Body   []Node
}
