package markup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports malformed template source.
type ParseError struct {
	Template string
	Pos
	Message string
}

func (e *ParseError) Error() string {
	if e.Template != "" {
		return fmt.Sprintf("[%s] %d:%d: %s", e.Template, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

var (
	reLayoutStmt = regexp.MustCompile(`^Layout\s*=\s*("(?:[^"\\]|\\.)*"|null|nil)$`)
	reForEach    = regexp.MustCompile(`^(?:var\s+)?([A-Za-z_][A-Za-z0-9_]*)\s+in\s+(.+)$`)
	reCondCall   = regexp.MustCompile(`(?s)^([A-Za-z_][A-Za-z0-9_]*)\((.*)\)$`)
)

// Parse parses src. name is only used in error messages.
func Parse(name, src string) (*Document, error) {
	p := &parser{name: name, src: src, doc: &Document{}}
	nodes, err := p.parseNodes(false, p.pos)
	if err != nil {
		return nil, err
	}
	p.doc.Nodes = nodes
	return p.doc, nil
}

type parser struct {
	name string
	src  string
	pos  int
	doc  *Document
}

func (p *parser) position(off int) Pos {
	if off > len(p.src) {
		off = len(p.src)
	}
	line := 1 + strings.Count(p.src[:off], "\n")
	col := off - strings.LastIndex(p.src[:off], "\n")
	return Pos{Line: line, Column: col}
}

func (p *parser) errorf(off int, format string, args ...any) error {
	return &ParseError{Template: p.name, Pos: p.position(off), Message: fmt.Sprintf(format, args...)}
}

// parseNodes reads markup until the end of input or, inside a block, until
// the brace closing it. Literal braces inside a block must balance.
func (p *parser) parseNodes(inBlock bool, blockStart int) ([]Node, error) {
	var (
		nodes     []Node
		text      strings.Builder
		textStart int
		depth     int
	)
	addText := func(off int, s string) {
		if text.Len() == 0 {
			textStart = off
		}
		text.WriteString(s)
	}
	flush := func() {
		if text.Len() > 0 {
			nodes = append(nodes, &Text{Pos: p.position(textStart), Value: text.String()})
			text.Reset()
		}
	}

	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '{' && inBlock:
			depth++
		case c == '}' && inBlock:
			if depth == 0 {
				flush()
				p.pos++
				return nodes, nil
			}
			depth--
		case c == '@':
			start := p.pos
			node, lit, err := p.parseTransition(inBlock)
			if err != nil {
				return nil, err
			}
			if lit != "" {
				addText(start, lit)
			}
			if node != nil {
				flush()
				nodes = append(nodes, node)
			}
			continue
		}
		addText(p.pos, p.src[p.pos:p.pos+1])
		p.pos++
	}
	if inBlock {
		return nil, p.errorf(blockStart, "unterminated block: missing '}'")
	}
	flush()
	return nodes, nil
}

// parseTransition handles the code following an '@'. It returns either a
// node, a literal to append to the surrounding text, or neither for comments
// and directives.
func (p *parser) parseTransition(inBlock bool) (Node, string, error) {
	start := p.pos
	p.pos++
	if p.pos >= len(p.src) {
		return nil, "@", nil
	}
	switch next := p.src[p.pos]; {
	case next == '@':
		p.pos++
		return nil, "@", nil
	case next == '*':
		end := strings.Index(p.src[p.pos+1:], "*@")
		if end < 0 {
			return nil, "", p.errorf(start, "unterminated comment")
		}
		p.pos += 1 + end + 2
		return nil, "", nil
	case next == '(':
		inner, err := p.readBalanced('(', ')')
		if err != nil {
			return nil, "", err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return nil, "", p.errorf(start, "empty expression")
		}
		return &Pipeline{Pos: p.position(start), Text: inner}, "", nil
	case next == '{':
		return p.parseCodeBlock(start)
	case isIdentStart(next):
		if start > 0 && isIdentChar(p.src[start-1]) {
			// user@example.com
			return nil, "@", nil
		}
	default:
		return nil, "@", nil
	}

	identStart := p.pos
	ident := p.readIdent()
	switch ident {
	case "model":
		if p.pos < len(p.src) && isSpace(p.src[p.pos]) {
			return nil, "", p.parseModelDirective(start, inBlock)
		}
	case "section":
		return p.parseSection(start, inBlock)
	case "if":
		return p.parseIf(start)
	case "foreach":
		return p.parseForEach(start)
	}
	p.pos = identStart
	return p.parseExpr(start)
}

func (p *parser) parseModelDirective(start int, inBlock bool) error {
	if inBlock {
		return p.errorf(start, "@model must appear at the top level")
	}
	end := strings.IndexByte(p.src[p.pos:], '\n')
	var line string
	if end < 0 {
		line = p.src[p.pos:]
		p.pos = len(p.src)
	} else {
		line = p.src[p.pos : p.pos+end]
		p.pos += end + 1
	}
	model := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if model == "" {
		return p.errorf(start, "@model requires a type name")
	}
	if p.doc.Model != "" {
		return p.errorf(start, "duplicate @model directive")
	}
	p.doc.Model = model
	return nil
}

func (p *parser) parseCodeBlock(start int) (Node, string, error) {
	inner, err := p.readBalanced('{', '}')
	if err != nil {
		return nil, "", err
	}
	var layout *SetLayout
	for _, stmt := range strings.FieldsFunc(inner, func(r rune) bool { return r == ';' || r == '\n' }) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		m := reLayoutStmt.FindStringSubmatch(stmt)
		if m == nil {
			return nil, "", p.errorf(start, "unsupported statement %q", stmt)
		}
		value := ""
		if strings.HasPrefix(m[1], `"`) {
			if value, err = strconv.Unquote(m[1]); err != nil {
				return nil, "", p.errorf(start, "invalid layout name %s", m[1])
			}
		}
		layout = &SetLayout{Pos: p.position(start), Value: value}
	}
	if layout == nil {
		return nil, "", nil
	}
	return layout, "", nil
}

func (p *parser) parseSection(start int, inBlock bool) (Node, string, error) {
	if inBlock {
		return nil, "", p.errorf(start, "sections must be declared at the top level")
	}
	p.skipSpace()
	name := p.readIdent()
	if name == "" {
		return nil, "", p.errorf(start, "@section requires a name")
	}
	body, err := p.parseBlock(start)
	if err != nil {
		return nil, "", err
	}
	return &Section{Pos: p.position(start), Name: name, Body: body}, "", nil
}

func (p *parser) parseIf(start int) (Node, string, error) {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, "", p.errorf(start, "@if requires a condition in parentheses")
	}
	cond, err := p.readBalanced('(', ')')
	if err != nil {
		return nil, "", err
	}
	cond = strings.TrimSpace(cond)
	negate := strings.HasPrefix(cond, "!")
	cond = strings.TrimSpace(strings.TrimPrefix(cond, "!"))
	node := &If{Pos: p.position(start), Negate: negate}
	if path, ok := parsePath(cond); ok {
		node.Cond = path
	} else if m := reCondCall.FindStringSubmatch(cond); m != nil {
		args, err := p.parseArgs(start, m[2])
		if err != nil {
			return nil, "", err
		}
		node.CondCall = &Call{Pos: node.Pos, Name: m[1], Args: args}
	} else {
		return nil, "", p.errorf(start, "unsupported condition %q", cond)
	}
	if node.Then, err = p.parseBlock(start); err != nil {
		return nil, "", err
	}

	save := p.pos
	p.skipSpace()
	if !p.hasKeyword("else") {
		p.pos = save
		return node, "", nil
	}
	elseStart := p.pos
	p.pos += len("else")
	p.skipSpace()
	if p.hasKeyword("if") {
		p.pos += len("if")
		nested, _, err := p.parseIf(elseStart)
		if err != nil {
			return nil, "", err
		}
		node.Else = []Node{nested}
		return node, "", nil
	}
	if node.Else, err = p.parseBlock(elseStart); err != nil {
		return nil, "", err
	}
	return node, "", nil
}

func (p *parser) parseForEach(start int) (Node, string, error) {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, "", p.errorf(start, "@foreach requires a loop header in parentheses")
	}
	header, err := p.readBalanced('(', ')')
	if err != nil {
		return nil, "", err
	}
	m := reForEach.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return nil, "", p.errorf(start, "unsupported loop header %q", header)
	}
	source, ok := parsePath(strings.TrimSpace(m[2]))
	if !ok {
		return nil, "", p.errorf(start, "unsupported loop source %q", m[2])
	}
	body, err := p.parseBlock(start)
	if err != nil {
		return nil, "", err
	}
	return &ForEach{Pos: p.position(start), Var: m[1], Source: source, Body: body}, "", nil
}

func (p *parser) parseExpr(start int) (Node, string, error) {
	path := []string{p.readIdent()}
	for p.pos+1 < len(p.src) && p.src[p.pos] == '.' && isIdentStart(p.src[p.pos+1]) {
		p.pos++
		path = append(path, p.readIdent())
	}
	if len(path) == 1 && p.pos < len(p.src) && p.src[p.pos] == '(' {
		inner, err := p.readBalanced('(', ')')
		if err != nil {
			return nil, "", err
		}
		args, err := p.parseArgs(start, inner)
		if err != nil {
			return nil, "", err
		}
		return &Call{Pos: p.position(start), Name: path[0], Args: args}, "", nil
	}
	return &Expr{Pos: p.position(start), Path: path}, "", nil
}

func (p *parser) parseArgs(start int, inner string) ([]Arg, error) {
	if strings.TrimSpace(inner) == "" {
		return nil, nil
	}
	var args []Arg
	for _, raw := range splitArgs(inner) {
		raw = strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(raw, `"`):
			s, err := strconv.Unquote(raw)
			if err != nil {
				return nil, p.errorf(start, "invalid string argument %s", raw)
			}
			args = append(args, Arg{Kind: ArgString, Value: s})
		case raw == "true" || raw == "false":
			args = append(args, Arg{Kind: ArgBool, Value: raw})
		case isNumber(raw):
			args = append(args, Arg{Kind: ArgNumber, Value: raw})
		default:
			path, ok := parsePath(raw)
			if !ok {
				return nil, p.errorf(start, "unsupported argument %q", raw)
			}
			args = append(args, Arg{Kind: ArgPath, Path: path})
		}
	}
	return args, nil
}

// parseBlock expects an opening brace after optional white space and parses
// the block it opens.
func (p *parser) parseBlock(start int) ([]Node, error) {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '{' {
		return nil, p.errorf(start, "expected '{'")
	}
	open := p.pos
	p.pos++
	return p.parseNodes(true, open)
}

// readBalanced reads from an opening delimiter at p.pos to its match,
// skipping quoted strings, and returns the text in between.
func (p *parser) readBalanced(open, close byte) (string, error) {
	start := p.pos
	depth := 0
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '"', '\'', '`':
			end := p.skipQuoted(c)
			if end < 0 {
				return "", p.errorf(p.pos, "unterminated string")
			}
			p.pos = end
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				p.pos++
				return p.src[start+1 : p.pos-1], nil
			}
		}
		p.pos++
	}
	return "", p.errorf(start, "missing closing %q", close)
}

// skipQuoted returns the offset just past the string starting at p.pos, or -1.
func (p *parser) skipQuoted(quote byte) int {
	for i := p.pos + 1; i < len(p.src); i++ {
		switch p.src[i] {
		case '\\':
			if quote != '`' {
				i++
			}
		case quote:
			return i + 1
		}
	}
	return -1
}

func (p *parser) readIdent() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentChar(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) hasKeyword(kw string) bool {
	if !strings.HasPrefix(p.src[p.pos:], kw) {
		return false
	}
	end := p.pos + len(kw)
	return end >= len(p.src) || !isIdentChar(p.src[end])
}

func parsePath(s string) ([]string, bool) {
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, ".")
	for _, part := range parts {
		if part == "" || !isIdentStart(part[0]) {
			return nil, false
		}
		for i := 1; i < len(part); i++ {
			if !isIdentChar(part[i]) {
				return nil, false
			}
		}
	}
	return parts, true
}

func splitArgs(s string) []string {
	var (
		out   []string
		start int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"':
			quote = c
		case c == ',':
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isIdentStart(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
