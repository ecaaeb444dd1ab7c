package template

// Node is an element of a parsed template.
type Node interface {
	node()
}

// TextNode is literal output.
type TextNode struct {
	Text string
}

// MustacheNode outputs the value of an expression.
type MustacheNode struct {
	Expr    *CallExpr
	Escaped bool
	Line    int
	Column  int
}

// BlockNode is a {{#name}}...{{/name}} or {{^name}}...{{/name}} section.
type BlockNode struct {
	Expr    *CallExpr
	Params  []string
	Program []Node
	Inverse []Node
	Line    int
	Column  int
}

func (*TextNode) node()     {}
func (*MustacheNode) node() {}
func (*BlockNode) node()    {}

// Expr is an expression inside a tag.
type Expr interface {
	expr()
}

// PathExpr looks up a value: "name", "a.b.0", "this", "../x", "@index".
type PathExpr struct {
	Data     bool
	This     bool
	Depth    int
	Parts    []string
	Original string
}

// LiteralExpr is a string, number, boolean, null or undefined literal.
type LiteralExpr struct {
	Value any
}

// CallExpr is a helper call or a bare lookup when it has no arguments.
type CallExpr struct {
	Callee Expr
	Params []Expr
	Hash   []HashPair
	Line   int
}

// HashPair is a key=value argument.
type HashPair struct {
	Key   string
	Value Expr
}

func (*PathExpr) expr()    {}
func (*LiteralExpr) expr() {}
func (*CallExpr) expr()    {}

// simpleName returns the helper name a path could refer to.
func (p *PathExpr) simpleName() (string, bool) {
	if p.Data || p.This || p.Depth > 0 || len(p.Parts) != 1 {
		return "", false
	}
	return p.Parts[0], true
}
