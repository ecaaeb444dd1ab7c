package template

import (
	"strconv"
	"strings"
)

// parse builds the node tree of src.
func parse(src string) ([]Node, error) {
	pos := newPositions(src)
	toks, err := lex(src, pos)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, pos: pos}
	nodes, term, err := p.program()
	if err != nil {
		return nil, err
	}
	if term != nil {
		return nil, p.errorf(term, "unexpected "+describe(term))
	}
	return nodes, nil
}

type parser struct {
	toks []token
	i    int
	pos  *positions
}

func (p *parser) errorf(t *token, msg string) *ParseError {
	line, col := p.pos.at(t.offset)
	return &ParseError{Line: line, Column: col, Msg: msg}
}

func describe(t *token) string {
	switch t.kind {
	case tokElse:
		return "{{else}}"
	case tokClose:
		return "{{/" + t.text + "}}"
	}
	return "tag"
}

// program parses nodes until an else or close tag, which is returned
// unconsumed by the caller's loop.
func (p *parser) program() ([]Node, *token, error) {
	var nodes []Node
	for p.i < len(p.toks) {
		t := &p.toks[p.i]
		p.i++
		switch t.kind {
		case tokText:
			if t.text != "" {
				nodes = append(nodes, &TextNode{Text: t.text})
			}
		case tokComment:
		case tokMustache, tokRaw:
			call, params, err := p.expression(t)
			if err != nil {
				return nil, nil, err
			}
			if len(params) > 0 {
				return nil, nil, p.errorf(t, "block params are only allowed on blocks")
			}
			line, col := p.pos.at(t.offset)
			nodes = append(nodes, &MustacheNode{Expr: call, Escaped: t.kind == tokMustache, Line: line, Column: col})
		case tokBlockOpen, tokInverseOpen:
			block, err := p.block(t)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, block)
		case tokElse, tokClose:
			return nodes, t, nil
		}
	}
	return nodes, nil, nil
}

// block parses a section opened by open, including its else chain and
// the matching close tag.
func (p *parser) block(open *token) (*BlockNode, error) {
	node, closeTok, err := p.chain(open)
	if err != nil {
		return nil, err
	}
	name := calleeName(node.Expr)
	if closeTok.text != name {
		return nil, p.errorf(closeTok, name+" doesn't match "+closeTok.text)
	}
	if open.kind == tokInverseOpen {
		node.Program, node.Inverse = node.Inverse, node.Program
	}
	return node, nil
}

// chain parses one link of an if/else-if chain. Nested links share the
// close tag of the outermost block.
func (p *parser) chain(open *token) (*BlockNode, *token, error) {
	call, params, err := p.expression(open)
	if err != nil {
		return nil, nil, err
	}
	line, col := p.pos.at(open.offset)
	node := &BlockNode{Expr: call, Params: params, Line: line, Column: col}

	program, term, err := p.program()
	if err != nil {
		return nil, nil, err
	}
	node.Program = program
	if term == nil {
		return nil, nil, p.errorf(open, "unclosed block "+calleeName(call))
	}
	if term.kind == tokClose {
		return node, term, nil
	}

	// term is an else tag
	if strings.TrimSpace(term.text) != "" {
		nested, closeTok, err := p.chain(term)
		if err != nil {
			return nil, nil, err
		}
		node.Inverse = []Node{nested}
		return node, closeTok, nil
	}
	inverse, closeTok, err := p.program()
	if err != nil {
		return nil, nil, err
	}
	if closeTok == nil || closeTok.kind != tokClose {
		return nil, nil, p.errorf(open, "unclosed block "+calleeName(call))
	}
	node.Inverse = inverse
	return node, closeTok, nil
}

func calleeName(c *CallExpr) string {
	switch e := c.Callee.(type) {
	case *PathExpr:
		return e.Original
	case *LiteralExpr:
		return ToString(e.Value)
	}
	return ""
}

// expression parses the inside of a tag.
func (p *parser) expression(t *token) (*CallExpr, []string, error) {
	line, _ := p.pos.at(t.offset)
	s := &exprScanner{src: t.text, line: line}
	call, err := s.call(false)
	if err != nil {
		return nil, nil, p.errorf(t, err.Error())
	}
	params, err := s.blockParams()
	if err != nil {
		return nil, nil, p.errorf(t, err.Error())
	}
	s.skipSpace()
	if s.i < len(s.src) {
		return nil, nil, p.errorf(t, "unexpected '"+s.src[s.i:]+"'")
	}
	return call, params, nil
}

type exprError string

func (e exprError) Error() string { return string(e) }

type exprScanner struct {
	src  string
	i    int
	line int
}

func (s *exprScanner) skipSpace() {
	for s.i < len(s.src) && isSpace(s.src[s.i]) {
		s.i++
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// call parses "callee param... key=value...". Inside parentheses it stops
// at the closing parenthesis.
func (s *exprScanner) call(sub bool) (*CallExpr, error) {
	s.skipSpace()
	callee, err := s.operand()
	if err != nil {
		return nil, err
	}
	if callee == nil {
		return nil, exprError("expected an expression")
	}
	c := &CallExpr{Callee: callee, Line: s.line}
	for {
		s.skipSpace()
		if s.i >= len(s.src) {
			break
		}
		if s.src[s.i] == ')' {
			if !sub {
				return nil, exprError("unexpected ')'")
			}
			break
		}
		if s.atBlockParams() {
			break
		}
		if key, ok := s.hashKey(); ok {
			v, err := s.operand()
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, exprError("missing value for " + key)
			}
			c.Hash = append(c.Hash, HashPair{Key: key, Value: v})
			continue
		}
		if len(c.Hash) > 0 {
			return nil, exprError("positional arguments must come before hash arguments")
		}
		v, err := s.operand()
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, exprError("unexpected '" + s.src[s.i:] + "'")
		}
		c.Params = append(c.Params, v)
	}
	return c, nil
}

func (s *exprScanner) atBlockParams() bool {
	rest := s.src[s.i:]
	if !strings.HasPrefix(rest, "as") || len(rest) < 3 {
		return false
	}
	r := strings.TrimLeft(rest[2:], " \t\r\n")
	return len(r) < len(rest)-2 && strings.HasPrefix(r, "|")
}

func (s *exprScanner) blockParams() ([]string, error) {
	s.skipSpace()
	if !s.atBlockParams() {
		return nil, nil
	}
	s.i += 2
	s.skipSpace()
	s.i++ // opening pipe
	end := strings.IndexByte(s.src[s.i:], '|')
	if end < 0 {
		return nil, exprError("unterminated block params")
	}
	names := strings.Fields(s.src[s.i : s.i+end])
	s.i += end + 1
	if len(names) == 0 {
		return nil, exprError("empty block params")
	}
	return names, nil
}

// hashKey consumes "key=" when present.
func (s *exprScanner) hashKey() (string, bool) {
	j := s.i
	for j < len(s.src) && isIDChar(s.src[j]) {
		j++
	}
	if j == s.i || j >= len(s.src) || s.src[j] != '=' {
		return "", false
	}
	key := s.src[s.i:j]
	s.i = j + 1
	return key, true
}

func isIDChar(c byte) bool {
	return !isSpace(c) && !strings.ContainsRune("=()|'\"[]./{}~!", rune(c))
}

// operand parses a literal, path or subexpression. It returns nil at the
// end of input.
func (s *exprScanner) operand() (Expr, error) {
	s.skipSpace()
	if s.i >= len(s.src) {
		return nil, nil
	}
	switch c := s.src[s.i]; {
	case c == '(':
		s.i++
		sub, err := s.call(true)
		if err != nil {
			return nil, err
		}
		s.skipSpace()
		if s.i >= len(s.src) || s.src[s.i] != ')' {
			return nil, exprError("missing ')'")
		}
		s.i++
		return sub, nil
	case c == '\'' || c == '"':
		str, err := s.quoted(c)
		if err != nil {
			return nil, err
		}
		return &LiteralExpr{Value: str}, nil
	case c == ')':
		return nil, nil
	}

	start := s.i
	for s.i < len(s.src) {
		c := s.src[s.i]
		if c == '[' {
			end := strings.IndexByte(s.src[s.i:], ']')
			if end < 0 {
				return nil, exprError("unterminated '['")
			}
			s.i += end + 1
			continue
		}
		if isSpace(c) || c == '(' || c == ')' || c == '=' || c == '|' {
			break
		}
		s.i++
	}
	word := s.src[start:s.i]
	if word == "" {
		return nil, exprError("unexpected '" + string(s.src[s.i]) + "'")
	}

	switch word {
	case "true":
		return &LiteralExpr{Value: true}, nil
	case "false":
		return &LiteralExpr{Value: false}, nil
	case "null":
		return &LiteralExpr{Value: nil}, nil
	case "undefined":
		return &LiteralExpr{Value: Undefined}, nil
	}
	if looksNumeric(word) {
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			return &LiteralExpr{Value: f}, nil
		}
	}
	return parsePath(word)
}

func looksNumeric(w string) bool {
	if w[0] == '-' {
		w = w[1:]
	}
	return w != "" && (w[0] >= '0' && w[0] <= '9' || w[0] == '.' && len(w) > 1 && w[1] >= '0' && w[1] <= '9')
}

func (s *exprScanner) quoted(q byte) (string, error) {
	var b strings.Builder
	for j := s.i + 1; j < len(s.src); j++ {
		c := s.src[j]
		if c == '\\' && j+1 < len(s.src) && s.src[j+1] == q {
			b.WriteByte(q)
			j++
			continue
		}
		if c == q {
			s.i = j + 1
			return b.String(), nil
		}
		b.WriteByte(c)
	}
	return "", exprError("unterminated string")
}

// parsePath splits "a.b", "a/b", "../x", "this.y", "@root.z", "[a b].c".
func parsePath(word string) (*PathExpr, error) {
	p := &PathExpr{Original: word}
	rest := word
	if strings.HasPrefix(rest, "@") {
		p.Data = true
		rest = rest[1:]
	}
	for strings.HasPrefix(rest, "../") {
		p.Depth++
		rest = rest[3:]
	}
	if rest == ".." {
		p.Depth++
		rest = ""
	}

	var parts []string
	for rest != "" {
		var seg string
		if rest[0] == '[' {
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, exprError("unterminated '[' in " + word)
			}
			seg = rest[1:end]
			rest = rest[end+1:]
			parts = append(parts, seg)
		} else {
			end := strings.IndexAny(rest, "./")
			if end < 0 {
				end = len(rest)
			}
			seg = rest[:end]
			rest = rest[end:]
			if seg == "" && len(parts) == 0 && !p.Data {
				// leading "./"
				p.This = true
			} else if seg == "this" && len(parts) == 0 && !p.Data {
				p.This = true
			} else if seg == ".." {
				return nil, exprError("invalid path: " + word)
			} else if seg != "" {
				parts = append(parts, seg)
			}
		}
		if rest != "" {
			if rest[0] != '.' && rest[0] != '/' {
				return nil, exprError("invalid path: " + word)
			}
			rest = rest[1:]
		}
	}
	if word == "." {
		p.This = true
	}
	p.Parts = parts
	return p, nil
}
