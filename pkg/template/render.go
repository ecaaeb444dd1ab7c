package template

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

type renderer struct {
	e   *Engine
	ctx *Context
	sc  *scope
}

func (r *renderer) render(nodes []Node, b *strings.Builder) error {
	for _, n := range nodes {
		switch t := n.(type) {
		case *TextNode:
			b.WriteString(t.Text)
		case *MustacheNode:
			v, err := r.call(t.Expr, nil)
			if err != nil {
				return err
			}
			b.WriteString(output(v, t.Escaped))
		case *BlockNode:
			v, err := r.block(t)
			if err != nil {
				return err
			}
			b.WriteString(output(v, false))
		}
	}
	return nil
}

// section renders nodes, in a new frame when opts is not nil.
func (r *renderer) section(nodes []Node, params []string, opts *BlockOptions) (string, error) {
	if len(nodes) == 0 {
		return "", nil
	}
	if opts != nil {
		f := frame{
			this:     opts.This,
			ownsThis: opts.ChangeContext,
			vars:     opts.Vars,
			sw:       opts.Switch,
		}
		if len(params) > 0 && len(opts.Params) > 0 {
			f.params = make(map[string]any, len(params))
			for i, name := range params {
				if i < len(opts.Params) {
					f.params[name] = opts.Params[i]
				}
			}
		}
		r.sc.push(f)
		defer r.sc.pop()
	}
	var b strings.Builder
	if err := r.render(nodes, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (r *renderer) eval(x Expr) (any, error) {
	switch t := x.(type) {
	case *LiteralExpr:
		return t.Value, nil
	case *PathExpr:
		return r.lookup(t), nil
	case *CallExpr:
		return r.call(t, nil)
	}
	return Undefined, nil
}

// call evaluates a mustache or subexpression. A simple name refers to a
// helper when one is registered and no block param shadows it; a name
// with arguments but no helper is a missing helper.
func (r *renderer) call(c *CallExpr, block *BlockNode) (any, error) {
	hasArgs := len(c.Params) > 0 || len(c.Hash) > 0
	switch callee := c.Callee.(type) {
	case *PathExpr:
		if name, ok := callee.simpleName(); ok {
			_, shadowed := r.sc.lookupParam(name)
			if !shadowed || hasArgs {
				if h, ok := r.e.registry.Lookup(name); ok {
					return r.invoke(name, h, c, block)
				}
			}
			if hasArgs {
				return r.helperMissing(name, c, block)
			}
		} else if hasArgs {
			return Undefined, nil
		}
		return r.lookup(callee), nil
	case *LiteralExpr:
		if name, ok := callee.Value.(string); ok && hasArgs {
			if h, ok := r.e.registry.Lookup(name); ok {
				return r.invoke(name, h, c, block)
			}
			return r.helperMissing(name, c, block)
		}
		return callee.Value, nil
	case *CallExpr:
		return r.call(callee, nil)
	}
	return Undefined, nil
}

func (r *renderer) helperMissing(name string, c *CallExpr, block *BlockNode) (any, error) {
	if h, ok := r.e.registry.Lookup("helperMissing"); ok {
		return r.invoke(name, h, c, block)
	}
	return Undefined, nil
}

func (r *renderer) invoke(name string, h Helper, c *CallExpr, block *BlockNode) (any, error) {
	args := make([]any, len(c.Params))
	for i, p := range c.Params {
		v, err := r.eval(p)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	var hash map[string]any
	if len(c.Hash) > 0 {
		hash = make(map[string]any, len(c.Hash))
		for _, kv := range c.Hash {
			v, err := r.eval(kv.Value)
			if err != nil {
				return nil, err
			}
			hash[kv.Key] = v
		}
	}
	call := &Call{
		Name:  name,
		Args:  args,
		Hash:  hash,
		Line:  c.Line,
		Ctx:   r.ctx,
		r:     r,
		block: block,
	}
	v, err := h.Invoke(call)
	if err != nil {
		return nil, wrapHelperError(name, c.Line, err)
	}
	return v, nil
}

func wrapHelperError(name string, line int, err error) error {
	var he *HelperError
	var pe *ParseError
	if errors.As(err, &he) || errors.As(err, &pe) {
		return err
	}
	return &HelperError{Helper: name, Line: line, Err: err}
}

func (r *renderer) block(n *BlockNode) (any, error) {
	c := n.Expr
	if p, ok := c.Callee.(*PathExpr); ok {
		if name, ok := p.simpleName(); ok {
			if h, ok := r.e.registry.Lookup(name); ok {
				return r.invoke(name, h, c, n)
			}
			if len(c.Params) > 0 || len(c.Hash) > 0 {
				return r.helperMissing(name, c, n)
			}
		}
	}
	v, err := r.call(c, nil)
	if err != nil {
		return nil, err
	}
	return r.blockHelperMissing(v, n)
}

// blockHelperMissing renders a section keyed by a plain value: arrays
// iterate, objects become the context, true renders in place and falsy
// values render the inverse.
func (r *renderer) blockHelperMissing(v any, n *BlockNode) (any, error) {
	call := &Call{Name: "blockHelperMissing", Args: []any{v}, Line: n.Expr.Line, Ctx: r.ctx, r: r, block: n}
	switch t := v.(type) {
	case []any:
		return eachHelper(call)
	case map[string]any:
		return call.Fn(&BlockOptions{This: t, ChangeContext: true, Params: []any{t}})
	case bool:
		if t {
			return call.Fn(nil)
		}
	}
	if !Truthy(v) {
		return call.Inverse(nil)
	}
	return call.Fn(&BlockOptions{This: v, ChangeContext: true, Params: []any{v}})
}

func (r *renderer) lookup(p *PathExpr) any {
	if p.Data {
		if len(p.Parts) == 0 {
			return Undefined
		}
		var base any
		if p.Parts[0] == "root" {
			base = r.sc.root()
		} else {
			v, ok := r.sc.lookupVarAt(p.Parts[0], p.Depth)
			if !ok {
				return Undefined
			}
			base = v
		}
		return walk(base, p.Parts[1:])
	}
	if !p.This && p.Depth == 0 && len(p.Parts) > 0 {
		if v, ok := r.sc.lookupParam(p.Parts[0]); ok {
			return walk(v, p.Parts[1:])
		}
	}
	return walk(r.sc.context(p.Depth), p.Parts)
}

// walk descends into maps and arrays. Arrays and strings expose length.
func walk(v any, parts []string) any {
	for _, part := range parts {
		switch t := v.(type) {
		case map[string]any:
			next, ok := t[part]
			if !ok {
				return Undefined
			}
			v = next
		case map[string]string:
			next, ok := t[part]
			if !ok {
				return Undefined
			}
			v = next
		case []any:
			if part == "length" {
				v = float64(len(t))
				continue
			}
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(t) {
				return Undefined
			}
			v = t[i]
		case []string:
			if part == "length" {
				v = float64(len(t))
				continue
			}
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(t) {
				return Undefined
			}
			v = t[i]
		case string:
			if part != "length" {
				return Undefined
			}
			v = float64(utf8.RuneCountInString(t))
		case SafeString:
			if part != "length" {
				return Undefined
			}
			v = float64(utf8.RuneCountInString(string(t)))
		default:
			return Undefined
		}
	}
	return v
}
