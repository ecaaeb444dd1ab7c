package template

import (
	"github.com/mockenv/mockenv/pkg/faker"
)

// BlockOptions controls how a block helper renders one of its sections.
// A nil *BlockOptions renders the section in the current frame.
type BlockOptions struct {
	// This replaces the context when ChangeContext is set.
	This          any
	ChangeContext bool
	// Vars are the @data variables of the new frame.
	Vars map[string]any
	// Params bind to the block's "as |a b|" names in order.
	Params []any
	// Switch marks the frame as a switch scope.
	Switch *SwitchState
}

// Call is a single helper invocation.
type Call struct {
	Name string
	Args []any
	Hash map[string]any
	Line int
	Ctx  *Context

	r     *renderer
	block *BlockNode
}

// Arg returns the i-th positional argument, Undefined when absent.
func (c *Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return Undefined
	}
	return c.Args[i]
}

// NumArgs is the number of positional arguments.
func (c *Call) NumArgs() int {
	return len(c.Args)
}

// StringArg returns the i-th argument when it is a string.
func (c *Call) StringArg(i int) (string, bool) {
	switch t := c.Arg(i).(type) {
	case string:
		return t, true
	case SafeString:
		return string(t), true
	}
	return "", false
}

// NumberArg coerces the i-th argument with ToNumber.
func (c *Call) NumberArg(i int) (float64, bool) {
	return ToNumber(c.Arg(i))
}

// HashArg returns a key=value argument.
func (c *Call) HashArg(key string) (any, bool) {
	v, ok := c.Hash[key]
	return v, ok
}

// IsBlock reports whether the helper was called as a block.
func (c *Call) IsBlock() bool {
	return c.block != nil
}

// This returns the current context.
func (c *Call) This() any {
	if c.r == nil {
		return nil
	}
	return c.r.sc.this()
}

// Fn renders the main section of a block. It renders nothing when the
// helper was not called as a block.
func (c *Call) Fn(opts *BlockOptions) (SafeString, error) {
	if c.block == nil {
		return "", nil
	}
	s, err := c.r.section(c.block.Program, c.block.Params, opts)
	return SafeString(s), err
}

// Inverse renders the {{else}} section of a block.
func (c *Call) Inverse(opts *BlockOptions) (SafeString, error) {
	if c.block == nil {
		return "", nil
	}
	s, err := c.r.section(c.block.Inverse, c.block.Params, opts)
	return SafeString(s), err
}

// SetVar binds an @data variable in the current frame.
func (c *Call) SetVar(name string, v any) {
	if c.r != nil {
		c.r.sc.setVar(name, v)
	}
}

// LookupVar resolves an @data variable from the current frame outward.
func (c *Call) LookupVar(name string) (any, bool) {
	if c.r == nil {
		return nil, false
	}
	return c.r.sc.lookupVar(name)
}

// Switch returns the innermost enclosing switch, or nil.
func (c *Call) Switch() *SwitchState {
	if c.r == nil {
		return nil
	}
	return c.r.sc.nearestSwitch()
}

// Faker returns the generator for this render.
func (c *Call) Faker() *faker.Generator {
	return c.r.e.fakerFor(c.Ctx)
}

// Render renders src with the same engine and context.
func (c *Call) Render(src string) (string, error) {
	return c.r.e.Render(src, c.Ctx)
}
