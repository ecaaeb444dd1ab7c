package template

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// reservedScriptNames are expr builtins and keywords. Helpers with these
// names are reachable only through the helpers namespace.
var reservedScriptNames = map[string]bool{}

func init() {
	for _, n := range strings.Fields(`
		not and or in matches contains startsWith endsWith let if else nil true false
		all any one none map filter find findIndex findLast findLastIndex count sum
		groupBy sortBy sort reduce len type abs ceil floor round int float string
		trim trimPrefix trimSuffix upper lower split splitAfter replace repeat
		indexOf lastIndexOf hasPrefix hasSuffix max min mean median toJSON fromJSON
		toBase64 fromBase64 now duration date timezone first last get take keys
		values toPairs fromPairs uniq concat flatten join reverse
		bitand bitor bitxor bitnand bitnot bitshl bitshr bitushr
		request helpers render`) {
		reservedScriptNames[n] = true
	}
}

type scriptCache struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func newScriptCache() *scriptCache {
	return &scriptCache{programs: make(map[string]*vm.Program)}
}

func (c *scriptCache) compile(code string, env map[string]any) (*vm.Program, error) {
	c.mu.RLock()
	if program, ok := c.programs[code]; ok {
		c.mu.RUnlock()
		return program, nil
	}
	c.mu.RUnlock()

	program, err := expr.Compile(code, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing, ok := c.programs[code]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	if len(c.programs) >= DefaultCacheSize {
		c.programs = make(map[string]*vm.Program)
	}
	c.programs[code] = program
	c.mu.Unlock()

	return program, nil
}

// prepareScript makes a trailing "let result = ...;" yield result.
func prepareScript(code string) string {
	code = strings.TrimSpace(code)
	if strings.HasSuffix(code, ";") {
		code += " result"
	}
	return code
}

func (e *Engine) runScript(code string, ctx *Context) (any, error) {
	r := e.newRenderer(ctx)
	env := e.scriptEnv(r)

	code = prepareScript(code)
	program, err := e.scripts.compile(code, env)
	if err != nil {
		return nil, fmt.Errorf("%w: compile: %w", ErrScript, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScript, err)
	}
	return out, nil
}

func (e *Engine) scriptEnv(r *renderer) map[string]any {
	helpers := make(map[string]any)
	env := map[string]any{
		"helpers": helpers,
		"request": scriptRequest(r.ctx),
		"render": func(src string) (string, error) {
			return e.Render(src, r.ctx)
		},
	}
	for _, name := range e.registry.Names() {
		h, _ := e.registry.Lookup(name)
		fn := scriptHelper(r, name, h)
		helpers[name] = fn
		if !reservedScriptNames[name] {
			env[name] = fn
		}
	}
	return env
}

func scriptHelper(r *renderer, name string, h Helper) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		c := &Call{Name: name, Args: args, Ctx: r.ctx, r: r}
		v, err := h.Invoke(c)
		if err != nil {
			return nil, wrapHelperError(name, 0, err)
		}
		return Unwrap(v), nil
	}
}

func scriptRequest(ctx *Context) map[string]any {
	req := ctx.Request
	if req == nil {
		return map[string]any{}
	}
	return map[string]any{
		"method":  strings.ToLower(req.Method),
		"path":    req.Path,
		"query":   req.Query,
		"headers": req.HeaderMap(),
		"body":    req.Body,
		"rawBody": req.BodyString(),
		"params":  req.ParamMap(),
		"cookies": req.CookieMap(),
	}
}
