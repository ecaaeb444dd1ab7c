// Package template renders the dynamic content of mock responses: bodies,
// headers, callback payloads, rule values and data bucket definitions.
//
// Templates use the mustache syntax most mock authors already know:
//
//	{{body 'user.name' 'anonymous'}}
//	{{#each (dataRaw 'Users')}}{{name}}{{#unless @last}},{{/unless}}{{/each}}
//	{{#switch (queryParam 'type')}}{{#case 'a'}}A{{/case}}{{#default}}?{{/default}}{{/switch}}
//
// Supported constructs are text, {{expr}} (HTML-escaped), {{{expr}}} and
// {{& expr}} (raw), blocks with {{else}} and {{else helper ...}} chains,
// inverse sections {{^x}}, comments, \{{ escapes, ~ whitespace control,
// subexpressions, hash arguments, literals, this, ../ parent access,
// @data variables and "as |a b|" block parameters.
//
// # Values
//
// Helpers exchange native JSON values (nil, bool, float64, string, []any,
// map[string]any) plus SafeString and Undefined. Only the final output is
// stringified: objects and arrays as compact JSON, SafeString as is, plain
// strings HTML-escaped unless written with triple braces.
//
// # Scopes
//
// Each render owns an arena of frames. Block helpers that iterate or
// branch (each, repeat, switch, case, default, base64) push a frame; setVar
// writes into the current frame and @name lookups walk toward the root.
// Writes inside a block are therefore dropped when the block ends, while
// root writes stay visible for the rest of the render.
//
// # Script mode
//
// A template whose first line is "#!script" is evaluated with expr-lang
// instead. Every helper is callable, both directly and through the helpers
// namespace, and render(tpl) re-enters the template engine.
//
// # Errors
//
// Syntax errors are reported as *ParseError and helper failures as
// *HelperError; both carry the line of the offending tag.
package template
