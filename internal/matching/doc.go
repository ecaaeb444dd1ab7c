// Package matching provides the request matching primitives used by the
// server and the response resolver.
//
// It covers:
//
//   - Endpoint patterns: ":name" and ":name?" parameters, "*" wildcards,
//     "(...)" groups with "?" and "+" quantifiers, and backslash escapes
//     for literal characters
//   - Loose equality between extracted values and rule values
//   - A bounded cache of compiled regular expressions
package matching
