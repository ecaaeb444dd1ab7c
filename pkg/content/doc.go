// Package content renders what a mock sends: response and callback
// bodies (inline templates, data bucket values, files) and templated
// header lists.
//
// The HTTP server, the WebSocket hub and the callback dispatcher share
// this package so a body means the same thing on every transport.
package content
