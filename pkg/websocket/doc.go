// Package websocket serves the WebSocket routes of an environment.
//
// A route answers in one of three ways:
//   - one-to-one: every inbound text message is resolved against the
//     route's responses like an HTTP request body, and the rendered
//     response is sent back on the same connection;
//   - UNICAST streaming: each connection gets its own ticker sending the
//     route's responses in turn;
//   - BROADCAST streaming: a single ticker per route renders once per tick
//     and delivers the message to every open connection of the route.
//
// The package uses github.com/coder/websocket for the protocol.
package websocket
