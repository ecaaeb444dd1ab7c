package websocket

import "errors"

// Common errors for the websocket package.
var (
	// ErrConnectionClosed indicates the connection is closed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNotWebSocketRoute is returned when Serve gets a non-WebSocket route.
	ErrNotWebSocketRoute = errors.New("route is not a websocket route")
	// ErrHubClosed is returned by Serve after Close.
	ErrHubClosed = errors.New("websocket hub closed")
)
