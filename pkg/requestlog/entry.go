package requestlog

import "time"

// Protocol constants for request logging.
const (
	ProtocolHTTP      = "http"
	ProtocolWebSocket = "websocket"
)

// MaxBodySize bounds the request and response bodies kept in an entry.
const MaxBodySize = 10 << 10

// Entry is one served request, or one WebSocket message.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Protocol  string    `json:"protocol"`

	Method      string              `json:"method"`
	Path        string              `json:"path"`
	QueryString string              `json:"queryString,omitempty"`
	Headers     map[string][]string `json:"headers,omitempty"`
	// Body is truncated to MaxBodySize; BodySize is the original size.
	Body       string `json:"body,omitempty"`
	BodySize   int    `json:"bodySize"`
	RemoteAddr string `json:"remoteAddr"`

	// RouteUUID and ResponseUUID identify what served the request. Both
	// are empty for proxied and unmatched requests.
	RouteUUID    string `json:"routeUUID,omitempty"`
	ResponseUUID string `json:"responseUUID,omitempty"`
	Proxied      bool   `json:"proxied,omitempty"`

	ResponseStatus int    `json:"responseStatus"`
	ResponseBody   string `json:"responseBody,omitempty"`
	DurationMs     int    `json:"durationMs"`
	Error          string `json:"error,omitempty"`

	WebSocket *WebSocketMeta `json:"websocket,omitempty"`
}

// WebSocketMeta describes a WebSocket message.
type WebSocketMeta struct {
	ConnectionID string `json:"connectionId"`
	// Direction is inbound or outbound.
	Direction string `json:"direction"`
}

// Truncate returns s cut to MaxBodySize bytes.
func Truncate(s string) string {
	if len(s) <= MaxBodySize {
		return s
	}
	return s[:MaxBodySize]
}
