package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/mockenv/mockenv/pkg/content"
	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/logging"
	"github.com/mockenv/mockenv/pkg/metrics"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/requestlog"
	"github.com/mockenv/mockenv/pkg/resolver"
	"github.com/mockenv/mockenv/pkg/runstate"
	"github.com/mockenv/mockenv/pkg/template"
)

// MinStreamingInterval is the smallest interval streaming routes tick at.
const MinStreamingInterval = 10 * time.Millisecond

// DefaultMaxMessageSize bounds inbound messages.
const DefaultMaxMessageSize = 1 << 20

// Direction values of logged messages.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Options configures a Hub.
type Options struct {
	Metrics        *metrics.Collector
	RequestLog     requestlog.Logger
	Logger         *slog.Logger
	MaxMessageSize int64
}

// Hub owns every WebSocket connection of a server.
type Hub struct {
	resolver *resolver.Resolver
	renderer *content.Renderer
	metrics  *metrics.Collector
	reqLog   requestlog.Logger
	log      *slog.Logger
	maxSize  int64

	mu           sync.Mutex
	closed       bool
	conns        map[string]*Connection
	broadcasters map[string]*broadcaster
	wg           sync.WaitGroup
}

// NewHub returns a Hub selecting responses with res and rendering them
// with renderer.
func NewHub(res *resolver.Resolver, renderer *content.Renderer, opts Options) *Hub {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	maxSize := opts.MaxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Hub{
		resolver:     res,
		renderer:     renderer,
		metrics:      opts.Metrics,
		reqLog:       opts.RequestLog,
		log:          logging.Component(log, "websocket"),
		maxSize:      maxSize,
		conns:        map[string]*Connection{},
		broadcasters: map[string]*broadcaster{},
	}
}

// IsWebSocketRequest returns true if the request is a WebSocket upgrade request.
func IsWebSocketRequest(r *http.Request) bool {
	return headerHasToken(r.Header, "Connection", "upgrade") && headerHasToken(r.Header, "Upgrade", "websocket")
}

// StreamingInterval returns the tick interval of a streaming route.
func StreamingInterval(route *environment.Route) time.Duration {
	return max(time.Duration(route.StreamingInterval)*time.Millisecond, MinStreamingInterval)
}

// Serve upgrades r and attaches the connection to route. req is the
// parsed upgrade request; run is the run the connection belongs to.
// Serve returns once the connection is set up; it is served in the
// background until either side closes it.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, route *environment.Route, req *request.Request, run *runstate.Run) error {
	if route.Type != environment.RouteTypeWS {
		return ErrNotWebSocketRoute
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "server is restarting", http.StatusServiceUnavailable)
		return ErrHubClosed
	}

	wsConn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for mocking
		CompressionMode:    ws.CompressionDisabled,
	})
	if err != nil {
		return fmt.Errorf("websocket accept: %w", err)
	}
	wsConn.SetReadLimit(h.maxSize)

	conn := newConnection(wsConn, route, run, req)
	if !h.add(conn) {
		_ = conn.Close(ws.StatusGoingAway, "server is restarting")
		return ErrHubClosed
	}
	h.metrics.WebSocketOpened(route.UUID)
	h.log.Debug("connection opened", "connection", conn.id, "route", route.Endpoint, "mode", route.StreamingMode)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.remove(conn)
		h.handle(conn)
	}()
	return nil
}

func (h *Hub) add(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn.id] = conn
	if conn.route.StreamingMode == environment.StreamingBroadcast {
		b, ok := h.broadcasters[conn.route.UUID]
		if !ok {
			b = newBroadcaster(h, conn.route, conn.run, conn.req)
			h.broadcasters[conn.route.UUID] = b
			h.wg.Add(1)
			go func() {
				defer h.wg.Done()
				b.loop()
			}()
		}
		b.join(conn)
	}
	return true
}

func (h *Hub) remove(conn *Connection) {
	_ = conn.Close(ws.StatusNormalClosure, "")

	h.mu.Lock()
	delete(h.conns, conn.id)
	if b, ok := h.broadcasters[conn.route.UUID]; ok {
		if b.leave(conn) == 0 {
			delete(h.broadcasters, conn.route.UUID)
			b.stop()
		}
	}
	h.mu.Unlock()

	h.metrics.WebSocketClosed(conn.route.UUID)
	h.log.Debug("connection closed", "connection", conn.id, "sent", conn.MessagesSent(), "received", conn.MessagesReceived())
}

// handle runs the connection until it closes.
func (h *Hub) handle(conn *Connection) {
	switch conn.route.StreamingMode {
	case environment.StreamingUnicast:
		go h.unicast(conn)
		h.drain(conn)
	case environment.StreamingBroadcast:
		h.drain(conn)
	default:
		h.oneToOne(conn)
	}
}

// drain reads and discards inbound messages of streaming routes so close
// frames are processed.
func (h *Hub) drain(conn *Connection) {
	for {
		if _, _, err := conn.read(); err != nil {
			return
		}
	}
}

func (h *Hub) oneToOne(conn *Connection) {
	var number uint64 = 1
	for {
		typ, data, err := conn.read()
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			h.log.Warn("binary messages are not supported", "connection", conn.id, "route", conn.route.Endpoint)
			continue
		}
		h.logMessage(conn, DirectionInbound, string(data), "")

		msgReq := conn.req.WithMessage(data)
		sel, err := h.resolver.SelectNth(conn.route, msgReq, conn.run, number)
		if err != nil {
			continue
		}
		number++
		h.metrics.Selection(string(sel.Outcome))

		resp := sel.Response
		delay := time.Duration(resp.Latency) * time.Millisecond
		go func() {
			if delay > 0 {
				t := time.NewTimer(delay)
				defer t.Stop()
				select {
				case <-t.C:
				case <-conn.ctx.Done():
					return
				}
			}
			h.respond(conn, resp, msgReq)
		}()
	}
}

func (h *Hub) unicast(conn *Connection) {
	ticker := time.NewTicker(StreamingInterval(conn.route))
	defer ticker.Stop()

	var number uint64 = 1
	for {
		select {
		case <-conn.ctx.Done():
			return
		case <-ticker.C:
			sel, err := h.resolver.SelectNth(conn.route, conn.req, conn.run, number)
			if err != nil {
				continue
			}
			number++
			h.respond(conn, sel.Response, conn.req)
		}
	}
}

// respond renders resp for req and sends it on conn.
func (h *Hub) respond(conn *Connection, resp *environment.Response, req *request.Request) {
	msg, err := h.render(resp, req, conn.run)
	if err != nil {
		var fileErr *fileError
		if errors.As(err, &fileErr) {
			h.log.Warn("websocket file body failed", "connection", conn.id, "error", fileErr.err)
			_ = conn.SendText(fmt.Sprintf("Status: 500, File reading error! (%s)", fileErr.err))
			_ = conn.Close(ws.StatusInternalError, "file reading error")
			return
		}
		h.metrics.TemplateError("websocket")
		h.log.Warn("websocket body failed", "connection", conn.id, "error", err)
		return
	}
	if msg == "" {
		return
	}
	h.send(conn, msg, resp)
}

func (h *Hub) send(conn *Connection, msg string, resp *environment.Response) {
	if err := conn.SendText(msg); err != nil {
		if !errors.Is(err, ErrConnectionClosed) {
			h.log.Warn("websocket send failed", "connection", conn.id, "error", err)
		}
		return
	}
	h.logMessage(conn, DirectionOutbound, msg, resp.UUID)
}

type fileError struct{ err error }

func (e *fileError) Error() string { return e.err.Error() }
func (e *fileError) Unwrap() error { return e.err }

// render produces the message text of resp.
func (h *Hub) render(resp *environment.Response, req *request.Request, run *runstate.Run) (string, error) {
	tctx := run.TemplateContext(req, &template.ResponseState{})
	src := content.FromResponse(resp)
	if src.IsFile() {
		f, err := h.renderer.ReadFile(src, tctx)
		if err != nil {
			return "", &fileError{err: err}
		}
		return string(f.Data), nil
	}
	return h.renderer.Text(src, tctx)
}

func (h *Hub) logMessage(conn *Connection, direction, body, responseUUID string) {
	if h.reqLog == nil {
		return
	}
	entry := &requestlog.Entry{
		Timestamp:    time.Now(),
		Protocol:     requestlog.ProtocolWebSocket,
		Method:       "WS",
		Path:         conn.req.Path,
		RouteUUID:    conn.route.UUID,
		ResponseUUID: responseUUID,
		RemoteAddr:   conn.req.IP,
		WebSocket:    &requestlog.WebSocketMeta{ConnectionID: conn.id, Direction: direction},
	}
	if direction == DirectionInbound {
		entry.Body, entry.BodySize = requestlog.Truncate(body), len(body)
	} else {
		entry.ResponseBody = requestlog.Truncate(body)
	}
	h.reqLog.Log(entry)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every open connection. The hub keeps accepting new
// ones; it is how a run restart drops connections bound to the old run.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(ws.StatusGoingAway, "server restarted")
	}
}

// Close closes every connection, refuses new ones and waits for the
// connection goroutines to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.CloseAll()
	h.wg.Wait()
}
