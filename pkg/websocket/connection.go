package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/runstate"
)

// WriteTimeout bounds a single outbound message.
const WriteTimeout = 10 * time.Second

// Connection is an open WebSocket connection on a route.
type Connection struct {
	id          string
	route       *environment.Route
	run         *runstate.Run
	req         *request.Request
	conn        *ws.Conn
	connectedAt time.Time

	messagesSent atomic.Int64
	messagesRecv atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	sendMu sync.Mutex
	closed atomic.Bool
}

func newConnection(conn *ws.Conn, route *environment.Route, run *runstate.Run, req *request.Request) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:          "ws-" + uuid.NewString(),
		route:       route,
		run:         run,
		req:         req,
		conn:        conn,
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ID returns the unique connection ID.
func (c *Connection) ID() string {
	return c.id
}

// Route returns the route the connection belongs to.
func (c *Connection) Route() *environment.Route {
	return c.route
}

// ConnectedAt returns the connection establishment time.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// MessagesSent returns the total messages sent.
func (c *Connection) MessagesSent() int64 {
	return c.messagesSent.Load()
}

// MessagesReceived returns the total messages received.
func (c *Connection) MessagesReceived() int64 {
	return c.messagesRecv.Load()
}

// Context is cancelled when the connection closes.
func (c *Connection) Context() context.Context {
	return c.ctx
}

// IsClosed returns whether the connection is closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// SendText sends a text message.
func (c *Connection) SendText(text string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	ctx, cancel := context.WithTimeout(c.ctx, WriteTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, ws.MessageText, []byte(text)); err != nil {
		return err
	}
	c.messagesSent.Add(1)
	return nil
}

// read returns the next message.
func (c *Connection) read() (ws.MessageType, []byte, error) {
	typ, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return 0, nil, err
	}
	c.messagesRecv.Add(1)
	return typ, data, nil
}

// Close closes the connection with the given status and reason.
func (c *Connection) Close(code ws.StatusCode, reason string) error {
	if c.closed.Swap(true) {
		return ErrConnectionClosed
	}
	err := c.conn.Close(code, reason)
	c.cancel()
	return err
}
