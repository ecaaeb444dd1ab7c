package websocket

import (
	"sync"
	"time"

	"github.com/mockenv/mockenv/pkg/environment"
	"github.com/mockenv/mockenv/pkg/request"
	"github.com/mockenv/mockenv/pkg/runstate"
)

// broadcaster renders one message per tick for a BROADCAST route and
// delivers it to every connection of the route.
type broadcaster struct {
	hub   *Hub
	route *environment.Route
	run   *runstate.Run
	req   *request.Request

	mu      sync.Mutex
	members map[string]*Connection
	done    chan struct{}
	once    sync.Once
}

func newBroadcaster(h *Hub, route *environment.Route, run *runstate.Run, req *request.Request) *broadcaster {
	return &broadcaster{
		hub:     h,
		route:   route,
		run:     run,
		req:     req,
		members: map[string]*Connection{},
		done:    make(chan struct{}),
	}
}

func (b *broadcaster) join(c *Connection) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members[c.id] = c
}

// leave removes c and returns how many members remain.
func (b *broadcaster) leave(c *Connection) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, c.id)
	return len(b.members)
}

func (b *broadcaster) stop() {
	b.once.Do(func() { close(b.done) })
}

func (b *broadcaster) snapshot() []*Connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Connection, 0, len(b.members))
	for _, c := range b.members {
		out = append(out, c)
	}
	return out
}

// loop broadcasts until stop is called.
func (b *broadcaster) loop() {
	ticker := time.NewTicker(StreamingInterval(b.route))
	defer ticker.Stop()

	var number uint64 = 1
	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			sel, err := b.hub.resolver.SelectNth(b.route, b.req, b.run, number)
			if err != nil {
				continue
			}
			number++
			msg, err := b.hub.render(sel.Response, b.req, b.run)
			if err != nil {
				b.hub.metrics.TemplateError("websocket")
				b.hub.log.Warn("broadcast body failed", "route", b.route.Endpoint, "error", err)
				continue
			}
			if msg == "" {
				continue
			}
			for _, c := range b.snapshot() {
				if !c.IsClosed() {
					b.hub.send(c, msg, sel.Response)
				}
			}
		}
	}
}
