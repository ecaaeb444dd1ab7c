package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoder_FormatEvent(t *testing.T) {
	enc := NewEncoder()

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"data only", Event{Data: "Hello, World!"}, "data:Hello, World!\n\n"},
		{"multiline", Event{Data: "a\nb"}, "data:a\ndata:b\n\n"},
		{"type and id", Event{Type: "message", ID: "7", Data: "x"}, "event:message\nid:7\ndata:x\n\n"},
		{"json", Event{Data: map[string]int{"n": 1}}, "data:{\"n\":1}\n\n"},
		{"nil data", Event{Type: "ping"}, "event:ping\ndata:\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := enc.FormatEvent(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := enc.FormatEvent(Event{Type: "bad\ntype"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestEncoder_Comments(t *testing.T) {
	enc := NewEncoder()
	assert.Equal(t, ":a\n:b\n\n", enc.FormatComment("a\nb"))
	assert.Equal(t, ": keepalive\n\n", enc.FormatKeepalive())
}

func TestBroker_PublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch, unsubscribe := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	b.Publish(Event{Data: "one"})
	assert.Equal(t, "one", (<-ch).Data)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, b.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}

func TestBroker_DropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Data: i})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	ch, _ := b.Subscribe()
	b.Close()
	_, open := <-ch
	assert.False(t, open)

	late, _ := b.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestBroker_Stream(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = b.Stream(r.Context(), w, []Event{{Type: "hello", Data: "initial"}}, time.Hour)
	}))
	defer srv.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if line == "\n" {
				return strings.Join(lines, "")
			}
			lines = append(lines, line)
		}
	}

	assert.Equal(t, "event:hello\ndata:initial\n", readEvent())

	require.Eventually(t, func() bool { return b.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	b.Publish(Event{Type: "entry", Data: "live"})
	assert.Equal(t, "event:entry\ndata:live\n", readEvent())
}
