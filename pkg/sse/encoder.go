// Package sse writes server-sent event streams. The admin API streams
// request log entries to clients with it.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SSE field prefixes.
const (
	fieldEvent   = "event:"
	fieldData    = "data:"
	fieldID      = "id:"
	fieldComment = ":"
)

// ErrInvalidEvent is returned for event types or ids containing line
// breaks.
var ErrInvalidEvent = errors.New("event type and id must be single line")

// Event is one server-sent event. Data is written as is when it is a
// string or []byte and JSON encoded otherwise.
type Event struct {
	Type string
	ID   string
	Data any
}

// Encoder renders events in the text/event-stream format of the HTML
// EventSource standard.
type Encoder struct{}

// NewEncoder returns an Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// FormatEvent renders event, one data: line per line of its payload.
func (e *Encoder) FormatEvent(event Event) (string, error) {
	if strings.ContainsAny(event.Type+event.ID, "\r\n") {
		return "", ErrInvalidEvent
	}
	payload, err := e.payload(event.Data)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if event.Type != "" {
		writeField(&sb, fieldEvent, event.Type)
	}
	if event.ID != "" {
		writeField(&sb, fieldID, event.ID)
	}
	writeLines(&sb, fieldData, payload)
	return sb.String(), nil
}

// FormatComment renders comment as comment lines, which EventSource
// clients ignore.
func (e *Encoder) FormatComment(comment string) string {
	var sb strings.Builder
	writeLines(&sb, fieldComment, comment)
	return sb.String()
}

// FormatKeepalive returns the comment sent on idle streams.
func (e *Encoder) FormatKeepalive() string {
	return e.FormatComment(" keepalive")
}

func writeField(sb *strings.Builder, field, value string) {
	sb.WriteString(field)
	sb.WriteString(value)
	sb.WriteByte('\n')
}

// writeLines writes one field per line of value and ends the event.
func writeLines(sb *strings.Builder, field, value string) {
	for line := range strings.SplitSeq(value, "\n") {
		writeField(sb, field, line)
	}
	sb.WriteByte('\n')
}

func (e *Encoder) payload(data any) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding event data: %w", err)
	}
	return string(b), nil
}
