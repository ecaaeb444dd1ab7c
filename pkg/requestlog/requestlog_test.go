package requestlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

type prunableStore interface {
	Store
	Pruner
}

// storeFactories runs the same contract against every implementation.
func storeFactories(t *testing.T) map[string]func() prunableStore {
	return map[string]func() prunableStore{
		"memory": func() prunableStore { return NewMemoryStore(100) },
		"sqlite": func() prunableStore {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "log.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()

			s.Log(&Entry{Method: "GET", Path: "/users", RouteUUID: "r1", ResponseStatus: 200})
			s.Log(&Entry{Method: "POST", Path: "/users/1", RouteUUID: "r1", ResponseStatus: 500, Error: "boom"})
			s.Log(&Entry{Method: "GET", Path: "/orders", Proxied: true, ResponseStatus: 404})
			s.Log(&Entry{Protocol: ProtocolWebSocket, Method: "GET", Path: "/ws", WebSocket: &WebSocketMeta{ConnectionID: "c1", Direction: "inbound"}})

			require.Equal(t, 4, s.Count())

			all := s.List(nil)
			require.Len(t, all, 4)
			assert.Equal(t, "/ws", all[0].Path, "newest first")
			assert.Equal(t, ProtocolHTTP, all[3].Protocol, "protocol defaults to http")
			assert.NotEmpty(t, all[3].ID)
			assert.False(t, all[3].Timestamp.IsZero())

			got := s.Get(all[1].ID)
			require.NotNil(t, got)
			assert.Equal(t, "/orders", got.Path)
			assert.Nil(t, s.Get("missing"))

			assert.Len(t, s.List(&Filter{Path: "/users"}), 2)
			assert.Len(t, s.List(&Filter{Method: "get"}), 3)
			assert.Len(t, s.List(&Filter{RouteUUID: "r1"}), 2)
			assert.Len(t, s.List(&Filter{StatusCode: 500}), 1)
			assert.Len(t, s.List(&Filter{HasError: boolPtr(true)}), 1)
			assert.Len(t, s.List(&Filter{Proxied: boolPtr(true)}), 1)
			assert.Len(t, s.List(&Filter{Protocol: ProtocolWebSocket}), 1)

			page := s.List(&Filter{Limit: 2, Offset: 1})
			require.Len(t, page, 2)
			assert.Equal(t, "/orders", page[0].Path)
			assert.Empty(t, s.List(&Filter{Offset: 10}))

			ws := s.List(&Filter{Protocol: ProtocolWebSocket})[0]
			require.NotNil(t, ws.WebSocket)
			assert.Equal(t, "c1", ws.WebSocket.ConnectionID)

			s.Clear()
			assert.Equal(t, 0, s.Count())
		})
	}
}

func TestStore_Prune(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			now := time.Now()
			s.Log(&Entry{Method: "GET", Path: "/old", Timestamp: now.Add(-2 * time.Hour)})
			s.Log(&Entry{Method: "GET", Path: "/new", Timestamp: now})

			n, err := s.Prune(now.Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			require.Equal(t, 1, s.Count())
			assert.Equal(t, "/new", s.List(nil)[0].Path)
		})
	}
}

func TestMemoryStore_Evicts(t *testing.T) {
	s := NewMemoryStore(2)
	for _, p := range []string{"/a", "/b", "/c"} {
		s.Log(&Entry{Path: p})
	}
	list := s.List(nil)
	require.Len(t, list, 2)
	assert.Equal(t, "/c", list[0].Path)
	assert.Equal(t, "/b", list[1].Path)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.db")
	s, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	s.Log(&Entry{Path: "/persisted"})
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	s.Log(&Entry{Path: "/second"})

	list := s.List(nil)
	require.Len(t, list, 2)
	assert.NotEqual(t, list[0].ID, list[1].ID)
}

func TestTruncate(t *testing.T) {
	long := make([]byte, MaxBodySize+10)
	assert.Len(t, Truncate(string(long)), MaxBodySize)
	assert.Equal(t, "short", Truncate("short"))
}
