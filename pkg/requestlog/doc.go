// Package requestlog captures the requests an environment served so they
// can be inspected through the admin API.
//
// It is distinct from operational logging, which uses log/slog. Entries
// are written by the HTTP handler and the WebSocket adapter and read back
// with filters:
//
//	store := requestlog.NewMemoryStore(1000)
//	store.Log(&requestlog.Entry{Protocol: requestlog.ProtocolHTTP, Method: "GET", Path: "/users"})
//	recent := store.List(&requestlog.Filter{Limit: 20})
//
// MemoryStore keeps a bounded ring of recent entries. SQLiteStore keeps
// them on disk and is pruned by age on a schedule.
package requestlog
