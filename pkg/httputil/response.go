// Package httputil provides shared HTTP response helpers for the mock
// server and its admin API.
package httputil

import (
	"encoding/json"
	"net/http"
	"strings"
)

// WriteJSON writes a JSON response with the given status code.
// It sets the Content-Type header to application/json.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteMessage writes a {"message": ...} JSON body, the shape of every
// admin API acknowledgement and error.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"message": message})
}

// WriteOK writes a 200 OK response with data.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteBadRequest writes the admin API's generic 400 response.
func WriteBadRequest(w http.ResponseWriter) {
	WriteMessage(w, http.StatusBadRequest, "Invalid request")
}

// WriteNotFound writes a 404 response with message.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusNotFound, message)
}

// WriteText writes a text/plain body. A zero status keeps whatever status
// the caller already chose, or 200.
func WriteText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = w.Write([]byte(text))
}

// IsJSONContentType reports whether a Content-Type value designates JSON.
func IsJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}
