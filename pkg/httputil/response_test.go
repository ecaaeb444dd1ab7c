package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	t.Run("writes JSON with correct content type", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteJSON(rec, http.StatusOK, map[string]string{"foo": "bar"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var result map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "bar", result["foo"])
	})

	t.Run("handles nil data", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()

		WriteJSON(rec, http.StatusNoContent, nil)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})
}

func TestWriteMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		write   func(w http.ResponseWriter)
		status  int
		message string
	}{
		{"message", func(w http.ResponseWriter) { WriteMessage(w, http.StatusAccepted, "done") }, http.StatusAccepted, "done"},
		{"bad request", WriteBadRequest, http.StatusBadRequest, "Invalid request"},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "Global variable not found") }, http.StatusNotFound, "Global variable not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestWriteText(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteText(rec, http.StatusBadGateway, "upstream down")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "upstream down", rec.Body.String())

	rec = httptest.NewRecorder()
	WriteText(rec, 0, "kept status")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIsJSONContentType(t *testing.T) {
	t.Parallel()

	assert.True(t, IsJSONContentType("application/json; charset=utf-8"))
	assert.True(t, IsJSONContentType("Application/JSON"))
	assert.False(t, IsJSONContentType("text/plain"))
	assert.False(t, IsJSONContentType(""))
}
