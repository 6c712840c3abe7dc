package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentTypeJSON(t *testing.T) {
	handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	do := func(method, contentType string) int {
		req := httptest.NewRequest(method, "/ledger/bootstrap", strings.NewReader("{}"))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("rejects non-JSON post", func(t *testing.T) {
		assert.Equal(t, http.StatusUnsupportedMediaType, do(http.MethodPost, "text/xml"))
	})

	t.Run("accepts JSON post", func(t *testing.T) {
		assert.Equal(t, http.StatusCreated, do(http.MethodPost, "application/json"))
		assert.Equal(t, http.StatusCreated, do(http.MethodPost, "application/json; charset=utf-8"))
	})

	t.Run("missing content type passes through", func(t *testing.T) {
		assert.Equal(t, http.StatusCreated, do(http.MethodPost, ""))
	})

	t.Run("reads are exempt", func(t *testing.T) {
		assert.Equal(t, http.StatusCreated, do(http.MethodGet, "text/xml"))
	})
}
