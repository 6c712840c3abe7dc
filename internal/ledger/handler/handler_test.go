package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credence/internal/ledger/models"
	"credence/internal/ledger/service"
	"credence/internal/ledger/store/memory"
	"credence/internal/platform/logger"
	"credence/internal/platform/middleware"
)

const (
	signingKey     = "test-signing-key"
	testCommitment = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
)

func itemHash(seed string) string {
	return strings.Repeat("0", 64-len(seed)) + seed
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.New()
	svc, err := service.New(store, models.DefaultParams())
	require.NoError(t, err)

	h := New(svc, logger.New(), middleware.NewModeratorValidator(signingKey))
	r := chi.NewRouter()
	h.Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any, headers ...string) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestBootstrapAndVoteFlow(t *testing.T) {
	srv := newServer(t)

	resp := postJSON(t, srv.URL+"/ledger/bootstrap", map[string]any{
		"identity":   "alice",
		"commitment": testCommitment,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ident := decode[map[string]any](t, resp)
	assert.Equal(t, float64(10), ident["reputation"])

	resp = postJSON(t, srv.URL+"/ledger/vote", map[string]any{
		"identity": "alice",
		"item":     itemHash("ab"),
		"side":     true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	vote := decode[map[string]any](t, resp)
	assert.Equal(t, float64(3162), vote["weight"])

	resp, err := http.Get(srv.URL + "/ledger/tally/" + itemHash("ab") + "?epoch=0")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tally := decode[map[string]any](t, resp)
	assert.Equal(t, float64(3162), tally["weighted_true"])
	assert.Equal(t, float64(1), tally["true_count"])
}

func TestErrorEnvelope(t *testing.T) {
	srv := newServer(t)

	t.Run("duplicate vote conflicts", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/ledger/bootstrap", map[string]any{
			"identity": "bob", "commitment": testCommitment,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		vote := map[string]any{"identity": "bob", "item": itemHash("cd"), "side": true}
		resp = postJSON(t, srv.URL+"/ledger/vote", vote)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()

		resp = postJSON(t, srv.URL+"/ledger/vote", vote)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		envelope := decode[map[string]string](t, resp)
		assert.Equal(t, "already_voted", envelope["error"])
	})

	t.Run("malformed item hash is a bad request", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/ledger/vote", map[string]any{
			"identity": "bob", "item": "not-hex", "side": true,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("unregistered identity lookup is not found", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/ledger/identity/ghost")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		envelope := decode[map[string]string](t, resp)
		assert.Equal(t, "not_registered", envelope["error"])
	})

	t.Run("premature epoch advance is unprocessable", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/ledger/epoch/advance", map[string]any{})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		resp.Body.Close()
	})
}

func moderatorToken(t *testing.T, key string) string {
	t.Helper()
	claims := middleware.ModeratorClaims{
		Role: "moderator",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "mod-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func TestModerationAuth(t *testing.T) {
	srv := newServer(t)

	resp := postJSON(t, srv.URL+"/ledger/bootstrap", map[string]any{
		"identity": "carol", "commitment": testCommitment,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	body := map[string]any{"identity": "carol", "amount": 4}

	t.Run("rejected without a token", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/admin/slash", body)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("rejected with a token signed by the wrong key", func(t *testing.T) {
		token := moderatorToken(t, "wrong-key")
		resp := postJSON(t, srv.URL+"/admin/slash", body, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("applies with a valid moderator token", func(t *testing.T) {
		token := moderatorToken(t, signingKey)
		resp := postJSON(t, srv.URL+"/admin/slash", body, "Authorization", "Bearer "+token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		ident := decode[map[string]any](t, resp)
		assert.Equal(t, float64(6), ident["reputation"])
	})
}

func TestStatusEndpoint(t *testing.T) {
	srv := newServer(t)

	resp := postJSON(t, srv.URL+"/ledger/bootstrap", map[string]any{
		"identity": "dave", "commitment": testCommitment,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	item := itemHash("1f")
	resp = postJSON(t, srv.URL+"/ledger/vote", map[string]any{
		"identity": "dave", "item": item, "side": false,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	url := fmt.Sprintf("%s/ledger/status/%s/dave?epoch=0", srv.URL, item)
	getResp, err := http.Get(url)
	require.NoError(t, err)
	status := decode[map[string]any](t, getResp)
	assert.Equal(t, true, status["voted"])
	assert.Equal(t, "false", status["side"])
	assert.Equal(t, false, status["claimed"])
}
