package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/jacobs-ranch/internal/config"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.DSN = ":memory:"
	cfg.Blob.Driver = "memory"
	cfg.Auth.JWTSecret = "test-secret-0123456789abcdef"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := Build(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(srv.close)
	return srv.Handler()
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t)

	rr := call(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	// Produce one table store call so the counter has a series.
	call(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "a@example.com", "password": "pw", "confirmPassword": "pw", "inviteCode": "RANCH2017",
	})

	rr = call(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ranch_remote_operations_total")
}

func TestUnauthenticatedAPI(t *testing.T) {
	h := newTestServer(t)

	for _, path := range []string{"/api/profile", "/api/horses", "/api/fees", "/api/stalls", "/api/contract", "/api/auth/me"} {
		rr := call(t, h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/horses", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestBoardingFlow(t *testing.T) {
	h := newTestServer(t)

	rr := call(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "alice@example.com", "password": "hunter22", "confirmPassword": "hunter22", "inviteCode": "WRONG",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "alice@example.com", "password": "hunter22", "confirmPassword": "hunter22", "inviteCode": "RANCH2017",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = call(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&login))
	token := login.Token
	require.NotEmpty(t, token)

	rr = call(t, h, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email":"alice@example.com"`)

	rr = call(t, h, http.MethodPost, "/api/horses", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var horse map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&horse))

	horse["name"] = "Biscuit"
	horse["vet_contact"] = "5559876543"
	rr = call(t, h, http.MethodPut, "/api/horses", token, map[string]any{"horses": []any{horse}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "555-987-6543")

	rr = call(t, h, http.MethodPatch, "/api/profile", token, map[string]bool{"usesTrailer": true})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = call(t, h, http.MethodGet, "/api/fees", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var fees struct {
		Rent       int     `json:"rent"`
		TrailerFee int     `json:"trailerFee"`
		Subtotal   float64 `json:"subtotal"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&fees))
	assert.Equal(t, 250, fees.Rent)
	assert.Equal(t, 50, fees.TrailerFee)
	assert.InDelta(t, 300.0, fees.Subtotal, 0.001)

	rr = call(t, h, http.MethodGet, "/api/contract", token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = call(t, h, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = call(t, h, http.MethodGet, "/api/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "revoked token is refused")
}
