package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/auth"
	"github.com/sakif/jacobs-ranch/internal/handler"
	"github.com/sakif/jacobs-ranch/internal/notify"
	"github.com/sakif/jacobs-ranch/internal/remote"
	"github.com/sakif/jacobs-ranch/internal/repository/sqlstore"
	"github.com/sakif/jacobs-ranch/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// tokenMap accepts "tok-<user>" style tokens it was built with.
type tokenMap map[string]string

func (m tokenMap) ValidateSession(_ context.Context, token string) (string, error) {
	if id, ok := m[token]; ok {
		return id, nil
	}
	return "", apperror.Unauthorized("bad token")
}

// ranchHarness serves the ranch routes over a real in-memory database.
type ranchHarness struct {
	t        *testing.T
	db       *sqlstore.DB
	bus      *notify.Bus
	sessions *service.Sessions
	router   chi.Router
}

func newRanchHarness(t *testing.T) *ranchHarness {
	t.Helper()
	db, err := sqlstore.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := notify.NewBus(nil)
	sessions := service.NewSessions(db, bus, service.SystemClock, testLogger(), nil)
	ranch := handler.NewRanchHandler(sessions, testLogger())

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokenMap{"tok-alice": "alice", "tok-bob": "bob"}))
		r.Get("/api/profile", ranch.HandleGetProfile)
		r.Patch("/api/profile", ranch.HandlePatchProfile)
		r.Get("/api/fees", ranch.HandleFees)
		r.Get("/api/horses", ranch.HandleListHorses)
		r.Post("/api/horses", ranch.HandleAddHorse)
		r.Put("/api/horses", ranch.HandleSaveRoster)
		r.Delete("/api/horses/{id}", ranch.HandleDeleteHorse)
		r.Get("/api/stalls", ranch.HandleStalls)
	})

	return &ranchHarness{t: t, db: db, bus: bus, sessions: sessions, router: r}
}

func (h *ranchHarness) seedProfile(id, email string, wifi, trailer bool) {
	h.t.Helper()
	_, err := h.db.Insert(context.Background(), remote.TableProfiles, remote.Row{
		"id":           id,
		"email":        email,
		"uses_wifi":    wifi,
		"uses_trailer": trailer,
	})
	require.NoError(h.t, err)
}

func (h *ranchHarness) seedHorse(userID, name string, stall any) int64 {
	h.t.Helper()
	raw, err := h.db.Insert(context.Background(), remote.TableHorses, remote.Row{
		"user_id":           userID,
		"name":              name,
		"owners":            "",
		"owner_contact":     "",
		"emergency_contact": "",
		"vet_contact":       "",
		"stall_number":      stall,
	})
	require.NoError(h.t, err)
	var row struct {
		ID int64 `json:"id"`
	}
	require.NoError(h.t, json.Unmarshal(raw, &row))
	return row.ID
}

func (h *ranchHarness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	return serve(h.t, h.router, method, path, token, body)
}

func serve(t *testing.T, hh http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	hh.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}
