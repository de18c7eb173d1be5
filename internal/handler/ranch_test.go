package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/jacobs-ranch/internal/handler"
	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/remote"
)

type profileBody struct {
	Profile            model.BoardingPreferences `json:"profile"`
	NeedsProfilePrompt bool                      `json:"needsProfilePrompt"`
	Saved              bool                      `json:"saved"`
}

type horsesBody struct {
	Horses             []model.Horse `json:"horses"`
	Finished           bool          `json:"finished"`
	NeedsProfilePrompt bool          `json:"needsProfilePrompt"`
	Saved              bool          `json:"saved"`
}

func TestRanchRoutesRequireAuth(t *testing.T) {
	h := newRanchHarness(t)

	for _, path := range []string{"/api/profile", "/api/fees", "/api/horses", "/api/stalls"} {
		rr := h.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)

		rr = h.do(http.MethodGet, path, "tok-mallory", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestGetProfile(t *testing.T) {
	h := newRanchHarness(t)
	h.seedProfile("alice", "alice@example.com", true, false)

	rr := h.do(http.MethodGet, "/api/profile", "tok-alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decode[profileBody](t, rr)
	assert.Equal(t, "alice", body.Profile.UserID)
	assert.Equal(t, "alice@example.com", body.Profile.Email)
	assert.True(t, body.Profile.UsesWifi)
	assert.False(t, body.Profile.UsesTrailer)
	assert.Equal(t, 1, body.Profile.WifiSubscriberCount)
	assert.Equal(t, 14, body.Profile.AvailableStalls)
	assert.False(t, body.NeedsProfilePrompt)
}

func TestPatchProfile(t *testing.T) {
	h := newRanchHarness(t)
	h.seedProfile("alice", "alice@example.com", false, false)
	h.seedProfile("bob", "bob@example.com", true, false)

	t.Run("wifi toggle saves and refreshes subscribers", func(t *testing.T) {
		rr := h.do(http.MethodPatch, "/api/profile", "tok-alice", map[string]bool{"usesWifi": true})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		body := decode[profileBody](t, rr)
		assert.True(t, body.Profile.UsesWifi)
		assert.Equal(t, 2, body.Profile.WifiSubscriberCount)

		raw, err := h.db.Select(context.Background(), remote.TableProfiles,
			remote.Where(remote.Eq{Column: "id", Value: "alice"}))
		require.NoError(t, err)
		var rows []model.ProfileRow
		require.NoError(t, json.Unmarshal(raw, &rows))
		require.Len(t, rows, 1)
		assert.True(t, rows[0].UsesWifi)
	})

	t.Run("trailer toggle leaves wifi alone", func(t *testing.T) {
		rr := h.do(http.MethodPatch, "/api/profile", "tok-alice", map[string]bool{"usesTrailer": true})
		require.Equal(t, http.StatusOK, rr.Code)

		body := decode[profileBody](t, rr)
		assert.True(t, body.Profile.UsesTrailer)
		assert.True(t, body.Profile.UsesWifi)
	})

	t.Run("empty patch", func(t *testing.T) {
		rr := h.do(http.MethodPatch, "/api/profile", "tok-alice", map[string]bool{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := h.do(http.MethodPatch, "/api/profile", "tok-alice", `{"usesWifi":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decode[handler.ErrorResponse](t, rr)
		assert.Equal(t, "validation_error", body.Error)
	})
}

func TestFees(t *testing.T) {
	h := newRanchHarness(t)
	h.seedProfile("alice", "alice@example.com", true, true)
	h.seedProfile("bob", "bob@example.com", true, false)
	h.seedHorse("alice", "Biscuit", nil)
	h.seedHorse("alice", "Pepper", nil)

	rr := h.do(http.MethodGet, "/api/fees", "tok-alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Rent                int     `json:"rent"`
		TrailerFee          int     `json:"trailerFee"`
		WifiShare           float64 `json:"wifiShare"`
		Subtotal            float64 `json:"subtotal"`
		HorseCount          int     `json:"horseCount"`
		WifiSubscriberCount int     `json:"wifiSubscriberCount"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, 500, body.Rent)
	assert.Equal(t, 50, body.TrailerFee)
	assert.InDelta(t, 25.0, body.WifiShare, 0.001)
	assert.InDelta(t, 575.0, body.Subtotal, 0.001)
	assert.Equal(t, 2, body.HorseCount)
	assert.Equal(t, 2, body.WifiSubscriberCount)
}

func TestHorseLifecycle(t *testing.T) {
	h := newRanchHarness(t)
	h.seedProfile("alice", "alice@example.com", false, false)

	rr := h.do(http.MethodPost, "/api/horses", "tok-alice", nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[model.Horse](t, rr)
	require.NotNil(t, created.ID)
	assert.Equal(t, "alice", created.UserID)
	assert.Empty(t, created.Name)
	assert.Nil(t, created.StallNumber)

	rr = h.do(http.MethodGet, "/api/horses", "tok-alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[horsesBody](t, rr)
	require.Len(t, list.Horses, 1)
	assert.True(t, list.Finished)
	assert.True(t, list.NeedsProfilePrompt, "single blank horse prompts for details")

	stall := 3
	edited := created
	edited.Name = "  Biscuit "
	edited.OwnerContact = "(555) 123 4567"
	edited.StallNumber = &stall

	rr = h.do(http.MethodPut, "/api/horses", "tok-alice", map[string]any{"horses": []model.Horse{edited}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	saved := decode[horsesBody](t, rr)
	require.Len(t, saved.Horses, 1)
	assert.Equal(t, "555-123-4567", saved.Horses[0].OwnerContact)
	assert.True(t, saved.Saved)
	assert.False(t, saved.NeedsProfilePrompt)

	// The write reached the database.
	rr = h.do(http.MethodGet, "/api/horses?refresh=true", "tok-alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	reloaded := decode[horsesBody](t, rr)
	require.Len(t, reloaded.Horses, 1)
	assert.Equal(t, "555-123-4567", reloaded.Horses[0].OwnerContact)
	require.NotNil(t, reloaded.Horses[0].StallNumber)
	assert.Equal(t, 3, *reloaded.Horses[0].StallNumber)

	path := "/api/horses/" + strconv.FormatInt(*created.ID, 10)
	rr = h.do(http.MethodDelete, path, "tok-alice", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = h.do(http.MethodDelete, path, "tok-alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSaveRosterRejections(t *testing.T) {
	h := newRanchHarness(t)
	h.seedProfile("alice", "alice@example.com", false, false)
	first := h.seedHorse("alice", "Biscuit", nil)
	second := h.seedHorse("alice", "Pepper", nil)
	h.seedHorse("bob", "Shadow", nil)

	// Open the session so the roster is loaded.
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/horses", "tok-alice", nil).Code)

	horse := func(id int64, name, contact string) model.Horse {
		return model.Horse{ID: &id, UserID: "alice", Name: name, OwnerContact: contact}
	}

	tests := []struct {
		name      string
		horses    []model.Horse
		wantCode  int
		wantField string
		wantMsg   string
	}{
		{
			name:      "duplicate names ignore case and spaces",
			horses:    []model.Horse{horse(first, "Biscuit", ""), horse(second, " biscuit", "")},
			wantCode:  http.StatusBadRequest,
			wantField: "name",
		},
		{
			name:      "short phone",
			horses:    []model.Horse{horse(first, "Biscuit", "555-1234"), horse(second, "Pepper", "")},
			wantCode:  http.StatusBadRequest,
			wantField: "contact",
			wantMsg:   "Phone numbers must be 10 digits.",
		},
		{
			name:     "unknown horse",
			horses:   []model.Horse{horse(999, "Ghost", "")},
			wantCode: http.StatusNotFound,
		},
		{
			name:     "horse without id",
			horses:   []model.Horse{{UserID: "alice", Name: "New"}},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(http.MethodPut, "/api/horses", "tok-alice", map[string]any{"horses": tt.horses})
			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())

			body := decode[handler.ErrorResponse](t, rr)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, body.Field)
			}
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body.Message)
			}
		})
	}
}

func TestDeleteHorseChecks(t *testing.T) {
	h := newRanchHarness(t)
	h.seedProfile("alice", "alice@example.com", false, false)
	bobs := h.seedHorse("bob", "Shadow", nil)

	rr := h.do(http.MethodDelete, "/api/horses/abc", "tok-alice", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Another user's horse is not in alice's roster.
	rr = h.do(http.MethodDelete, "/api/horses/"+strconv.FormatInt(bobs, 10), "tok-alice", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(http.MethodGet, "/api/horses", "tok-bob", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[horsesBody](t, rr).Horses, 1)
}

func TestStalls(t *testing.T) {
	h := newRanchHarness(t)
	h.seedProfile("alice", "alice@example.com", false, false)
	h.seedHorse("alice", "Biscuit", 3)
	h.seedHorse("alice", "Pepper", nil)

	rr := h.do(http.MethodGet, "/api/stalls", "tok-alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Stalls          []model.StallAssignment `json:"stalls"`
		Rows            [2][]int                `json:"rows"`
		AvailableStalls int                     `json:"availableStalls"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))

	require.Len(t, body.Stalls, 14)
	require.NotNil(t, body.Stalls[2].Horse)
	assert.Equal(t, "Biscuit", body.Stalls[2].Horse.Name)
	assert.Nil(t, body.Stalls[0].Horse)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, body.Rows[0])
	assert.Equal(t, []int{8, 9, 10, 11, 12, 13, 14}, body.Rows[1])
	assert.Equal(t, 14, body.AvailableStalls)
}

func TestPatchProfile_BeforeProfileLoads(t *testing.T) {
	h := newRanchHarness(t)

	rr := h.do(http.MethodPatch, "/api/profile", "tok-bob", map[string]bool{"usesWifi": true})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	// The row appears; the next request loads it and the toggle is stored.
	h.seedProfile("bob", "bob@example.com", false, false)
	rr = h.do(http.MethodPatch, "/api/profile", "tok-bob", map[string]bool{"usesWifi": true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[profileBody](t, rr).Profile.UsesWifi)

	raw, err := h.db.Select(context.Background(), remote.TableProfiles,
		remote.Where(remote.Eq{Column: "id", Value: "bob"}))
	require.NoError(t, err)
	var rows []model.ProfileRow
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, 1)
	assert.True(t, rows[0].UsesWifi)
}

func TestSaveRoster_RejectsUnknownStall(t *testing.T) {
	h := newRanchHarness(t)
	h.seedProfile("alice", "alice@example.com", false, false)
	id := h.seedHorse("alice", "Apple", nil)

	stall := 99
	rr := h.do(http.MethodPut, "/api/horses", "tok-alice", map[string]any{
		"horses": []model.Horse{{ID: &id, UserID: "alice", Name: "Apple", StallNumber: &stall}},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "stall", decode[handler.ErrorResponse](t, rr).Field)

	raw, err := h.db.Select(context.Background(), remote.TableHorses,
		remote.Where(remote.Eq{Column: "id", Value: id}))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"stall_number":null`)
}
