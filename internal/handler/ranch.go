package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/fees"
	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/roster"
	"github.com/sakif/jacobs-ranch/internal/service"
)

// SessionProvider hands out the live session of a signed-in user.
// *service.Sessions implements it.
type SessionProvider interface {
	Get(ctx context.Context, userID string) (*service.Session, error)
}

// RanchHandler serves the boarding screens: profile toggles, fees, the
// horse roster and the stall map. Every route needs a signed-in user.
type RanchHandler struct {
	sessions SessionProvider
	logger   *slog.Logger
}

func NewRanchHandler(sessions SessionProvider, logger *slog.Logger) *RanchHandler {
	return &RanchHandler{sessions: sessions, logger: logger}
}

type profileResponse struct {
	Profile            model.BoardingPreferences `json:"profile"`
	NeedsProfilePrompt bool                      `json:"needsProfilePrompt"`
	Saved              bool                      `json:"saved"`
}

type profilePatch struct {
	UsesWifi    *bool `json:"usesWifi"`
	UsesTrailer *bool `json:"usesTrailer"`
}

type horsesResponse struct {
	Horses             []model.Horse `json:"horses"`
	Finished           bool          `json:"finished"`
	NeedsProfilePrompt bool          `json:"needsProfilePrompt"`
	Saved              bool          `json:"saved"`
}

type rosterRequest struct {
	Horses []model.Horse `json:"horses"`
}

type stallsResponse struct {
	Stalls          []model.StallAssignment `json:"stalls"`
	Rows            [2][]int                `json:"rows"`
	AvailableStalls int                     `json:"availableStalls"`
}

type feesResponse struct {
	fees.Snapshot
	HorseCount          int  `json:"horseCount"`
	UsesWifi            bool `json:"usesWifi"`
	UsesTrailer         bool `json:"usesTrailer"`
	WifiSubscriberCount int  `json:"wifiSubscriberCount"`
}

// session resolves the caller's session, writing the error response when
// it cannot.
func (h *RanchHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return nil, false
	}
	s, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return s, true
}

// HandleGetProfile
//
// HTTP: GET /api/profile
func (h *RanchHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		Profile:            s.Profile.Preferences(),
		NeedsProfilePrompt: s.NeedsProfilePrompt(),
		Saved:              s.Saved(),
	})
}

// HandlePatchProfile flips the Wi-Fi and trailer toggles. Each toggle is
// saved as soon as it is applied; a toggle that is absent is left alone.
//
// HTTP: PATCH /api/profile
func (h *RanchHandler) HandlePatchProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req profilePatch
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UsesWifi == nil && req.UsesTrailer == nil {
		writeError(w, apperror.ValidationFailed("", "Nothing to update."))
		return
	}
	// Toggles would only change local state.
	if !s.Loaded() {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "Your profile could not be loaded. Try again.",
		})
		return
	}

	ctx := r.Context()
	if req.UsesWifi != nil {
		if err := s.Profile.SetUsesWifi(ctx, *req.UsesWifi); err != nil {
			writeError(w, err)
			return
		}
		// The subscriber view changed with our own row.
		if err := s.Profile.LoadWifiSubscriberCount(ctx); err != nil {
			h.logger.Warn("wifi subscriber count not refreshed", slog.String("error", err.Error()))
		}
	}
	if req.UsesTrailer != nil {
		if err := s.Profile.SetUsesTrailer(ctx, *req.UsesTrailer); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, profileResponse{
		Profile:            s.Profile.Preferences(),
		NeedsProfilePrompt: s.NeedsProfilePrompt(),
		Saved:              s.Saved(),
	})
}

// HandleFees returns this month's fee snapshot.
//
// HTTP: GET /api/fees
func (h *RanchHandler) HandleFees(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap := s.Fees()
	prefs := s.Profile.Preferences()
	writeJSON(w, http.StatusOK, feesResponse{
		Snapshot:            snap,
		HorseCount:          prefs.HorseCount,
		UsesWifi:            prefs.UsesWifi,
		UsesTrailer:         prefs.UsesTrailer,
		WifiSubscriberCount: prefs.WifiSubscriberCount,
	})
}

// HandleListHorses returns the roster. ?refresh=true reloads it from the
// backend first, like a pull-to-refresh.
//
// HTTP: GET /api/horses
func (h *RanchHandler) HandleListHorses(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if err := s.ReloadHorses(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.horses(s))
}

// HandleAddHorse creates a blank horse.
//
// HTTP: POST /api/horses
func (h *RanchHandler) HandleAddHorse(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	horse, err := s.AddHorse(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, horse)
}

// HandleSaveRoster validates and saves the submitted roster in one batch.
//
// HTTP: PUT /api/horses
func (h *RanchHandler) HandleSaveRoster(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req rosterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.SubmitRoster(r.Context(), req.Horses); err != nil {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			h.logger.Error("roster save failed", slog.String("userID", s.UserID), slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.horses(s))
}

// HandleDeleteHorse
//
// HTTP: DELETE /api/horses/{id}
func (h *RanchHandler) HandleDeleteHorse(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, apperror.ValidationFailed("id", "Horse id must be a number."))
		return
	}
	if _, err := s.Horses.FindByID(id); err != nil {
		writeError(w, err)
		return
	}

	if err := s.DeleteHorse(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStalls returns the stall map and the ranch-wide vacancy count.
//
// HTTP: GET /api/stalls
func (h *RanchHandler) HandleStalls(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stallsResponse{
		Stalls:          s.Stalls(),
		Rows:            roster.StallRows(),
		AvailableStalls: s.Profile.Preferences().AvailableStalls,
	})
}

func (h *RanchHandler) horses(s *service.Session) horsesResponse {
	return horsesResponse{
		Horses:             s.Horses.Horses(),
		Finished:           s.Horses.Finished(),
		NeedsProfilePrompt: s.NeedsProfilePrompt(),
		Saved:              s.Saved(),
	}
}
