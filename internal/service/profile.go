package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/fees"
	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/notify"
	"github.com/sakif/jacobs-ranch/internal/remote"
	"github.com/sakif/jacobs-ranch/internal/roster"
)

// ProfileSync keeps one user's boarding preferences in step with the
// user_profiles, wifi_subscribers and settings tables.
//
// Each load touches only the fields it owns. A failed load leaves the
// previous values in place.
type ProfileSync struct {
	store  remote.TableStore
	bus    *notify.Bus
	logger *slog.Logger

	mu    sync.RWMutex
	prefs model.BoardingPreferences
	owner string // events are addressed to owner until a profile loads
}

func NewProfileSync(store remote.TableStore, bus *notify.Bus, logger *slog.Logger) *ProfileSync {
	return &ProfileSync{
		store:  store,
		bus:    bus,
		logger: logger,
		prefs:  model.BoardingPreferences{WifiSubscriberCount: 1},
	}
}

// WithOwner addresses events to userID even before the profile loads.
func (p *ProfileSync) WithOwner(userID string) *ProfileSync {
	p.mu.Lock()
	p.owner = userID
	p.mu.Unlock()
	return p
}

// Preferences returns a copy of the current state.
func (p *ProfileSync) Preferences() model.BoardingPreferences {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prefs
}

// LoadProfile reads the user's profile row. Exactly one row must come back;
// only then is UserID set.
func (p *ProfileSync) LoadProfile(ctx context.Context, userID string) error {
	p.mu.Lock()
	p.owner = userID
	p.mu.Unlock()

	raw, err := p.store.Select(ctx, remote.TableProfiles, remote.Where(remote.Eq{Column: "id", Value: userID}))
	if err != nil {
		return p.fail(userID, "profile.load", fmt.Errorf("service/profile: loading profile: %w", err))
	}

	var rows []model.ProfileRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return p.fail(userID, "profile.load", fmt.Errorf("service/profile: decoding profile: %w", err))
	}
	switch len(rows) {
	case 1:
	case 0:
		return p.fail(userID, "profile.load", apperror.NotFound("profile", userID))
	default:
		return p.fail(userID, "profile.load", fmt.Errorf("service/profile: %d profile rows for %s", len(rows), userID))
	}

	row := rows[0]
	p.mu.Lock()
	p.prefs.UserID = userID
	p.prefs.Email = row.Email
	p.prefs.UsesWifi = row.UsesWifi
	p.prefs.UsesTrailer = row.UsesTrailer
	snapshot := p.prefs
	p.mu.Unlock()

	p.bus.Publish(notify.Event{Type: notify.ProfileLoaded, UserID: userID, Data: snapshot})
	return nil
}

// SaveProfile writes the two toggles. Before a profile has loaded there
// is no row to write and it does nothing.
func (p *ProfileSync) SaveProfile(ctx context.Context) error {
	p.mu.RLock()
	prefs := p.prefs
	p.mu.RUnlock()

	if prefs.UserID == "" {
		return nil
	}

	err := p.store.Update(ctx, remote.TableProfiles, remote.Eq{Column: "id", Value: prefs.UserID}, remote.Row{
		"uses_wifi":    prefs.UsesWifi,
		"uses_trailer": prefs.UsesTrailer,
	})
	if err != nil {
		return p.fail(prefs.UserID, "profile.save", fmt.Errorf("service/profile: saving profile: %w", err))
	}

	p.bus.Publish(notify.Event{Type: notify.ProfileSaved, UserID: prefs.UserID, Data: prefs})
	return nil
}

// LoadWifiSubscriberCount counts Wi-Fi subscribers across all users. The
// stored count is at least 1.
func (p *ProfileSync) LoadWifiSubscriberCount(ctx context.Context) error {
	n, err := p.store.Count(ctx, remote.TableWifiSubscribers, remote.Query{})
	if err != nil {
		return p.fail(p.userID(), "profile.wifi_subscribers", fmt.Errorf("service/profile: counting wifi subscribers: %w", err))
	}

	n = max(n, 1)
	p.mu.Lock()
	p.prefs.WifiSubscriberCount = n
	p.mu.Unlock()

	p.bus.Publish(notify.Event{Type: notify.SubscribersSet, UserID: p.userID(), Data: n})
	return nil
}

// LoadAvailableStalls reads the ranch-wide free stall count. Without a
// settings row it falls back to the total minus this user's horses.
func (p *ProfileSync) LoadAvailableStalls(ctx context.Context) error {
	raw, err := p.store.Select(ctx, remote.TableSettings, remote.Query{Limit: 1})
	if err != nil {
		return p.fail(p.userID(), "profile.available_stalls", fmt.Errorf("service/profile: loading settings: %w", err))
	}

	var rows []model.SettingsRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return p.fail(p.userID(), "profile.available_stalls", fmt.Errorf("service/profile: decoding settings: %w", err))
	}

	p.mu.Lock()
	if len(rows) == 0 {
		p.prefs.AvailableStalls = fees.AvailableStalls(roster.TotalStalls, p.prefs.HorseCount)
		p.logger.Warn("no settings row, using fallback stall count",
			slog.Int("availableStalls", p.prefs.AvailableStalls),
		)
	} else {
		p.prefs.AvailableStalls = max(rows[0].AvailableStalls, 0)
	}
	n := p.prefs.AvailableStalls
	p.mu.Unlock()

	p.bus.Publish(notify.Event{Type: notify.StallsSet, UserID: p.userID(), Data: n})
	return nil
}

// SetUsesWifi changes the toggle and saves the profile right away.
func (p *ProfileSync) SetUsesWifi(ctx context.Context, v bool) error {
	p.mu.Lock()
	p.prefs.UsesWifi = v
	p.mu.Unlock()
	return p.SaveProfile(ctx)
}

// SetUsesTrailer changes the toggle and saves the profile right away.
func (p *ProfileSync) SetUsesTrailer(ctx context.Context, v bool) error {
	p.mu.Lock()
	p.prefs.UsesTrailer = v
	p.mu.Unlock()
	return p.SaveProfile(ctx)
}

// SetHorseCount records the roster size used for rent.
func (p *ProfileSync) SetHorseCount(n int) {
	p.mu.Lock()
	p.prefs.HorseCount = max(n, 0)
	p.mu.Unlock()
}

// SetEmail records a changed email after the backend accepted it.
func (p *ProfileSync) SetEmail(email string) {
	p.mu.Lock()
	p.prefs.Email = email
	p.mu.Unlock()
}

// Reset clears the user's state on sign-out. AvailableStalls is
// ranch-wide and survives.
func (p *ProfileSync) Reset() {
	p.mu.Lock()
	userID := p.prefs.UserID
	p.prefs.UserID = ""
	p.prefs.Email = ""
	p.prefs.UsesWifi = false
	p.prefs.UsesTrailer = false
	p.prefs.HorseCount = 0
	p.prefs.WifiSubscriberCount = 1
	p.mu.Unlock()

	p.bus.Publish(notify.Event{Type: notify.ProfileReset, UserID: userID})
}

// Fees computes the fee snapshot for the current preferences.
func (p *ProfileSync) Fees(now time.Time) fees.Snapshot {
	prefs := p.Preferences()
	return fees.Compute(fees.Input{
		HorseCount:      prefs.HorseCount,
		UsesTrailer:     prefs.UsesTrailer,
		UsesWifi:        prefs.UsesWifi,
		WifiSubscribers: prefs.WifiSubscriberCount,
	}, now)
}

func (p *ProfileSync) userID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.prefs.UserID != "" {
		return p.prefs.UserID
	}
	return p.owner
}

func (p *ProfileSync) fail(userID, op string, err error) error {
	p.logger.Error("profile sync failed",
		slog.String("op", op),
		slog.String("userID", userID),
		slog.String("error", err.Error()),
	)
	p.bus.Publish(notify.Failure(userID, op, err))
	return err
}
