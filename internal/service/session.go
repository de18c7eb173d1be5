package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/fees"
	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/notify"
	"github.com/sakif/jacobs-ranch/internal/remote"
	"github.com/sakif/jacobs-ranch/internal/roster"
	"golang.org/x/sync/singleflight"
)

// SavedFlashDuration is how long the "saved" confirmation stays raised
// after a successful roster save.
const SavedFlashDuration = 1200 * time.Millisecond

// Clock is the time source for due dates and the saved flash.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f once after d and returns a func that cancels it.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Session is everything one signed-in user's screens work from: their
// roster, their boarding preferences, and the transient saved flag.
type Session struct {
	UserID  string
	Horses  *HorseStore
	Profile *ProfileSync

	bus    *notify.Bus
	clock  Clock
	logger *slog.Logger

	mu        sync.Mutex
	saved     bool
	stopFlash func() bool
}

func NewSession(userID string, horses *HorseStore, profile *ProfileSync, bus *notify.Bus, clock Clock, logger *slog.Logger) *Session {
	if clock == nil {
		clock = SystemClock
	}
	return &Session{
		UserID:  userID,
		Horses:  horses,
		Profile: profile,
		bus:     bus,
		clock:   clock,
		logger:  logger,
	}
}

// Load runs every load the home screen needs. Each is independent: one
// failing does not stop the others, and all failures come back joined.
func (s *Session) Load(ctx context.Context) error {
	var errs []error
	if err := s.Profile.LoadProfile(ctx, s.UserID); err != nil {
		errs = append(errs, err)
	}
	if err := s.Horses.LoadAll(ctx, s.UserID); err != nil {
		errs = append(errs, err)
	}
	s.syncHorseCount()
	if err := s.Profile.LoadWifiSubscriberCount(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.Profile.LoadAvailableStalls(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ReloadHorses re-runs the roster load, as a pull-to-refresh would.
func (s *Session) ReloadHorses(ctx context.Context) error {
	err := s.Horses.LoadAll(ctx, s.UserID)
	s.syncHorseCount()
	return err
}

func (s *Session) AddHorse(ctx context.Context) (*model.Horse, error) {
	h, err := s.Horses.Add(ctx, s.UserID)
	s.syncHorseCount()
	return h, err
}

func (s *Session) DeleteHorse(ctx context.Context, id int64) error {
	err := s.Horses.Delete(ctx, id)
	s.syncHorseCount()
	return err
}

// SubmitRoster applies the edited records to the roster and saves it.
// Every submitted horse must already be in the roster.
func (s *Session) SubmitRoster(ctx context.Context, edited []model.Horse) error {
	for _, h := range edited {
		if !h.HasID() {
			return apperror.ValidationFailed("id", "Every horse must have an id.")
		}
		if _, err := s.Horses.FindByID(*h.ID); err != nil {
			return err
		}
	}
	for _, h := range edited {
		s.Horses.Update(h)
	}
	return s.SaveRoster(ctx)
}

// SaveRoster runs the batch save and, when every write succeeded, raises
// the saved flag for SavedFlashDuration.
func (s *Session) SaveRoster(ctx context.Context) error {
	if err := s.Horses.SaveAll(ctx); err != nil {
		return err
	}
	s.flashSaved()
	return nil
}

func (s *Session) flashSaved() {
	s.mu.Lock()
	if s.stopFlash != nil {
		s.stopFlash()
	}
	s.saved = true
	s.stopFlash = s.clock.AfterFunc(SavedFlashDuration, s.clearSaved)
	s.mu.Unlock()

	s.bus.Publish(notify.Event{Type: notify.SavedFlash, UserID: s.UserID, Data: true})
}

func (s *Session) clearSaved() {
	s.mu.Lock()
	s.saved = false
	s.stopFlash = nil
	s.mu.Unlock()

	s.bus.Publish(notify.Event{Type: notify.SavedFlash, UserID: s.UserID, Data: false})
}

// Saved reports whether the saved confirmation is currently raised.
func (s *Session) Saved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Loaded reports whether the user's profile row has been read. Profile
// saves are skipped until it has.
func (s *Session) Loaded() bool {
	return s.Profile.Preferences().UserID != ""
}

// NeedsProfilePrompt is true once the roster has loaded with exactly one
// horse that still has no name, i.e. the blank horse created at sign-up.
func (s *Session) NeedsProfilePrompt() bool {
	if !s.Horses.Finished() {
		return false
	}
	horses := s.Horses.Horses()
	return len(horses) == 1 && strings.TrimSpace(horses[0].Name) == ""
}

// Fees is the current fee snapshot as of the session clock.
func (s *Session) Fees() fees.Snapshot {
	s.syncHorseCount()
	return s.Profile.Fees(s.clock.Now())
}

// Stalls is the 1..14 stall map of the user's roster.
func (s *Session) Stalls() []model.StallAssignment {
	return roster.Stalls(s.Horses.Horses())
}

// Close stops the flash timer and clears the profile.
func (s *Session) Close() {
	s.mu.Lock()
	if s.stopFlash != nil {
		s.stopFlash()
		s.stopFlash = nil
	}
	s.saved = false
	s.mu.Unlock()

	s.Profile.Reset()
}

func (s *Session) syncHorseCount() {
	s.Profile.SetHorseCount(len(s.Horses.Horses()))
}

// Sessions owns the live Session of every signed-in user.
type Sessions struct {
	store      remote.TableStore
	bus        *notify.Bus
	clock      Clock
	logger     *slog.Logger
	rejections RejectionRecorder

	opens singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessions(store remote.TableStore, bus *notify.Bus, clock Clock, logger *slog.Logger, rejections RejectionRecorder) *Sessions {
	return &Sessions{
		store:      store,
		bus:        bus,
		clock:      clock,
		logger:     logger,
		rejections: rejections,
		sessions:   make(map[string]*Session),
	}
}

// Get returns the user's session, opening and loading it on first use.
// Load failures are logged; the session is still returned so the screens
// can render what they have. A cached session whose profile never loaded
// is loaded again, the way re-opening the home screen would.
func (m *Sessions) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("no signed-in user")
	}

	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		if !s.Loaded() {
			m.reload(ctx, s)
		}
		return s, nil
	}

	v, err, _ := m.opens.Do(userID, func() (any, error) {
		return m.open(ctx, userID), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Sessions) open(ctx context.Context, userID string) *Session {
	m.mu.RLock()
	existing, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return existing
	}

	logger := m.logger.With(slog.String("userID", userID))
	horses := NewHorseStore(m.store, m.bus, logger)
	if m.rejections != nil {
		horses.WithRejections(m.rejections)
	}
	s := NewSession(userID, horses, NewProfileSync(m.store, m.bus, logger).WithOwner(userID), m.bus, m.clock, logger)

	if err := s.Load(ctx); err != nil {
		logger.Warn("session loaded with failures", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	m.sessions[userID] = s
	m.mu.Unlock()
	return s
}

// reload re-runs Load for a cached session whose profile never loaded.
// Until it does, profile saves are no-ops.
func (m *Sessions) reload(ctx context.Context, s *Session) {
	_, _, _ = m.opens.Do(s.UserID, func() (any, error) {
		if s.Loaded() {
			return s, nil
		}
		if err := s.Load(ctx); err != nil {
			s.logger.Warn("session reload failed", slog.String("error", err.Error()))
		}
		return s, nil
	})
}

// Close drops the user's session, resetting its state.
func (m *Sessions) Close(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Len reports how many sessions are open.
func (m *Sessions) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
