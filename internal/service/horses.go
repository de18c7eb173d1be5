// Package service holds the per-user state of the ranch screens and the
// rules that move it to and from the table store.
//
// Every service takes its collaborators through its constructor:
//
//	Handler (HTTP) → Session → HorseStore / ProfileSync → remote.TableStore
//
// Remote failures never advance local state. They are returned to the
// caller, logged, and published on the notify bus, so a UI that chooses
// to ignore them still sees nothing change.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/model"
	"github.com/sakif/jacobs-ranch/internal/notify"
	"github.com/sakif/jacobs-ranch/internal/remote"
	"github.com/sakif/jacobs-ranch/internal/roster"
	"golang.org/x/sync/singleflight"
)

// RejectionRecorder counts roster saves refused by validation.
// *metrics.Metrics satisfies it.
type RejectionRecorder interface {
	RosterRejected(reason string)
}

// HorseStore is the in-memory roster of one user, kept in remote id order.
type HorseStore struct {
	store      remote.TableStore
	bus        *notify.Bus
	logger     *slog.Logger
	rejections RejectionRecorder

	// adds collapses concurrent Add calls for the same user into a
	// single insert.
	adds singleflight.Group

	mu       sync.RWMutex
	owner    string // user of the last load or add, for events
	horses   []model.Horse
	finished bool
}

func NewHorseStore(store remote.TableStore, bus *notify.Bus, logger *slog.Logger) *HorseStore {
	return &HorseStore{
		store:  store,
		bus:    bus,
		logger: logger,
	}
}

// WithRejections attaches a counter for validation failures in SaveAll.
func (s *HorseStore) WithRejections(r RejectionRecorder) *HorseStore {
	s.rejections = r
	return s
}

// Horses returns a copy of the current roster.
func (s *HorseStore) Horses() []model.Horse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Horse, len(s.horses))
	copy(out, s.horses)
	return out
}

// Finished reports whether a LoadAll attempt has completed, successful
// or not.
func (s *HorseStore) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished
}

// LoadAll replaces the roster with userID's horses ordered by id. On
// failure the roster is left as it was. Either way Finished becomes true.
func (s *HorseStore) LoadAll(ctx context.Context, userID string) error {
	horses, err := s.fetch(ctx, userID)

	s.mu.Lock()
	s.owner = userID
	s.finished = true
	if err == nil {
		s.horses = horses
	}
	s.mu.Unlock()

	if err != nil {
		return s.fail(userID, "horses.load", err)
	}

	s.bus.Publish(notify.Event{Type: notify.HorsesLoaded, UserID: userID, Data: len(horses)})
	return nil
}

func (s *HorseStore) fetch(ctx context.Context, userID string) ([]model.Horse, error) {
	q := remote.Where(remote.Eq{Column: "user_id", Value: userID}).OrderAsc("id")
	raw, err := s.store.Select(ctx, remote.TableHorses, q)
	if err != nil {
		return nil, fmt.Errorf("service/horses: loading roster: %w", err)
	}

	horses := []model.Horse{}
	if err := json.Unmarshal(raw, &horses); err != nil {
		return nil, fmt.Errorf("service/horses: decoding roster: %w", err)
	}
	return horses, nil
}

// Add inserts a blank horse for userID and appends the stored record.
// Concurrent calls for the same user share one insert and one result.
func (s *HorseStore) Add(ctx context.Context, userID string) (*model.Horse, error) {
	v, err, _ := s.adds.Do(userID, func() (any, error) {
		return s.insertBlank(ctx, userID)
	})
	if err != nil {
		return nil, s.fail(userID, "horses.add", err)
	}

	h := v.(model.Horse)
	return &h, nil
}

func (s *HorseStore) insertBlank(ctx context.Context, userID string) (model.Horse, error) {
	raw, err := s.store.Insert(ctx, remote.TableHorses, remote.Row{
		"user_id":           userID,
		"name":              "",
		"owners":            "",
		"owner_contact":     "",
		"emergency_contact": "",
		"vet_contact":       "",
		"stall_number":      nil,
	})
	if err != nil {
		return model.Horse{}, fmt.Errorf("service/horses: inserting horse: %w", err)
	}

	var h model.Horse
	if err := json.Unmarshal(raw, &h); err != nil {
		return model.Horse{}, fmt.Errorf("service/horses: decoding inserted horse: %w", err)
	}
	if !h.HasID() {
		return model.Horse{}, errors.New("service/horses: inserted horse has no id")
	}

	s.mu.Lock()
	s.owner = userID
	s.horses = append(s.horses, h)
	s.mu.Unlock()

	s.bus.Publish(notify.Event{Type: notify.HorseAdded, UserID: userID, Data: h})
	return h, nil
}

// Save writes the editable fields of h. A horse without an id has never
// been stored and is skipped. Local state is not touched.
func (s *HorseStore) Save(ctx context.Context, h model.Horse) error {
	if !h.HasID() {
		return nil
	}

	err := s.store.Update(ctx, remote.TableHorses, remote.Eq{Column: "id", Value: *h.ID}, remote.Row{
		"name":              h.Name,
		"owners":            h.Owners,
		"owner_contact":     h.OwnerContact,
		"emergency_contact": h.EmergencyContact,
		"vet_contact":       h.VetContact,
		"stall_number":      h.StallNumber,
	})
	if err != nil {
		return s.fail(h.UserID, "horses.save", fmt.Errorf("service/horses: saving horse %d: %w", *h.ID, err))
	}

	s.bus.Publish(notify.Event{Type: notify.HorseSaved, UserID: h.UserID, Data: h})
	return nil
}

// Delete removes the horse remotely, then locally. A row that is already
// gone remotely counts as deleted.
func (s *HorseStore) Delete(ctx context.Context, id int64) error {
	err := s.store.Delete(ctx, remote.TableHorses, remote.Eq{Column: "id", Value: id})
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return s.fail(s.ownerID(), "horses.delete", fmt.Errorf("service/horses: deleting horse %d: %w", id, err))
	}

	s.mu.Lock()
	userID := s.owner
	for i, h := range s.horses {
		if h.ID != nil && *h.ID == id {
			s.horses = append(s.horses[:i], s.horses[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.bus.Publish(notify.Event{Type: notify.HorseDeleted, UserID: userID, Data: id})
	return nil
}

// Update replaces the in-memory copy of the horse with the same id. The
// owner is kept from the stored record. Nothing is persisted until Save
// or SaveAll. It reports whether a record matched.
func (s *HorseStore) Update(h model.Horse) bool {
	if !h.HasID() {
		return false
	}

	s.mu.Lock()
	matched := false
	for i, cur := range s.horses {
		if cur.ID != nil && *cur.ID == *h.ID {
			h.UserID = cur.UserID
			s.horses[i] = h
			matched = true
			break
		}
	}
	s.mu.Unlock()

	if matched {
		s.bus.Publish(notify.Event{Type: notify.HorseUpdated, UserID: h.UserID, Data: h})
	}
	return matched
}

// SaveAll validates the whole roster, formats its phone numbers in place,
// then saves every horse. Validation failure aborts before any write.
// Save failures do not stop the batch; they come back joined.
func (s *HorseStore) SaveAll(ctx context.Context) error {
	s.mu.Lock()
	owner := s.owner
	if err := roster.Validate(s.horses); err != nil {
		s.mu.Unlock()
		s.reject(owner, err)
		return err
	}
	for i := range s.horses {
		s.horses[i] = roster.Normalize(s.horses[i])
	}
	batch := make([]model.Horse, len(s.horses))
	copy(batch, s.horses)
	s.mu.Unlock()

	var errs []error
	for _, h := range batch {
		if err := s.Save(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("roster saved with failures",
			slog.Int("horses", len(batch)),
			slog.Int("failed", len(errs)),
		)
		return err
	}

	s.bus.Publish(notify.Event{Type: notify.RosterSaved, UserID: owner, Data: len(batch)})
	return nil
}

func (s *HorseStore) reject(userID string, err error) {
	reason := "invalid"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch appErr.Field {
		case "name":
			reason = "duplicate_name"
		case "contact":
			reason = "invalid_phone"
		case "stall":
			reason = "invalid_stall"
		}
	}
	if s.rejections != nil {
		s.rejections.RosterRejected(reason)
	}
	s.logger.Info("roster save rejected", slog.String("reason", reason))
	s.bus.Publish(notify.Event{Type: notify.RosterRejected, UserID: userID, Op: reason, Error: err.Error()})
}

func (s *HorseStore) ownerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

func (s *HorseStore) fail(userID, op string, err error) error {
	s.logger.Error("horse store operation failed",
		slog.String("op", op),
		slog.String("userID", userID),
		slog.String("error", err.Error()),
	)
	s.bus.Publish(notify.Failure(userID, op, err))
	return err
}

// FindByID returns the horse with the given id.
func (s *HorseStore) FindByID(id int64) (model.Horse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.horses {
		if h.ID != nil && *h.ID == id {
			return h, nil
		}
	}
	return model.Horse{}, apperror.NotFound("horse", strconv.FormatInt(id, 10))
}
