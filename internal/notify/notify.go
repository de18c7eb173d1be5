// Package notify is the change-notification channel for ranch state.
//
// Services publish an Event whenever the state a screen renders changes
// or a remote call fails; UI adapters (the SSE endpoint, tests) subscribe.
// Delivery is best effort: a subscriber whose buffer is full misses the
// event rather than blocking the publisher.
package notify

import (
	"sync"
	"time"
)

type Type string

const (
	HorsesLoaded    Type = "horses.loaded"
	HorseAdded      Type = "horse.added"
	HorseUpdated    Type = "horse.updated"
	HorseSaved      Type = "horse.saved"
	HorseDeleted    Type = "horse.deleted"
	RosterSaved     Type = "roster.saved"
	RosterRejected  Type = "roster.rejected"
	SavedFlash      Type = "roster.saved_flash"
	ProfileLoaded   Type = "profile.loaded"
	ProfileSaved    Type = "profile.saved"
	ProfileReset    Type = "profile.reset"
	SubscribersSet  Type = "profile.wifi_subscribers"
	StallsSet       Type = "profile.available_stalls"
	OperationFailed Type = "operation.failed"
)

// Event describes one state change. Error is set for failures; Data holds
// the new value when it is small enough to ship (a horse, a count, a flag).
type Event struct {
	ID        int64     `json:"id"`
	Type      Type      `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Op        string    `json:"op,omitempty"`
	Error     string    `json:"error,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bus fans events out to subscribers. The zero value is not usable; a nil
// *Bus silently drops everything, so services may run without one.
type Bus struct {
	now func() time.Time

	mu        sync.RWMutex
	nextID    int64
	nextSubID int
	subs      map[int]subscriber
}

type subscriber struct {
	ch     chan Event
	userID string // "" receives every event
}

// NewBus returns a bus stamping events with now (time.Now when nil).
func NewBus(now func() time.Time) *Bus {
	if now == nil {
		now = time.Now
	}
	return &Bus{
		now:  now,
		subs: make(map[int]subscriber),
	}
}

// Subscribe returns a channel receiving every event published from now on
// and a cancel func that unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	return b.subscribe("", buffer)
}

// SubscribeUser is Subscribe restricted to the events of one user, so
// other users' traffic never fills its buffer.
func (b *Bus) SubscribeUser(userID string, buffer int) (<-chan Event, func()) {
	return b.subscribe(userID, buffer)
}

func (b *Bus) subscribe(userID string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subs[id] = subscriber{ch: ch, userID: userID}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish assigns the event an ID and timestamp and delivers it.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ev.ID = b.nextID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}

	for _, sub := range b.subs {
		if sub.userID != "" && sub.userID != ev.UserID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Failure is a shorthand for an OperationFailed event.
func Failure(userID, op string, err error) Event {
	return Event{Type: OperationFailed, UserID: userID, Op: op, Error: err.Error()}
}

// Subscribers reports how many subscriptions are open.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
