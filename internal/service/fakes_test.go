package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/notify"
	"github.com/sakif/jacobs-ranch/internal/remote"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTables is an in-memory remote.TableStore. Rows of the horses table
// get increasing int64 ids; wifi_subscribers is derived from user_profiles.
type fakeTables struct {
	mu     sync.Mutex
	rows   map[string][]remote.Row
	nextID int64
	calls  []string

	// fail, when set, is consulted before every operation.
	fail func(op, table string, key remote.Eq) error
	// raw overrides the Select response for a table.
	raw map[string]string
	// insertGate, when set, blocks Insert until it is closed.
	insertGate chan struct{}
}

func newFakeTables() *fakeTables {
	return &fakeTables{rows: make(map[string][]remote.Row), raw: make(map[string]string)}
}

func (f *fakeTables) seed(table string, rows ...remote.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if table == remote.TableHorses {
			if _, ok := r["id"]; !ok {
				f.nextID++
				r["id"] = f.nextID
			}
		}
		f.rows[table] = append(f.rows[table], r)
	}
}

func (f *fakeTables) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeTables) check(op, table string, key remote.Eq) error {
	f.calls = append(f.calls, op+":"+table)
	if f.fail != nil {
		return f.fail(op, table, key)
	}
	return nil
}

func same(a, b any) bool { return fmt.Sprint(deref(a)) == fmt.Sprint(deref(b)) }

func deref(v any) any {
	switch p := v.(type) {
	case *int:
		if p == nil {
			return nil
		}
		return *p
	case *int64:
		if p == nil {
			return nil
		}
		return *p
	}
	return v
}

func lessValue(a, b any) bool {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		return ai < bi
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func matches(r remote.Row, filters []remote.Eq) bool {
	for _, f := range filters {
		if !same(r[f.Column], f.Value) {
			return false
		}
	}
	return true
}

func (f *fakeTables) view(table string) []remote.Row {
	if table != remote.TableWifiSubscribers {
		return f.rows[table]
	}
	var out []remote.Row
	for _, p := range f.rows[remote.TableProfiles] {
		if p["uses_wifi"] == true {
			out = append(out, remote.Row{"user_id": p["id"]})
		}
	}
	return out
}

func (f *fakeTables) Select(_ context.Context, table string, q remote.Query) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("select", table, remote.Eq{}); err != nil {
		return nil, err
	}
	if raw, ok := f.raw[table]; ok {
		return json.RawMessage(raw), nil
	}

	out := []remote.Row{}
	for _, r := range f.view(table) {
		if matches(r, q.Filters) {
			out = append(out, r)
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			less := lessValue(out[i][q.OrderBy], out[j][q.OrderBy])
			if q.Ascending {
				return less
			}
			return !less
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return json.Marshal(out)
}

func (f *fakeTables) Insert(_ context.Context, table string, row remote.Row) (json.RawMessage, error) {
	if f.insertGate != nil {
		<-f.insertGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("insert", table, remote.Eq{}); err != nil {
		return nil, err
	}

	stored := remote.Row{}
	for k, v := range row {
		stored[k] = v
	}
	if table == remote.TableHorses {
		f.nextID++
		stored["id"] = f.nextID
	}
	f.rows[table] = append(f.rows[table], stored)
	return json.Marshal(stored)
}

func (f *fakeTables) Update(_ context.Context, table string, key remote.Eq, patch remote.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("update", table, key); err != nil {
		return err
	}

	found := false
	for _, r := range f.rows[table] {
		if matches(r, []remote.Eq{key}) {
			for k, v := range patch {
				r[k] = deref(v)
			}
			found = true
		}
	}
	if !found {
		return apperror.NotFound(table, key.String())
	}
	return nil
}

func (f *fakeTables) Delete(_ context.Context, table string, key remote.Eq) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("delete", table, key); err != nil {
		return err
	}

	kept := f.rows[table][:0]
	found := false
	for _, r := range f.rows[table] {
		if matches(r, []remote.Eq{key}) {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	f.rows[table] = kept
	if !found {
		return apperror.NotFound(table, key.String())
	}
	return nil
}

func (f *fakeTables) Count(_ context.Context, table string, q remote.Query) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("count", table, remote.Eq{}); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range f.view(table) {
		if matches(r, q.Filters) {
			n++
		}
	}
	return n, nil
}

// failOn returns a fail hook that errors for one op/table pair.
func failOn(op, table string, err error) func(string, string, remote.Eq) error {
	return func(gotOp, gotTable string, _ remote.Eq) error {
		if gotOp == op && gotTable == table {
			return err
		}
		return nil
	}
}

// collect subscribes to bus and returns a func draining what arrived.
func collect(bus *notify.Bus) func() []notify.Event {
	ch, cancel := bus.Subscribe(64)
	return func() []notify.Event {
		cancel()
		var out []notify.Event
		for ev := range ch {
			out = append(out, ev)
		}
		return out
	}
}

func eventTypes(evs []notify.Event) []notify.Type {
	out := make([]notify.Type, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

// fakeClock fires timers only when told to.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []func()
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.pending)
	c.pending = append(c.pending, f)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx >= len(c.pending) || c.pending[idx] == nil {
			return false
		}
		c.pending[idx] = nil
		return true
	}
}

// fire runs every timer still pending.
func (c *fakeClock) fire() {
	c.mu.Lock()
	fns := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, f := range fns {
		if f != nil {
			f()
		}
	}
}

type rejectionCounter struct {
	mu      sync.Mutex
	reasons []string
}

func (r *rejectionCounter) RosterRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}
