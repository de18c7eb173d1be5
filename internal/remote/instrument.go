package remote

import (
	"context"
	"encoding/json"
	"time"
)

// Observer receives the outcome of every table store call.
// *metrics.Metrics satisfies it.
type Observer interface {
	ObserveRemote(table, op string, err error, took time.Duration)
}

// Instrument wraps store so each call is reported to obs.
func Instrument(store TableStore, obs Observer) TableStore {
	return &instrumented{next: store, obs: obs}
}

type instrumented struct {
	next TableStore
	obs  Observer
}

func (i *instrumented) Select(ctx context.Context, table string, q Query) (json.RawMessage, error) {
	start := time.Now()
	out, err := i.next.Select(ctx, table, q)
	i.obs.ObserveRemote(table, "select", err, time.Since(start))
	return out, err
}

func (i *instrumented) Insert(ctx context.Context, table string, row Row) (json.RawMessage, error) {
	start := time.Now()
	out, err := i.next.Insert(ctx, table, row)
	i.obs.ObserveRemote(table, "insert", err, time.Since(start))
	return out, err
}

func (i *instrumented) Update(ctx context.Context, table string, key Eq, patch Row) error {
	start := time.Now()
	err := i.next.Update(ctx, table, key, patch)
	i.obs.ObserveRemote(table, "update", err, time.Since(start))
	return err
}

func (i *instrumented) Delete(ctx context.Context, table string, key Eq) error {
	start := time.Now()
	err := i.next.Delete(ctx, table, key)
	i.obs.ObserveRemote(table, "delete", err, time.Since(start))
	return err
}

func (i *instrumented) Count(ctx context.Context, table string, q Query) (int, error) {
	start := time.Now()
	n, err := i.next.Count(ctx, table, q)
	i.obs.ObserveRemote(table, "count", err, time.Since(start))
	return n, err
}
