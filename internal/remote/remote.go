// Package remote defines the row-oriented table store the ranch data lives in.
//
// The store speaks JSON rows with the backend's snake_case column names.
// Reads return raw JSON so that decoding, and decode failures, stay with
// the caller that knows the expected shape.
//
// Two implementations exist: repository/sqlstore (SQLite or Postgres over
// database/sql) and remote/rest (a PostgREST-style hosted backend).
package remote

import (
	"context"
	"encoding/json"
	"fmt"
)

// Table names.
const (
	TableHorses          = "horses"
	TableProfiles        = "user_profiles"
	TableSettings        = "settings"
	TableWifiSubscribers = "wifi_subscribers"
)

// Row is one JSON object to insert or a partial update to apply.
type Row map[string]any

// Eq is an equality filter on one column.
type Eq struct {
	Column string
	Value  any
}

func (e Eq) String() string { return fmt.Sprintf("%s=%v", e.Column, e.Value) }

// Query selects rows. Zero value means "every row, backend order".
type Query struct {
	Filters   []Eq
	OrderBy   string
	Ascending bool
	Limit     int
}

// Where is a shorthand for a Query with equality filters.
func Where(filters ...Eq) Query { return Query{Filters: filters} }

// OrderAsc returns a copy of q ordered ascending by column.
func (q Query) OrderAsc(column string) Query {
	q.OrderBy = column
	q.Ascending = true
	return q
}

// TableStore is CRUD over named tables.
type TableStore interface {
	// Select returns the matching rows as a JSON array.
	Select(ctx context.Context, table string, q Query) (json.RawMessage, error)

	// Insert creates a row and returns it, as stored, as a JSON object.
	Insert(ctx context.Context, table string, row Row) (json.RawMessage, error)

	// Update applies patch to every row matching key.
	Update(ctx context.Context, table string, key Eq, patch Row) error

	// Delete removes every row matching key.
	Delete(ctx context.Context, table string, key Eq) error

	// Count returns the number of matching rows.
	Count(ctx context.Context, table string, q Query) (int, error)
}
