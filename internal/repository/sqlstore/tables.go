package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/jacobs-ranch/internal/apperror"
	"github.com/sakif/jacobs-ranch/internal/remote"
)

// compile-time check that *DB implements remote.TableStore
var _ remote.TableStore = (*DB)(nil)

type kind int

const (
	kindText kind = iota
	kindInt
	kindBool
)

type column struct {
	name string
	kind kind
}

// tableSchema whitelists what the generic table API may touch. Table and
// column names are never taken from callers verbatim.
type tableSchema struct {
	columns  []column
	key      string
	autoKey  bool // key is assigned by the database on insert
	readOnly bool
}

func (s tableSchema) column(name string) (column, bool) {
	for _, c := range s.columns {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

func (s tableSchema) columnList() string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

var schemas = map[string]tableSchema{
	remote.TableHorses: {
		columns: []column{
			{"id", kindInt},
			{"user_id", kindText},
			{"name", kindText},
			{"owners", kindText},
			{"owner_contact", kindText},
			{"emergency_contact", kindText},
			{"vet_contact", kindText},
			{"stall_number", kindInt},
		},
		key:     "id",
		autoKey: true,
	},
	remote.TableProfiles: {
		columns: []column{
			{"id", kindText},
			{"email", kindText},
			{"uses_wifi", kindBool},
			{"uses_trailer", kindBool},
		},
		key: "id",
	},
	remote.TableSettings: {
		columns: []column{
			{"id", kindInt},
			{"available_stalls", kindInt},
		},
		key: "id",
	},
	remote.TableWifiSubscribers: {
		columns:  []column{{"user_id", kindText}},
		readOnly: true,
	},
}

func lookup(table string) (tableSchema, error) {
	s, ok := schemas[table]
	if !ok {
		return tableSchema{}, fmt.Errorf("sqlstore: unknown table %q", table)
	}
	return s, nil
}

// where renders the filters as a WHERE clause with `?` placeholders.
func where(s tableSchema, table string, filters []remote.Eq) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	parts := make([]string, len(filters))
	args := make([]any, len(filters))
	for i, f := range filters {
		if _, ok := s.column(f.Column); !ok {
			return "", nil, fmt.Errorf("sqlstore: unknown column %s.%s", table, f.Column)
		}
		parts[i] = f.Column + " = ?"
		args[i] = f.Value
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (db *DB) Select(ctx context.Context, table string, q remote.Query) (json.RawMessage, error) {
	s, err := lookup(table)
	if err != nil {
		return nil, err
	}

	clause, args, err := where(s, table, q.Filters)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + s.columnList() + " FROM " + table + clause

	if q.OrderBy != "" {
		if _, ok := s.column(q.OrderBy); !ok {
			return nil, fmt.Errorf("sqlstore: unknown order column %s.%s", table, q.OrderBy)
		}
		dir := "DESC"
		if q.Ascending {
			dir = "ASC"
		}
		query += " ORDER BY " + q.OrderBy + " " + dir
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: selecting %s: %w", table, err)
	}
	defer rows.Close()

	// Non-nil so an empty result encodes as [] rather than null.
	out := []map[string]any{}
	for rows.Next() {
		row, err := scanRow(rows, s)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scanning %s: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: iterating %s: %w", table, err)
	}

	return json.Marshal(out)
}

func (db *DB) Insert(ctx context.Context, table string, row remote.Row) (json.RawMessage, error) {
	s, err := lookup(table)
	if err != nil {
		return nil, err
	}
	if s.readOnly {
		return nil, fmt.Errorf("sqlstore: %s is read-only", table)
	}

	var cols, marks []string
	var args []any
	for _, c := range s.columns {
		v, ok := row[c.name]
		if !ok || (s.autoKey && c.name == s.key) {
			continue
		}
		cols = append(cols, c.name)
		marks = append(marks, "?")
		args = append(args, v)
	}
	for name := range row {
		if _, ok := s.column(name); !ok {
			return nil, fmt.Errorf("sqlstore: unknown column %s.%s", table, name)
		}
	}

	query := "INSERT INTO " + table
	if len(cols) == 0 {
		query += " DEFAULT VALUES"
	} else {
		query += " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	}
	query += " RETURNING " + s.columnList()

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: inserting into %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("sqlstore: inserting into %s: %w", table, err)
		}
		return nil, fmt.Errorf("sqlstore: inserting into %s: no row returned", table)
	}
	stored, err := scanRow(rows, s)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: scanning inserted %s: %w", table, err)
	}
	return json.Marshal(stored)
}

// Update returns apperror.ErrNotFound when no row matches key.
func (db *DB) Update(ctx context.Context, table string, key remote.Eq, patch remote.Row) error {
	s, err := lookup(table)
	if err != nil {
		return err
	}
	if s.readOnly {
		return fmt.Errorf("sqlstore: %s is read-only", table)
	}
	if len(patch) == 0 {
		return nil
	}

	var sets []string
	var args []any
	for _, c := range s.columns {
		v, ok := patch[c.name]
		if !ok {
			continue
		}
		if c.name == s.key {
			return fmt.Errorf("sqlstore: cannot update key column %s.%s", table, c.name)
		}
		sets = append(sets, c.name+" = ?")
		args = append(args, v)
	}
	if len(sets) != len(patch) {
		return fmt.Errorf("sqlstore: unknown column in update of %s", table)
	}

	clause, keyArgs, err := where(s, table, []remote.Eq{key})
	if err != nil {
		return err
	}
	args = append(args, keyArgs...)

	result, err := db.conn.ExecContext(ctx,
		db.rebind("UPDATE "+table+" SET "+strings.Join(sets, ", ")+clause), args...)
	if err != nil {
		return fmt.Errorf("sqlstore: updating %s %s: %w", table, key, err)
	}
	return requireAffected(result, table, key)
}

// Delete returns apperror.ErrNotFound when no row matches key.
func (db *DB) Delete(ctx context.Context, table string, key remote.Eq) error {
	s, err := lookup(table)
	if err != nil {
		return err
	}
	if s.readOnly {
		return fmt.Errorf("sqlstore: %s is read-only", table)
	}

	clause, args, err := where(s, table, []remote.Eq{key})
	if err != nil {
		return err
	}

	result, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM "+table+clause), args...)
	if err != nil {
		return fmt.Errorf("sqlstore: deleting %s %s: %w", table, key, err)
	}
	return requireAffected(result, table, key)
}

func (db *DB) Count(ctx context.Context, table string, q remote.Query) (int, error) {
	s, err := lookup(table)
	if err != nil {
		return 0, err
	}

	clause, args, err := where(s, table, q.Filters)
	if err != nil {
		return 0, err
	}

	var n int
	err = db.conn.QueryRowContext(ctx, db.rebind("SELECT COUNT(*) FROM "+table+clause), args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: counting %s: %w", table, err)
	}
	return n, nil
}

func requireAffected(result sql.Result, table string, key remote.Eq) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound(table, key.String())
	}
	return nil
}

// scanRow reads one row in schema column order into a JSON-ready map.
// NULLs come out as nil.
func scanRow(rows *sql.Rows, s tableSchema) (map[string]any, error) {
	dest := make([]any, len(s.columns))
	for i, c := range s.columns {
		switch c.kind {
		case kindInt:
			dest[i] = new(sql.NullInt64)
		case kindBool:
			dest[i] = new(sql.NullBool)
		default:
			dest[i] = new(sql.NullString)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(s.columns))
	for i, c := range s.columns {
		switch v := dest[i].(type) {
		case *sql.NullInt64:
			out[c.name] = nullable(v.Valid, v.Int64)
		case *sql.NullBool:
			out[c.name] = nullable(v.Valid, v.Bool)
		case *sql.NullString:
			out[c.name] = nullable(v.Valid, v.String)
		default:
			return nil, errors.New("unexpected scan target")
		}
	}
	return out, nil
}

func nullable[T any](valid bool, v T) any {
	if !valid {
		return nil
	}
	return v
}
