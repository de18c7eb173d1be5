// Package rest implements remote.TableStore against a hosted PostgREST
// endpoint (the REST face of a hosted Postgres backend), using the
// postgrest-go query builder.
//
// Requests carry the project key twice, as the `apikey` header and as a
// bearer token. The bearer half comes from an oauth2 token source so the
// key never appears in request-building code.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/supabase-community/postgrest-go"
	"golang.org/x/oauth2"

	"github.com/sakif/jacobs-ranch/internal/remote"
)

var _ remote.TableStore = (*Client)(nil)

// Config locates the backend.
type Config struct {
	BaseURL string // e.g. https://project.example.co
	APIKey  string
	// Schema is the Postgres schema queried; empty means "public".
	Schema string
	// Tokens overrides the bearer token source. Nil means the API key.
	Tokens oauth2.TokenSource
}

// Client is a PostgREST table store.
type Client struct {
	pg *postgrest.Client
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("rest: API key is required")
	}

	ts := cfg.Tokens
	if ts == nil {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("rest: obtaining bearer token: %w", err)
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/rest/v1"
	pg := postgrest.NewClient(endpoint, cfg.Schema, map[string]string{"apikey": cfg.APIKey})
	if pg.ClientError != nil {
		return nil, fmt.Errorf("rest: creating client: %w", pg.ClientError)
	}
	pg.SetAuthToken(tok.AccessToken)

	return &Client{pg: pg}, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case *int64:
		if x == nil {
			return "null"
		}
		return strconv.FormatInt(*x, 10)
	default:
		return fmt.Sprint(x)
	}
}

func applyFilters(fb *postgrest.FilterBuilder, filters []remote.Eq) *postgrest.FilterBuilder {
	for _, f := range filters {
		fb = fb.Eq(f.Column, formatValue(f.Value))
	}
	return fb
}

// execute runs fb. The query builder takes no context, so a cancelled
// ctx is only honoured before the request goes out.
func execute(ctx context.Context, op, table string, fb *postgrest.FilterBuilder) ([]byte, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("rest: %s %s: %w", op, table, err)
	}
	data, count, err := fb.Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("rest: %s %s: %w", op, table, err)
	}
	return data, count, nil
}

// Select implements remote.TableStore.
func (c *Client) Select(ctx context.Context, table string, q remote.Query) (json.RawMessage, error) {
	fb := applyFilters(c.pg.From(table).Select("*", "", false), q.Filters)
	if q.OrderBy != "" {
		fb = fb.Order(q.OrderBy, &postgrest.OrderOpts{Ascending: q.Ascending})
	}
	if q.Limit > 0 {
		fb = fb.Limit(q.Limit, "")
	}

	data, _, err := execute(ctx, "select", table, fb)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Insert implements remote.TableStore. PostgREST answers with an array
// holding the created row; the single object is returned.
func (c *Client) Insert(ctx context.Context, table string, row remote.Row) (json.RawMessage, error) {
	data, _, err := execute(ctx, "insert", table, c.pg.From(table).Insert(row, false, "", "representation", ""))
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("rest: decoding inserted %s row: %w", table, err)
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("rest: insert into %s returned %d rows", table, len(rows))
	}
	return rows[0], nil
}

// Update implements remote.TableStore.
func (c *Client) Update(ctx context.Context, table string, key remote.Eq, patch remote.Row) error {
	fb := applyFilters(c.pg.From(table).Update(patch, "minimal", ""), []remote.Eq{key})
	_, _, err := execute(ctx, "update", table, fb)
	return err
}

// Delete implements remote.TableStore.
func (c *Client) Delete(ctx context.Context, table string, key remote.Eq) error {
	fb := applyFilters(c.pg.From(table).Delete("minimal", ""), []remote.Eq{key})
	_, _, err := execute(ctx, "delete", table, fb)
	return err
}

// Count implements remote.TableStore with an exact-count HEAD request;
// the builder reads the total from Content-Range.
func (c *Client) Count(ctx context.Context, table string, q remote.Query) (int, error) {
	fb := applyFilters(c.pg.From(table).Select("*", "exact", true), q.Filters)
	_, n, err := execute(ctx, "count", table, fb)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
