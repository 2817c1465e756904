// Package tripplan implements the Trip-Plan Store (spec §3/§4.10): a
// per-(user, session) ordered list of plan items, upserted idempotently
// under a normalized content key, backed by Postgres via pgx.
package tripplan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status values for a trip-plan item (spec §3).
const (
	StatusNotBooked = "not_booked"
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

// Item is a trip-plan row (spec §3: composite key (email, session_id, title),
// unique under (email, session_id, normalized_key)).
type Item struct {
	Email         string
	SessionID     string
	Title         string
	Details       map[string]any
	Type          string
	Status        string
	NormalizedKey string
	EventTime     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// querier is the subset of *pgxpool.Pool used here, kept as an interface so
// tests exercise Store against a fake without a live Postgres instance.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// pgconnCommandTag mirrors pgconn.CommandTag's shape narrowly enough for
// this package's needs without importing pgconn directly in the interface.
type pgconnCommandTag interface {
	RowsAffected() int64
}

// Store is the Postgres-backed Trip-Plan Store.
type Store struct {
	db querier
}

// New builds a Store over an already-configured pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: poolAdapter{pool}}
}

// poolAdapter adapts *pgxpool.Pool to querier (pgxpool.Pool.Exec returns a
// concrete pgconn.CommandTag, which satisfies pgconnCommandTag structurally).
type poolAdapter struct{ pool *pgxpool.Pool }

func (p poolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	return tag, err
}

func (p poolAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

// NormalizedKey computes the idempotence key for an item: sha256 over the
// canonicalized details plus type (spec §4.10). It takes no title, so with
// empty details it hashes the type alone; Upsert and the backfill fall back
// to a fingerprint of the item's title in that case.
func NormalizedKey(itemType string, details map[string]any) string {
	return normalizedKeyWithTitle(itemType, details, "")
}

func normalizedKeyWithTitle(itemType string, details map[string]any, title string) string {
	h := sha256.New()
	h.Write([]byte(itemType))
	if len(details) == 0 {
		h.Write([]byte("title:" + title))
	} else {
		h.Write([]byte(canonicalize(details)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalize recursively lowercases strings and sorts map keys/array
// elements before hashing (spec §3: "Canonicalization lowercases/sorts
// recursively before hashing").
func canonicalize(v any) string {
	norm := normalize(v)
	b, _ := json.Marshal(norm)
	return string(b)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[strings.ToLower(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		sort.Slice(out, func(i, j int) bool {
			bi, _ := json.Marshal(out[i])
			bj, _ := json.Marshal(out[j])
			return string(bi) < string(bj)
		})
		return out
	case string:
		return strings.ToLower(t)
	default:
		return t
	}
}

// Upsert inserts or updates an item, idempotent under
// (email, session_id, normalized_key) (spec §3/§4.10, invariant from §8:
// "applying the same (email, session_id, details, type, title) twice
// yields exactly one row").
func (s *Store) Upsert(ctx context.Context, item Item) error {
	if item.NormalizedKey == "" {
		item.NormalizedKey = normalizedKeyWithTitle(item.Type, item.Details, item.Title)
	}
	if item.Status == "" {
		item.Status = StatusNotBooked
	}
	details, err := json.Marshal(item.Details)
	if err != nil {
		return fmt.Errorf("tripplan: marshal details: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO travel_plan_items
			(email, session_id, title, details, type, status, normalized_key, event_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (email, session_id, normalized_key) DO UPDATE SET
			title = EXCLUDED.title,
			details = EXCLUDED.details,
			status = EXCLUDED.status,
			event_time = EXCLUDED.event_time,
			updated_at = now()
	`, item.Email, item.SessionID, item.Title, details, item.Type, item.Status, item.NormalizedKey, item.EventTime)
	if err != nil {
		return fmt.Errorf("tripplan: upsert: %w", err)
	}
	return nil
}

// List returns all items for (email, session_id), sorted by event time
// (spec §12 supplement: list is ordered for display/planner consumption).
func (s *Store) List(ctx context.Context, email, sessionID string) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT email, session_id, title, details, type, status, normalized_key, event_time, created_at, updated_at
		FROM travel_plan_items
		WHERE email = $1 AND session_id = $2
	`, email, sessionID)
	if err != nil {
		return nil, fmt.Errorf("tripplan: list: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var details []byte
		if err := rows.Scan(&item.Email, &item.SessionID, &item.Title, &details, &item.Type,
			&item.Status, &item.NormalizedKey, &item.EventTime, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("tripplan: scan: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &item.Details); err != nil {
				return nil, fmt.Errorf("tripplan: decode details: %w", err)
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tripplan: rows: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].EventTime, items[j].EventTime
		if (a == "") != (b == "") {
			return b == ""
		}
		return a < b
	})
	return items, nil
}

// UpdateStatus changes an item's status by normalized key (planner worker
// booking/cancellation path, spec §4.3).
func (s *Store) UpdateStatus(ctx context.Context, email, sessionID, normalizedKey, status string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE travel_plan_items SET status = $4, updated_at = now()
		WHERE email = $1 AND session_id = $2 AND normalized_key = $3
	`, email, sessionID, normalizedKey, status)
	if err != nil {
		return fmt.Errorf("tripplan: update status: %w", err)
	}
	return nil
}

// DeleteItem removes an item by normalized key (SPEC_FULL.md §12 supplement:
// explicit delete alongside add/update, mirroring the planner's delete
// intent handling).
func (s *Store) DeleteItem(ctx context.Context, email, sessionID, normalizedKey string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM travel_plan_items WHERE email = $1 AND session_id = $2 AND normalized_key = $3
	`, email, sessionID, normalizedKey)
	if err != nil {
		return fmt.Errorf("tripplan: delete: %w", err)
	}
	return nil
}

// BackfillNormalizedKeys computes normalized_key for legacy rows that lack
// one (spec §4.10: "A one-time backfill computes the key for legacy rows
// lacking it").
func (s *Store) BackfillNormalizedKeys(ctx context.Context) error {
	rows, err := s.db.Query(ctx, `
		SELECT email, session_id, title, details, type
		FROM travel_plan_items WHERE normalized_key IS NULL OR normalized_key = ''
	`)
	if err != nil {
		return fmt.Errorf("tripplan: backfill select: %w", err)
	}
	type legacy struct {
		email, session, title, itemType string
		details                         map[string]any
	}
	var pending []legacy
	for rows.Next() {
		var l legacy
		var details []byte
		if err := rows.Scan(&l.email, &l.session, &l.title, &details, &l.itemType); err != nil {
			rows.Close()
			return fmt.Errorf("tripplan: backfill scan: %w", err)
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &l.details)
		}
		pending = append(pending, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("tripplan: backfill rows: %w", err)
	}

	for _, l := range pending {
		key := normalizedKeyWithTitle(l.itemType, l.details, l.title)
		if _, err := s.db.Exec(ctx, `
			UPDATE travel_plan_items SET normalized_key = $4, updated_at = now()
			WHERE email = $1 AND session_id = $2 AND title = $3
		`, l.email, l.session, l.title, key); err != nil {
			return fmt.Errorf("tripplan: backfill update: %w", err)
		}
	}
	return nil
}
