package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"hnenricher/types"
)

// ErrNotFound is returned when a targeted update matches no row.
var ErrNotFound = errors.New("store: item not found")

// Row is a stored item.
type Row struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Passage   string    `json:"passage"`
	CreatedAt time.Time `json:"created_at"`
	TimeAdded time.Time `json:"time_added,omitzero"`
}

// ItemStore persists item membership and enrichment in the items table.
type ItemStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	now     func() time.Time
}

// Open connects with driver "pgx" (Postgres) or "sqlite".
func Open(ctx context.Context, driver, dsn string) (*ItemStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return New(db, driver), nil
}

// New wraps an existing handle. Placeholders follow the driver dialect.
func New(db *sql.DB, driver string) *ItemStore {
	var placeholder sq.PlaceholderFormat = sq.Dollar
	if driver == "sqlite" {
		placeholder = sq.Question
	}
	return &ItemStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:     time.Now,
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL DEFAULT '',
		passage TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL,
		time_added BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS items_created_at_idx ON items (created_at)`,
}

// Migrate creates the items table when missing.
func (s *ItemStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// RecentIDs returns the ids created at or after since.
func (s *ItemStore) RecentIDs(ctx context.Context, since time.Time) (map[string]bool, error) {
	rows, err := s.builder.Select("id").
		From("items").
		Where(sq.GtOrEq{"created_at": since.Unix()}).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: RecentIDs: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: RecentIDs: scan: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// UpsertMembership records selected items. Existing rows keep their passage
// and get a fresh url and created_at.
func (s *ItemStore) UpsertMembership(ctx context.Context, members []types.Membership) error {
	if len(members) == 0 {
		return nil
	}
	createdAt := s.now().Unix()

	// A single statement may not touch the same row twice on Postgres.
	seen := make(map[string]bool, len(members))
	q := s.builder.Insert("items").Columns("id", "url", "created_at")
	for _, m := range members {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		q = q.Values(m.ID, m.URL, createdAt)
	}
	q = q.Suffix("ON CONFLICT (id) DO UPDATE SET url = excluded.url, created_at = excluded.created_at")

	if _, err := q.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("store: UpsertMembership: %w", err)
	}
	return nil
}

// UpdatePassage sets the enriched passage for an existing id.
func (s *ItemStore) UpdatePassage(ctx context.Context, id, passage string, timeAdded int64) error {
	res, err := s.builder.Update("items").
		Set("passage", passage).
		Set("time_added", timeAdded).
		Where(sq.Eq{"id": id}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: UpdatePassage %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: UpdatePassage %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get returns one row by id.
func (s *ItemStore) Get(ctx context.Context, id string) (*Row, error) {
	var (
		row       Row
		createdAt int64
		timeAdded sql.NullInt64
	)
	err := s.builder.Select("id", "url", "passage", "created_at", "time_added").
		From("items").
		Where(sq.Eq{"id": id}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&row.ID, &row.URL, &row.Passage, &createdAt, &timeAdded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: Get %s: %w", id, err)
	}
	row.CreatedAt = time.Unix(createdAt, 0).UTC()
	if timeAdded.Valid {
		row.TimeAdded = time.Unix(timeAdded.Int64, 0).UTC()
	}
	return &row, nil
}

// Ping reports whether the database is reachable.
func (s *ItemStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *ItemStore) Close() error {
	return s.db.Close()
}
