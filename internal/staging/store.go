// Package staging persists classified fetch batches between the fetch and
// publish phases, so borderline review can happen across CLI invocations.
package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/wanderset/places-cli/internal/dedup"
	"github.com/wanderset/places-cli/internal/model"
)

// Batch modes. A refresh batch reconciles the target dataset against the
// full fetch; a new-only batch just adds places.
const (
	ModeNewOnly = "new-only"
	ModeRefresh = "refresh"
)

// Item decisions. Pending only ever applies to borderline items; strong
// duplicates and new places need no human input.
const (
	DecisionPending  = "pending"
	DecisionAccepted = "accepted"
	DecisionRejected = "rejected"
	DecisionNone     = ""
)

// Batch is one staged fetch run.
type Batch struct {
	ID          string     `json:"id"`
	City        string     `json:"city"`
	Category    string     `json:"category"`
	Query       string     `json:"query"`
	Mode        string     `json:"mode"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Published reports whether the batch has already been pushed to a store.
func (b *Batch) Published() bool {
	return b.PublishedAt != nil
}

// Item is one classified candidate within a batch.
type Item struct {
	ID             string            `json:"id"`
	BatchID        string            `json:"batch_id"`
	Classification dedup.Tier        `json:"classification"`
	Candidate      model.Candidate   `json:"candidate"`
	Match          dedup.MatchResult `json:"match"`
	Decision       string            `json:"decision,omitempty"`
	DecidedAt      *time.Time        `json:"decided_at,omitempty"`
}

// Publishable reports whether the item should reach the target store:
// new places always, borderline only once a human rejected the match.
func (it *Item) Publishable() bool {
	if it.Classification == dedup.TierNone {
		return true
	}
	return it.Classification == dedup.TierBorderline && it.Decision == DecisionRejected
}

// Store is the staging database, a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens the staging database at the given path and configures WAL mode.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "staging: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "staging: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const stagingMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id           TEXT PRIMARY KEY,
	city         TEXT NOT NULL,
	category     TEXT NOT NULL,
	query        TEXT NOT NULL,
	mode         TEXT NOT NULL DEFAULT 'new-only',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	published_at DATETIME
);

CREATE TABLE IF NOT EXISTS batch_items (
	id             TEXT PRIMARY KEY,
	batch_id       TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	classification TEXT NOT NULL,
	candidate      TEXT NOT NULL,
	match          TEXT,
	decision       TEXT NOT NULL DEFAULT '',
	decided_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_batch_items_batch_id ON batch_items(batch_id);
CREATE INDEX IF NOT EXISTS idx_batch_items_decision ON batch_items(batch_id, decision);
`

// Migrate creates the staging schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, stagingMigration)
	return eris.Wrap(err, "staging: migrate")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateBatch stores a new batch and its classified items in one
// transaction. Strong and new items get no decision; borderline items start
// pending. A partition already resolved in memory carries borderline-tier
// items in its duplicates and new lists; those are stored with their
// accept/reject outcome so the review trail survives staging.
func (s *Store) CreateBatch(ctx context.Context, city, category, query, mode string, p dedup.Partition) (*Batch, error) {
	b := &Batch{
		ID:        uuid.New().String(),
		City:      city,
		Category:  category,
		Query:     query,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "staging: begin create batch")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (id, city, category, query, mode, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.City, b.Category, b.Query, b.Mode, b.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "staging: insert batch")
	}

	insert := func(cl dedup.Classified, decision string) error {
		candidateJSON, err := json.Marshal(cl.Candidate)
		if err != nil {
			return eris.Wrap(err, "staging: marshal candidate")
		}
		matchJSON, err := json.Marshal(cl.Match)
		if err != nil {
			return eris.Wrap(err, "staging: marshal match")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO batch_items (id, batch_id, classification, candidate, match, decision)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), b.ID, string(cl.Match.Tier), string(candidateJSON), string(matchJSON), decision,
		)
		if err != nil {
			return eris.Wrap(err, "staging: insert item")
		}
		return nil
	}

	for _, cl := range p.Duplicates {
		decision := DecisionNone
		if cl.Match.Tier == dedup.TierBorderline {
			decision = DecisionAccepted
		}
		if err := insert(cl, decision); err != nil {
			return nil, err
		}
	}
	for _, cl := range p.Borderline {
		if err := insert(cl, DecisionPending); err != nil {
			return nil, err
		}
	}
	for _, cl := range p.New {
		decision := DecisionNone
		if cl.Match.Tier == dedup.TierBorderline {
			decision = DecisionRejected
		}
		if err := insert(cl, decision); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "staging: commit create batch")
	}
	return b, nil
}

// GetBatch returns one batch by id. A unique id prefix also resolves, so
// the short ids printed by listings work as command arguments.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, city, category, query, mode, created_at, published_at
		 FROM batches WHERE id = ? OR id LIKE ? || '%' LIMIT 2`, id, id)
	if err != nil {
		return nil, eris.Wrap(err, "staging: get batch")
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "staging: get batch iterate")
	}

	switch len(batches) {
	case 0:
		return nil, eris.Errorf("staging: batch not found: %s", id)
	case 1:
		return &batches[0], nil
	default:
		return nil, eris.Errorf("staging: ambiguous batch id prefix: %s", id)
	}
}

// ListBatches returns all batches, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, city, category, query, mode, created_at, published_at
		 FROM batches ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "staging: list batches")
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "staging: list batches iterate")
}

// ListItems returns every item in a batch, borderline first so reviews show
// up at the top of listings.
func (s *Store) ListItems(ctx context.Context, batchID string) ([]Item, error) {
	return s.queryItems(ctx,
		`SELECT id, batch_id, classification, candidate, match, decision, decided_at
		 FROM batch_items WHERE batch_id = ?
		 ORDER BY decision = 'pending' DESC, classification, id`, batchID)
}

// PendingBorderline returns the items still awaiting a review decision.
func (s *Store) PendingBorderline(ctx context.Context, batchID string) ([]Item, error) {
	return s.queryItems(ctx,
		`SELECT id, batch_id, classification, candidate, match, decision, decided_at
		 FROM batch_items WHERE batch_id = ? AND decision = ? ORDER BY id`,
		batchID, DecisionPending)
}

// RecordDecision stores the review outcome for one borderline item. Only
// pending items can be decided; re-deciding is an error.
func (s *Store) RecordDecision(ctx context.Context, itemID, decision string) error {
	if decision != DecisionAccepted && decision != DecisionRejected {
		return eris.Errorf("staging: invalid decision %q", decision)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE batch_items SET decision = ?, decided_at = ? WHERE id = ? AND decision = ?`,
		decision, time.Now().UTC(), itemID, DecisionPending,
	)
	if err != nil {
		return eris.Wrapf(err, "staging: record decision %s", itemID)
	}
	return checkRowsAffected(res, "pending item", itemID)
}

// MarkPublished stamps the batch's publish time.
func (s *Store) MarkPublished(ctx context.Context, batchID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET published_at = ? WHERE id = ?`,
		time.Now().UTC(), batchID,
	)
	if err != nil {
		return eris.Wrapf(err, "staging: mark published %s", batchID)
	}
	return checkRowsAffected(res, "batch", batchID)
}

// DeleteBatch removes a batch and its items.
func (s *Store) DeleteBatch(ctx context.Context, batchID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, batchID)
	if err != nil {
		return eris.Wrapf(err, "staging: delete batch %s", batchID)
	}
	return checkRowsAffected(res, "batch", batchID)
}

// CountPending returns the number of undecided borderline items in a batch.
// Publishing is refused while this is non-zero.
func (s *Store) CountPending(ctx context.Context, batchID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM batch_items WHERE batch_id = ? AND decision = ?`,
		batchID, DecisionPending)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrap(err, "staging: count pending")
	}
	return n, nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "staging: query items")
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, eris.Wrap(rows.Err(), "staging: query items iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*Batch, error) {
	var b Batch
	var publishedAt sql.NullTime
	if err := row.Scan(&b.ID, &b.City, &b.Category, &b.Query, &b.Mode, &b.CreatedAt, &publishedAt); err != nil {
		return nil, eris.Wrap(err, "staging: scan batch")
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		b.PublishedAt = &t
	}
	return &b, nil
}

func scanItem(row scannable) (*Item, error) {
	var it Item
	var classification, candidateJSON string
	var matchJSON sql.NullString
	var decidedAt sql.NullTime

	err := row.Scan(&it.ID, &it.BatchID, &classification, &candidateJSON, &matchJSON, &it.Decision, &decidedAt)
	if err != nil {
		return nil, eris.Wrap(err, "staging: scan item")
	}
	it.Classification = dedup.Tier(classification)

	if err := json.Unmarshal([]byte(candidateJSON), &it.Candidate); err != nil {
		return nil, eris.Wrap(err, "staging: unmarshal candidate")
	}
	if matchJSON.Valid && matchJSON.String != "" {
		if err := json.Unmarshal([]byte(matchJSON.String), &it.Match); err != nil {
			return nil, eris.Wrap(err, "staging: unmarshal match")
		}
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		it.DecidedAt = &t
	}
	return &it, nil
}
