// Package history keeps past questions and answers in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/Akshan03/Web-Analysis-AI-Agent/internal/stream"
)

var (
	ErrNotFound  = errors.New("history entry not found")
	ErrAmbiguous = errors.New("history id prefix is ambiguous")
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL,
	question        TEXT NOT NULL,
	answer          TEXT NOT NULL,
	relevance_score REAL,
	source          TEXT,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at DESC);
`

// Entry is one stored question and answer.
type Entry struct {
	ID       string
	URL      string
	Question string
	Answer   string
	// RelevanceScore is nil when the session completed without metrics.
	RelevanceScore *float64
	Source         string
	CreatedAt      time.Time
}

// State rebuilds the completed session state the entry was recorded from.
func (e Entry) State() stream.State {
	st := stream.State{
		URL:      e.URL,
		Question: e.Question,
		Answer:   e.Answer,
	}
	if e.RelevanceScore != nil {
		st.LatestMetrics = &stream.Metrics{RelevanceScore: *e.RelevanceScore, Source: e.Source}
		st.MetricsReceived = true
	}
	st.Complete()
	return st
}

// ShortID is the id prefix shown in listings.
func (e Entry) ShortID() string {
	if len(e.ID) > 8 {
		return e.ID[:8]
	}
	return e.ID
}

// Store persists entries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a completed session. Other states are ignored.
func (s *Store) Record(ctx context.Context, st stream.State) error {
	if st.Status != stream.Completed {
		return nil
	}

	e := Entry{
		ID:        uuid.NewString(),
		URL:       st.URL,
		Question:  st.Question,
		Answer:    st.Answer,
		CreatedAt: s.now().UTC(),
	}
	if st.LatestMetrics != nil {
		score := st.LatestMetrics.RelevanceScore
		e.RelevanceScore = &score
		e.Source = st.LatestMetrics.Source
	}
	_, err := s.Add(ctx, e)
	return err
}

// Add inserts e, assigning an id and timestamp when missing, and returns the stored entry.
func (s *Store) Add(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	var score sql.NullFloat64
	var source sql.NullString
	if e.RelevanceScore != nil {
		score = sql.NullFloat64{Float64: *e.RelevanceScore, Valid: true}
		source = sql.NullString{String: e.Source, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (id, url, question, answer, relevance_score, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.URL, e.Question, e.Answer, score, source, e.CreatedAt.UnixNano())
	if err != nil {
		return Entry{}, fmt.Errorf("failed to insert history entry: %w", err)
	}
	return e, nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, question, answer, relevance_score, source, created_at
		 FROM entries ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry whose id equals or starts with id.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || strings.Trim(id, "0123456789abcdef-") != "" {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, question, answer, relevance_score, source, created_at
		 FROM entries WHERE id LIKE ? || '%' ORDER BY created_at DESC LIMIT 2`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var found []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return Entry{}, err
		}
		found = append(found, e)
	}
	if err := rows.Err(); err != nil {
		return Entry{}, err
	}

	switch len(found) {
	case 0:
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	case 1:
		return found[0], nil
	default:
		return Entry{}, fmt.Errorf("%w: %q", ErrAmbiguous, id)
	}
}

// Clear deletes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e       Entry
		score   sql.NullFloat64
		source  sql.NullString
		created int64
	)
	if err := row.Scan(&e.ID, &e.URL, &e.Question, &e.Answer, &score, &source, &created); err != nil {
		return Entry{}, fmt.Errorf("failed to scan history entry: %w", err)
	}
	if score.Valid {
		v := score.Float64
		e.RelevanceScore = &v
		e.Source = source.String
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	return e, nil
}
