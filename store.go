package spacetraveling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eringen/spacetraveling/posts"
	"github.com/eringen/spacetraveling/prismic"
)

// Store wraps a SQLite database holding snapshots of the initial page, so the
// listing can still render when the content API is unreachable.
type Store struct {
	db *sql.DB
}

// Snapshot is one persisted initial page.
type Snapshot struct {
	ID           string
	DocumentType string
	CreatedAt    time.Time
	Page         posts.Page
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the page cache read while the revalidation job writes; the
	// busy timeout makes writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS snapshots (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    document_type TEXT NOT NULL,
    next_page TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_type_seq ON snapshots (document_type, seq);
CREATE TABLE IF NOT EXISTS snapshot_posts (
    snapshot_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    uid TEXT NOT NULL,
    first_publication_date TEXT,
    title TEXT NOT NULL,
    subtitle TEXT NOT NULL,
    author TEXT NOT NULL,
    PRIMARY KEY (snapshot_id, position)
);
`)
	return err
}

// SaveSnapshot persists page as the newest snapshot for documentType.
func (s *Store) SaveSnapshot(ctx context.Context, documentType string, page posts.Page) (Snapshot, error) {
	snap := Snapshot{
		ID:           uuid.NewString(),
		DocumentType: documentType,
		CreatedAt:    time.Now().UTC(),
		Page:         page,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, document_type, next_page, created_at) VALUES (?, ?, ?, ?)`,
		snap.ID, documentType, string(page.Cursor), snap.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	for i, p := range page.Results {
		var published any
		if p.FirstPublicationDate != nil {
			published = p.FirstPublicationDate.UTC().Format(time.RFC3339)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_posts (snapshot_id, position, uid, first_publication_date, title, subtitle, author) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, i, p.UID, published, p.Title, p.Subtitle, p.Author); err != nil {
			return Snapshot{}, fmt.Errorf("insert snapshot post: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// LatestSnapshot returns the newest snapshot for documentType, or
// ErrNoSnapshot.
func (s *Store) LatestSnapshot(ctx context.Context, documentType string) (Snapshot, error) {
	var snap Snapshot
	var next, created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, next_page, created_at FROM snapshots WHERE document_type = ? ORDER BY seq DESC LIMIT 1`, documentType).
		Scan(&snap.ID, &next, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, err
	}
	snap.DocumentType = documentType
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	snap.Page.Cursor = posts.Cursor(next)

	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, first_publication_date, title, subtitle, author FROM snapshot_posts WHERE snapshot_id = ? ORDER BY position`, snap.ID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var p posts.Summary
		var published sql.NullString
		if err := rows.Scan(&p.UID, &published, &p.Title, &p.Subtitle, &p.Author); err != nil {
			return Snapshot{}, err
		}
		if published.Valid {
			if t, ok := prismic.ParseTime(published.String); ok {
				p.FirstPublicationDate = &t
			}
		}
		snap.Page.Results = append(snap.Page.Results, p)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Prune deletes all but the newest keep snapshots of documentType.
func (s *Store) Prune(ctx context.Context, documentType string, keep int) error {
	if keep < 1 {
		keep = 1
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM snapshots WHERE document_type = ? ORDER BY seq DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_posts WHERE snapshot_id IN (`+stale+`)`, documentType, keep); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id IN (`+stale+`)`, documentType, keep); err != nil {
		return err
	}
	return tx.Commit()
}

// CountSnapshots returns how many snapshots exist for documentType.
func (s *Store) CountSnapshots(ctx context.Context, documentType string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE document_type = ?`, documentType).Scan(&n)
	return n, err
}
