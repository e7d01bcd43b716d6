package checkpoint

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// ErrNoCursor is returned when a scan has no stored cursor.
var ErrNoCursor = errors.New("no cursor")

// Cursor is the stored position of a scan.
type Cursor struct {
	RunID     string
	NextIndex int
	Total     int
	UpdatedAt time.Time
}

// Store persists resolved results so an interrupted scan can resume.
type Store interface {
	Load(ctx context.Context, scan string) (map[int]types.CheckResult, error)
	Save(ctx context.Context, scan string, index int, r types.CheckResult) error
	SaveCursor(ctx context.Context, scan string, c Cursor) error
	Cursor(ctx context.Context, scan string) (Cursor, error)
	Reset(ctx context.Context, scan string) error
	Close() error
}

// ScanKey identifies an input by its deduplicated URL list.
func ScanKey(unique []types.CheckRequest) string {
	h := sha256.New()
	for _, r := range unique {
		h.Write([]byte(r.Key()))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// SQLiteStore implements Store on a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the checkpoint database and runs migrations.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, errors.Wrap(err, "unable to open sqlite database")
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to ping database")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS results (
	scan           TEXT    NOT NULL,
	idx            INTEGER NOT NULL,
	identifier     TEXT    NOT NULL,
	url            TEXT    NOT NULL,
	code           INTEGER NOT NULL,
	status         TEXT    NOT NULL,
	reason         TEXT    NOT NULL,
	content_length INTEGER NOT NULL,
	attempts       INTEGER NOT NULL,
	checked_at     TEXT    NOT NULL,
	PRIMARY KEY (scan, idx)
);

CREATE TABLE IF NOT EXISTS cursors (
	scan       TEXT PRIMARY KEY,
	run_id     TEXT    NOT NULL,
	next_index INTEGER NOT NULL,
	total      INTEGER NOT NULL,
	updated_at TEXT    NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Load returns every stored result of scan, keyed by deduplicated index.
func (s *SQLiteStore) Load(ctx context.Context, scan string) (map[int]types.CheckResult, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT idx, identifier, url, code, status, reason, content_length, attempts
FROM results WHERE scan = ?`, scan)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query results")
	}
	defer rows.Close()

	out := make(map[int]types.CheckResult)
	for rows.Next() {
		var (
			idx    int
			r      types.CheckResult
			status string
		)
		if err := rows.Scan(&idx, &r.Identifier, &r.URL, &r.Code, &status, &r.Reason, &r.ContentLength, &r.Attempts); err != nil {
			return nil, errors.Wrap(err, "failed to scan result")
		}
		r.Status = types.Status(status)
		if !r.Status.Valid() {
			continue
		}
		out[idx] = r
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate results")
}

// Save stores one result. Saving the same index twice keeps the latest result.
func (s *SQLiteStore) Save(ctx context.Context, scan string, index int, r types.CheckResult) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO results (scan, idx, identifier, url, code, status, reason, content_length, attempts, checked_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(scan, idx) DO UPDATE SET
	identifier = excluded.identifier,
	url = excluded.url,
	code = excluded.code,
	status = excluded.status,
	reason = excluded.reason,
	content_length = excluded.content_length,
	attempts = excluded.attempts,
	checked_at = excluded.checked_at`,
		scan, index, r.Identifier, r.URL, r.Code, string(r.Status), r.Reason, r.ContentLength, r.Attempts,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrapf(err, "failed to save result %d", index)
	}
	return nil
}

// SaveCursor records the scan position.
func (s *SQLiteStore) SaveCursor(ctx context.Context, scan string, c Cursor) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cursors (scan, run_id, next_index, total, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(scan) DO UPDATE SET
	run_id = excluded.run_id,
	next_index = excluded.next_index,
	total = excluded.total,
	updated_at = excluded.updated_at`,
		scan, c.RunID, c.NextIndex, c.Total, c.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(err, "failed to save cursor")
	}
	return nil
}

// Cursor returns the stored position of scan, or ErrNoCursor.
func (s *SQLiteStore) Cursor(ctx context.Context, scan string) (Cursor, error) {
	var (
		c       Cursor
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT run_id, next_index, total, updated_at FROM cursors WHERE scan = ?`, scan).
		Scan(&c.RunID, &c.NextIndex, &c.Total, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{}, ErrNoCursor
	}
	if err != nil {
		return Cursor{}, errors.Wrap(err, "failed to query cursor")
	}
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return c, nil
}

// Reset deletes all stored progress of scan.
func (s *SQLiteStore) Reset(ctx context.Context, scan string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "could not begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE scan = ?`, scan); err != nil {
		return errors.Wrap(err, "failed to delete results")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cursors WHERE scan = ?`, scan); err != nil {
		return errors.Wrap(err, "failed to delete cursor")
	}
	return errors.Wrap(tx.Commit(), "failed to commit reset")
}
