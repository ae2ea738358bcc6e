package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"feedpush/internal/identity"
	logx "feedpush/pkg/logx"
)

//go:embed migrations.sql
var migrationsSQL string

const defaultKey = "default"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	key string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = defaultKey
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	log = log.With(logx.String("comp", "storage.sqlite"))

	db, err := openDB(path, busy)
	if err != nil && isCorrupt(err) {
		aside := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		log.Warn("state database corrupt; moving it aside and starting empty",
			logx.String("path", path), logx.String("moved_to", aside), logx.Err(err))
		if merr := moveAside(path, aside); merr != nil {
			return nil, fmt.Errorf("sqlite move corrupt file: %w", merr)
		}
		db, err = openDB(path, busy)
	}
	if err != nil {
		return nil, err
	}
	return &sqliteStore{db: db, log: log, key: key}, nil
}

// openDB opens path and applies the schema. The migration is the first
// statement that reads the file header, so a non-database file fails here.
func openDB(path string, busy time.Duration) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrationsSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return db, nil
}

// isCorrupt reports whether err is SQLITE_NOTADB (26) or SQLITE_CORRUPT (11).
func isCorrupt(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "SQLITE_NOTADB") ||
		strings.Contains(msg, "SQLITE_CORRUPT")
}

// moveAside renames the database and any WAL sidecars so a fresh file can
// take their place.
func moveAside(path, aside string) error {
	if err := os.Rename(path, aside); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, aside+suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (Record, error) {
	var (
		tid     int64
		updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT tid, updated_at FROM watermark WHERE feed_key = ?`, s.key).Scan(&tid, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Info("no watermark row yet; starting empty", logx.String("key", s.key))
		return Record{}, nil
	}
	if isCorrupt(err) {
		s.log.Warn("watermark table unreadable; starting empty", logx.String("key", s.key), logx.Err(err))
		return Record{}, nil
	}
	if err != nil {
		return Record{}, err
	}
	if tid < 0 {
		s.log.Warn("watermark row corrupt; starting empty", logx.String("key", s.key), logx.Int64("tid", tid))
		return Record{}, nil
	}
	rec := Record{Watermark: identity.ID(tid)}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func (s *sqliteStore) Commit(ctx context.Context, ids []identity.ID) error {
	next := maxID(0, ids)
	if next <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermark(feed_key, tid, updated_at) VALUES(?,?,?)
		 ON CONFLICT(feed_key) DO UPDATE SET
		   tid = max(watermark.tid, excluded.tid),
		   updated_at = CASE WHEN excluded.tid > watermark.tid THEN excluded.updated_at ELSE watermark.updated_at END`,
		s.key, int64(next), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) Reset(ctx context.Context, id identity.ID) error {
	if id < 0 {
		return errors.New("watermark must be >= 0")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermark(feed_key, tid, updated_at) VALUES(?,?,?)
		 ON CONFLICT(feed_key) DO UPDATE SET tid = excluded.tid, updated_at = excluded.updated_at`,
		s.key, int64(id), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(feed_key, at, run_id, tid, link, title, mode, ok, err)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		s.key, e.At.UTC().Format(time.RFC3339Nano), nullStr(e.RunID), int64(e.ID), e.Link,
		nullStr(e.Title), e.Mode, e.OK, nullStr(e.Error),
	)
	return err
}

func (s *sqliteStore) RecentDeliveries(ctx context.Context, n int) ([]DeliveryEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, run_id, tid, link, title, mode, ok, err
		 FROM deliveries WHERE feed_key = ? ORDER BY id DESC LIMIT ?`, s.key, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryEntry
	for rows.Next() {
		var (
			at                  string
			runID, title, errMs sql.NullString
			tid                 int64
			e                   DeliveryEntry
		)
		if err := rows.Scan(&at, &runID, &tid, &e.Link, &title, &e.Mode, &e.OK, &errMs); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.RunID = runID.String
		e.ID = identity.ID(tid)
		e.Title = title.String
		e.Error = errMs.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
