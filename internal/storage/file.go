package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"feedpush/internal/identity"
	logx "feedpush/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <path>                    (watermark: a single JSON integer)
//   - <prefix>.deliveries.jsonl (append-only delivery journal)
//   - <prefix>.deliveries.jsonl.1 (previous journal generation)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	path        string
	journalPath string
	journal     *os.File
	journalMax  int64
}

const defaultJournalMaxBytes = 1 << 20

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	journalPath := filepath.Join(dir, base) + ".deliveries.jsonl"
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		log:         log.With(logx.String("comp", "storage.file")),
		path:        path,
		journalPath: journalPath,
		journal:     jf,
		journalMax:  defaultJournalMaxBytes,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Load(ctx context.Context) (Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *fileStore) loadLocked() (Record, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Info("no state file yet; starting empty", logx.String("path", s.path))
			return Record{}, nil
		}
		return Record{}, err
	}
	raw := strings.TrimSpace(string(b))
	if raw == "" {
		return Record{}, nil
	}

	var n int64
	if err := json.Unmarshal([]byte(raw), &n); err != nil || n < 0 {
		if err == nil {
			err = errors.New("negative watermark " + strconv.FormatInt(n, 10))
		}
		s.log.Warn("state file corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		return Record{}, nil
	}

	rec := Record{Watermark: identity.ID(n)}
	if st, err := os.Stat(s.path); err == nil {
		rec.UpdatedAt = st.ModTime()
	}
	return rec, nil
}

func (s *fileStore) Commit(ctx context.Context, ids []identity.ID) error {
	_ = ctx
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.loadLocked()
	if err != nil {
		return err
	}
	next := maxID(cur.Watermark, ids)
	if next == cur.Watermark && !cur.UpdatedAt.IsZero() {
		return nil
	}
	return s.writeLocked(next)
}

func (s *fileStore) Reset(ctx context.Context, id identity.ID) error {
	_ = ctx
	if id < 0 {
		return errors.New("watermark must be >= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(id)
}

// writeLocked replaces the state file atomically so a crash mid-write never
// leaves a truncated watermark behind.
func (s *fileStore) writeLocked(id identity.ID) error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(id.String() + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.log.Debug("watermark written", logx.String("path", s.path), logx.Int64("watermark", int64(id)))
	return nil
}

func (s *fileStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("delivery journal closed")
	}
	if err := json.NewEncoder(s.journal).Encode(e); err != nil {
		return err
	}
	st, err := s.journal.Stat()
	if err != nil || st.Size() < s.journalMax {
		return nil
	}
	return s.rotateLocked()
}

// rotateLocked moves the journal to <journal>.1, replacing the previous
// generation, and starts a fresh file.
func (s *fileStore) rotateLocked() error {
	if err := s.journal.Close(); err != nil {
		return err
	}
	s.journal = nil
	if err := os.Rename(s.journalPath, s.journalPath+".1"); err != nil {
		return err
	}
	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.journal = jf
	s.log.Debug("delivery journal rotated", logx.String("path", s.journalPath))
	return nil
}

// RecentDeliveries reads the live journal and, when it holds fewer than n
// entries, the rotated generation behind it. Both files stay under the
// rotation size.
func (s *fileStore) RecentDeliveries(ctx context.Context, n int) ([]DeliveryEntry, error) {
	_ = ctx
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := readJournal(s.journalPath, n)
	if err != nil {
		return nil, err
	}
	if len(out) < n {
		older, err := readJournal(s.journalPath+".1", n-len(out))
		if err != nil {
			return nil, err
		}
		out = append(out, older...)
	}
	return out, nil
}

// readJournal returns up to n entries from path, newest first. A missing
// file is empty; undecodable lines are skipped.
func readJournal(path string, n int) ([]DeliveryEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	ring := make([]DeliveryEntry, 0, n)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e DeliveryEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]DeliveryEntry, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		out = append(out, ring[i])
	}
	return out, nil
}
