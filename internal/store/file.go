package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"coinbot/internal/economy"
)

// Stage names a point inside a file commit where a fault hook may fire.
type Stage string

const (
	StageBeforeWrite  Stage = "before_write"
	StageBeforeRename Stage = "before_rename"
)

const lockRetryDelay = 5 * time.Millisecond

// File keeps the whole table in one JSON document. Every commit writes a
// temp file next to it and renames it into place, so a crash leaves either
// the old or the new table on disk. A sidecar lock file serializes critical
// sections across processes sharing the path.
type File struct {
	path  string
	lock  *flock.Flock
	mu    sync.Mutex
	fault func(Stage) error
	log   *slog.Logger
}

type FileOption func(*File)

// WithFaultHook lets tests abort a commit at a given stage.
func WithFaultHook(fn func(Stage) error) FileOption {
	return func(s *File) {
		s.fault = fn
	}
}

func WithFileLogger(logger *slog.Logger) FileOption {
	return func(s *File) {
		if logger != nil {
			s.log = logger
		}
	}
}

func NewFile(path string, opts ...FileOption) (*File, error) {
	if path == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, ioErr("create data dir", err)
	}
	s := &File{path: path, lock: flock.New(path + ".lock"), log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *File) Path() string {
	return s.path
}

func (s *File) Close() error {
	return s.lock.Close()
}

func (s *File) Load(ctx context.Context) (map[string]economy.Profile, error) {
	var out map[string]economy.Profile
	err := s.withTable(ctx, func(table map[string]record) error {
		out = make(map[string]economy.Profile, len(table))
		for id, r := range table {
			out[id] = r.profile()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *File) GetOrCreate(ctx context.Context, userID string) (economy.Profile, error) {
	if userID == "" {
		return economy.Profile{}, ErrEmptyUserID
	}
	p := economy.NewProfile()
	err := s.withTable(ctx, func(table map[string]record) error {
		if r, ok := table[userID]; ok {
			p = r.profile()
			return nil
		}
		return s.commitLocked(table, []economy.Mutation{{UserID: userID, Profile: p}})
	})
	if err != nil {
		return economy.Profile{}, err
	}
	return p, nil
}

func (s *File) Commit(ctx context.Context, mutations []economy.Mutation) error {
	return s.withTable(ctx, func(table map[string]record) error {
		return s.commitLocked(table, mutations)
	})
}

func (s *File) Update(ctx context.Context, fn func(tx economy.Tx) error) error {
	return s.withTable(ctx, func(table map[string]record) error {
		tx := newTxn(func(userID string) (economy.Profile, bool, error) {
			r, ok := table[userID]
			if !ok {
				return economy.Profile{}, false, nil
			}
			return r.profile(), true, nil
		})
		if err := fn(tx); err != nil {
			return err
		}
		return s.commitLocked(table, tx.mutations())
	})
}

// withTable runs fn with the current table while holding the in-process
// mutex and the lock file. The table is re-read every time so commits made
// by other processes on the same path are never overwritten.
func (s *File) withTable(ctx context.Context, fn func(table map[string]record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return ioErr("lock "+s.lock.Path(), err)
	}
	if !locked {
		return ioErr("lock "+s.lock.Path(), errors.New("not acquired"))
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("unlock profile table failed", "path", s.lock.Path(), "err", err)
		}
	}()

	table, err := s.readLocked()
	if err != nil {
		return err
	}
	return fn(table)
}

// readLocked reads the table, writing an empty one on first use. Callers
// hold both locks.
func (s *File) readLocked() (map[string]record, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		table := map[string]record{}
		if err := s.writeLocked(table); err != nil {
			return nil, err
		}
		s.log.Info("initialized empty profile table", "path", s.path)
		return table, nil
	}
	if err != nil {
		return nil, ioErr("read "+s.path, err)
	}

	table := map[string]record{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &table); err != nil {
			return nil, corruptErr(s.path, err)
		}
	}
	if table == nil {
		table = map[string]record{}
	}
	for id, r := range table {
		if err := r.validate(id); err != nil {
			return nil, corruptErr(s.path, err)
		}
	}
	return table, nil
}

func (s *File) commitLocked(table map[string]record, mutations []economy.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}
	if err := validateMutations(mutations); err != nil {
		return err
	}
	for _, m := range mutations {
		table[m.UserID] = toRecord(m.Profile)
	}
	return s.writeLocked(table)
}

func (s *File) writeLocked(table map[string]record) error {
	raw, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return ioErr("encode table", err)
	}
	if err := s.fire(StageBeforeWrite); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return ioErr("create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		cleanup()
		return ioErr("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return ioErr("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return ioErr("close temp file", err)
	}
	if err := s.fire(StageBeforeRename); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return ioErr("replace table", err)
	}
	syncDir(dir)
	return nil
}

func (s *File) fire(stage Stage) error {
	if s.fault == nil {
		return nil
	}
	if err := s.fault(stage); err != nil {
		return ioErr(fmt.Sprintf("fault at %s", stage), err)
	}
	return nil
}

// syncDir makes the rename durable where the platform allows fsync on
// directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
