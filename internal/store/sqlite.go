package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"coinbot/internal/economy"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLite stores one row per profile. A single connection plus s.mu keeps
// one writer at a time.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite store path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ioErr("open sqlite", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, ioErr("ping sqlite", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, ioErr(pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, ioErr("apply sqlite schema", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context) (map[string]economy.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, balance, last_earn_at, inventory FROM profiles`)
	if err != nil {
		return nil, ioErr("load profiles", err)
	}
	defer rows.Close()

	out := make(map[string]economy.Profile)
	for rows.Next() {
		var userID string
		var r sqliteRow
		if err := rows.Scan(&userID, &r.balance, &r.lastEarnAt, &r.inventory); err != nil {
			return nil, ioErr("scan profile", err)
		}
		p, err := r.profile()
		if err != nil {
			return nil, corruptErr("profile "+userID, err)
		}
		out[userID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("load profiles", err)
	}
	return out, nil
}

func (s *SQLite) GetOrCreate(ctx context.Context, userID string) (economy.Profile, error) {
	if userID == "" {
		return economy.Profile{}, ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id) VALUES (?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID); err != nil {
		return economy.Profile{}, ioErr("create profile", err)
	}
	p, _, err := readSQLite(ctx, s.db, userID)
	return p, err
}

func (s *SQLite) Commit(ctx context.Context, mutations []economy.Mutation) error {
	return s.Update(ctx, func(tx economy.Tx) error {
		for _, m := range mutations {
			tx.Put(m.UserID, m.Profile)
		}
		return nil
	})
}

func (s *SQLite) Update(ctx context.Context, fn func(tx economy.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ioErr("begin", err)
	}
	defer tx.Rollback()

	buf := newTxn(func(userID string) (economy.Profile, bool, error) {
		return readSQLite(ctx, tx, userID)
	})
	if err := fn(buf); err != nil {
		return err
	}
	mutations := buf.mutations()
	if len(mutations) == 0 {
		return nil
	}
	if err := validateMutations(mutations); err != nil {
		return err
	}
	for _, m := range mutations {
		inv, err := json.Marshal(append([]string{}, m.Profile.Inventory...))
		if err != nil {
			return ioErr("encode inventory", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (user_id, balance, last_earn_at, inventory)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				balance = excluded.balance,
				last_earn_at = excluded.last_earn_at,
				inventory = excluded.inventory
		`, m.UserID, int64(m.Profile.Balance), nullMillis(m.Profile), string(inv)); err != nil {
			return ioErr(fmt.Sprintf("write profile %q", m.UserID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ioErr("commit", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteRow struct {
	balance    int64
	lastEarnAt sql.NullInt64
	inventory  string
}

func (r sqliteRow) profile() (economy.Profile, error) {
	p := economy.Profile{Balance: economy.Amount(r.balance), Inventory: []string{}}
	if r.balance < 0 {
		return p, fmt.Errorf("negative balance %d", r.balance)
	}
	if r.lastEarnAt.Valid {
		ms := r.lastEarnAt.Int64
		p.LastEarnAt = lastEarnFromMillis(&ms)
	}
	if r.inventory != "" {
		if err := json.Unmarshal([]byte(r.inventory), &p.Inventory); err != nil {
			return p, err
		}
	}
	if p.Inventory == nil {
		p.Inventory = []string{}
	}
	return p, nil
}

func nullMillis(p economy.Profile) sql.NullInt64 {
	ms := lastEarnMillis(p)
	if ms == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ms, Valid: true}
}

func readSQLite(ctx context.Context, q queryRower, userID string) (economy.Profile, bool, error) {
	var r sqliteRow
	err := q.QueryRowContext(ctx, `
		SELECT balance, last_earn_at, inventory FROM profiles WHERE user_id = ?
	`, userID).Scan(&r.balance, &r.lastEarnAt, &r.inventory)
	if errors.Is(err, sql.ErrNoRows) {
		return economy.Profile{}, false, nil
	}
	if err != nil {
		return economy.Profile{}, false, ioErr("read profile", err)
	}
	p, err := r.profile()
	if err != nil {
		return economy.Profile{}, false, corruptErr("profile "+userID, err)
	}
	return p, true, nil
}
