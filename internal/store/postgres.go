package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coinbot/internal/economy"
)

//go:embed schema/postgres.sql
var postgresSchema string

var ErrTxConflict = errors.New("transaction conflict, retry later")

// Postgres stores profiles in coinbot.profiles. Writes from this process
// go through s.mu; serializable isolation covers other processes sharing
// the database.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
	mu   sync.Mutex
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, ioErr("apply postgres schema", err)
	}
	return &Postgres{pool: pool, log: logger}, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) Load(ctx context.Context) (map[string]economy.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, balance_minor, last_earn_at_ms, inventory
		FROM coinbot.profiles
	`)
	if err != nil {
		return nil, ioErr("load profiles", err)
	}
	defer rows.Close()

	out := make(map[string]economy.Profile)
	for rows.Next() {
		var userID string
		var balance int64
		var lastEarn *int64
		var inventory []string
		if err := rows.Scan(&userID, &balance, &lastEarn, &inventory); err != nil {
			return nil, ioErr("scan profile", err)
		}
		p, err := pgProfile(balance, lastEarn, inventory)
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

func (s *Postgres) GetOrCreate(ctx context.Context, userID string) (economy.Profile, error) {
	if userID == "" {
		return economy.Profile{}, ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO coinbot.profiles (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return economy.Profile{}, ioErr("create profile", err)
	}
	p, _, err := readPostgres(ctx, s.pool, userID, false)
	return p, err
}

func (s *Postgres) Commit(ctx context.Context, mutations []economy.Mutation) error {
	return s.Update(ctx, func(tx economy.Tx) error {
		for _, m := range mutations {
			tx.Put(m.UserID, m.Profile)
		}
		return nil
	})
}

func (s *Postgres) Update(ctx context.Context, fn func(tx economy.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.updateOnce(ctx, fn)
		if err == nil || !isSerializationError(err) {
			return err
		}
		s.log.Warn("profile commit conflict, retrying", "attempt", attempt+1)
		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return ioErr("retry wait", err)
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ioErr("commit", ErrTxConflict)
}

func (s *Postgres) updateOnce(ctx context.Context, fn func(tx economy.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return ioErr("begin", err)
	}
	defer tx.Rollback(ctx)

	buf := newTxn(func(userID string) (economy.Profile, bool, error) {
		return readPostgres(ctx, tx, userID, true)
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

	batch := &pgx.Batch{}
	for _, m := range mutations {
		batch.Queue(`
			INSERT INTO coinbot.profiles (user_id, balance_minor, last_earn_at_ms, inventory, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (user_id) DO UPDATE SET
				balance_minor = EXCLUDED.balance_minor,
				last_earn_at_ms = EXCLUDED.last_earn_at_ms,
				inventory = EXCLUDED.inventory,
				updated_at = now()
		`, m.UserID, int64(m.Profile.Balance), lastEarnMillis(m.Profile), append([]string{}, m.Profile.Inventory...))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return ioErr("write profiles", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ioErr("commit", err)
	}
	return nil
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readPostgres(ctx context.Context, q pgQuerier, userID string, forUpdate bool) (economy.Profile, bool, error) {
	query := `
		SELECT balance_minor, last_earn_at_ms, inventory
		FROM coinbot.profiles
		WHERE user_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var balance int64
	var lastEarn *int64
	var inventory []string
	err := q.QueryRow(ctx, query, userID).Scan(&balance, &lastEarn, &inventory)
	if errors.Is(err, pgx.ErrNoRows) {
		return economy.Profile{}, false, nil
	}
	if err != nil {
		return economy.Profile{}, false, ioErr("read profile", err)
	}
	p, err := pgProfile(balance, lastEarn, inventory)
	if err != nil {
		return economy.Profile{}, false, corruptErr("profile "+userID, err)
	}
	return p, true, nil
}

func pgProfile(balance int64, lastEarn *int64, inventory []string) (economy.Profile, error) {
	if balance < 0 {
		return economy.Profile{}, fmt.Errorf("negative balance %d", balance)
	}
	if inventory == nil {
		inventory = []string{}
	}
	return economy.Profile{
		Balance:    economy.Amount(balance),
		LastEarnAt: lastEarnFromMillis(lastEarn),
		Inventory:  inventory,
	}, nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
