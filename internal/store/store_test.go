package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbot/internal/config"
	"coinbot/internal/db"
	"coinbot/internal/economy"
)

// runStoreSuite checks the behavior every ProfileStore backend shares.
func runStoreSuite(t *testing.T, open func(t *testing.T) economy.ProfileStore) {
	t.Run("empty table", func(t *testing.T) {
		s := open(t)
		table, err := s.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, table)
	})

	t.Run("get or create is idempotent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		first, err := s.GetOrCreate(ctx, "u1")
		require.NoError(t, err)
		second, err := s.GetOrCreate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, economy.Amount(0), first.Balance)
		assert.False(t, first.HasEarned())
		assert.Empty(t, first.Inventory)

		_, err = s.GetOrCreate(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyUserID)
	})

	t.Run("commit round trip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		earned := time.UnixMilli(1_700_000_000_000)
		require.NoError(t, s.Commit(ctx, []economy.Mutation{
			{UserID: "a", Profile: economy.Profile{Balance: 1300, LastEarnAt: earned, Inventory: []string{"maca", "maca", "pao"}}},
			{UserID: "b", Profile: economy.Profile{Balance: 500, Inventory: []string{}}},
		}))

		table, err := s.Load(ctx)
		require.NoError(t, err)
		require.Len(t, table, 2)
		assert.Equal(t, economy.Amount(1300), table["a"].Balance)
		assert.True(t, table["a"].HasEarned())
		assert.True(t, table["a"].LastEarnAt.Equal(earned))
		assert.Equal(t, []string{"maca", "maca", "pao"}, table["a"].Inventory)
		assert.False(t, table["b"].HasEarned())
	})

	t.Run("negative balance is refused", func(t *testing.T) {
		s := open(t)
		err := s.Commit(context.Background(), []economy.Mutation{
			{UserID: "a", Profile: economy.Profile{Balance: -1}},
		})
		assert.ErrorIs(t, err, ErrNegativeBalance)
	})

	t.Run("update sees own puts and commits atomically", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		err := s.Update(ctx, func(tx economy.Tx) error {
			p, err := tx.Get("a")
			if err != nil {
				return err
			}
			p.Balance = 100
			tx.Put("a", p)
			again, err := tx.Get("a")
			if err != nil {
				return err
			}
			assert.Equal(t, economy.Amount(100), again.Balance)
			tx.Put("b", economy.Profile{Balance: 7, Inventory: []string{}})
			return nil
		})
		require.NoError(t, err)

		table, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, economy.Amount(100), table["a"].Balance)
		assert.Equal(t, economy.Amount(7), table["b"].Balance)
	})

	t.Run("failed update writes nothing", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		boom := errors.New("boom")
		err := s.Update(ctx, func(tx economy.Tx) error {
			tx.Put("a", economy.Profile{Balance: 100})
			return boom
		})
		assert.ErrorIs(t, err, boom)

		table, err := s.Load(ctx)
		require.NoError(t, err)
		assert.NotContains(t, table, "a")
	})

	t.Run("concurrent updates do not lose writes", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Update(ctx, func(tx economy.Tx) error {
					p, err := tx.Get("counter")
					if err != nil {
						return err
					}
					p.Balance++
					tx.Put("counter", p)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		table, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, economy.Amount(20), table["counter"].Balance)
	})
}

func TestFileStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) economy.ProfileStore {
		s, err := NewFile(filepath.Join(t.TempDir(), "data", "economia.json"))
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) economy.ProfileStore {
		s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "economia.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("COINBOT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COINBOT_TEST_DATABASE_URL not set")
	}
	runStoreSuite(t, func(t *testing.T) economy.ProfileStore {
		ctx := context.Background()
		pool, err := db.Connect(ctx, url, 4)
		require.NoError(t, err)
		s, err := NewPostgres(ctx, pool, nil)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, "TRUNCATE coinbot.profiles")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestFileStoreInitializesEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economia.json")
	s, err := NewFile(path)
	require.NoError(t, err)

	_, err = s.Load(context.Background())
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestFileStorePersistedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economia.json")
	s, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(context.Background(), []economy.Mutation{
		{UserID: "5511@s.whatsapp.net", Profile: economy.Profile{Balance: 2500, LastEarnAt: time.UnixMilli(60_000), Inventory: []string{"maca"}}},
		{UserID: "5522@s.whatsapp.net", Profile: economy.NewProfile()},
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"5511@s.whatsapp.net": {"balance": 2500, "lastEarnAt": 60000, "inventory": ["maca"]},
		"5522@s.whatsapp.net": {"balance": 0, "lastEarnAt": null, "inventory": []}
	}`, string(raw))
}

func TestFileStoreTreatsBlankFileAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economia.json")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	s, err := NewFile(path)
	require.NoError(t, err)

	table, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestFileStoreRejectsCorruptTable(t *testing.T) {
	cases := map[string]string{
		"bad json":         `{"a": {"balance": `,
		"negative balance": `{"a": {"balance": -5, "lastEarnAt": null, "inventory": []}}`,
		"empty key":        `{"": {"balance": 0, "lastEarnAt": null, "inventory": []}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "economia.json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			s, err := NewFile(path)
			require.NoError(t, err)

			_, err = s.Load(context.Background())
			assert.ErrorIs(t, err, economy.ErrCorruptTable)

			after, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, body, string(after), "corrupt table must not be rewritten")
		})
	}
}

func TestFileStoreFaultBeforeWriteLeavesTableIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economia.json")
	fail := false
	s, err := NewFile(path, WithFaultHook(func(stage Stage) error {
		if fail && stage == StageBeforeWrite {
			return errors.New("no space left")
		}
		return nil
	}))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, []economy.Mutation{{UserID: "a", Profile: economy.Profile{Balance: 10}}}))

	fail = true
	err = s.Commit(ctx, []economy.Mutation{{UserID: "a", Profile: economy.Profile{Balance: 99}}})
	assert.ErrorIs(t, err, economy.ErrStorageIO)

	reopened, err := NewFile(path)
	require.NoError(t, err)
	table, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, economy.Amount(10), table["a"].Balance)
}

func TestFileStoresSharingPathKeepEachOthersCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economia.json")
	bot, err := NewFile(path)
	require.NoError(t, err)
	api, err := NewFile(path)
	require.NoError(t, err)
	ctx := context.Background()

	// Both stores read the table before either writes.
	_, err = bot.Load(ctx)
	require.NoError(t, err)
	_, err = api.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, bot.Commit(ctx, []economy.Mutation{{UserID: "a", Profile: economy.Profile{Balance: 2500, Inventory: []string{}}}}))
	require.NoError(t, api.Commit(ctx, []economy.Mutation{{UserID: "b", Profile: economy.Profile{Balance: 2500, Inventory: []string{}}}}))

	fresh, err := NewFile(path)
	require.NoError(t, err)
	table, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, economy.Amount(2500), table["a"].Balance)
	assert.Equal(t, economy.Amount(2500), table["b"].Balance)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		s := bot
		if i%2 == 1 {
			s = api
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, func(tx economy.Tx) error {
				p, err := tx.Get("counter")
				if err != nil {
					return err
				}
				p.Balance++
				tx.Put("counter", p)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	table, err = fresh.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, economy.Amount(20), table["counter"].Balance)
	require.NoError(t, bot.Close())
	require.NoError(t, api.Close())
}

func TestFileStoreHonorsCanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economia.json")
	holder, err := NewFile(path)
	require.NoError(t, err)
	waiter, err := NewFile(path)
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.Update(context.Background(), func(economy.Tx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = waiter.Load(ctx)
	assert.ErrorIs(t, err, economy.ErrStorageIO)

	close(release)
	require.NoError(t, <-done)
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economia.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, []economy.Mutation{
		{UserID: "a", Profile: economy.Profile{Balance: 42, LastEarnAt: time.UnixMilli(123), Inventory: []string{"pao"}}},
	}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	p, err := s.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, economy.Amount(42), p.Balance)
	assert.Equal(t, int64(123), p.LastEarnAt.UnixMilli())
	assert.Equal(t, []string{"pao"}, p.Inventory)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := Open(ctx, config.StoreConfig{Driver: "file", Path: filepath.Join(dir, "economia.json")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &File{}, b)
	require.NoError(t, b.Close())

	b, err = Open(ctx, config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "economia.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, b)
	require.NoError(t, b.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "redis"}, nil)
	assert.Error(t, err)
}
