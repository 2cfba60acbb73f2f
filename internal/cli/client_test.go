package cli

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"coinbot/internal/api"
	"coinbot/internal/auth"
	"coinbot/internal/economy"
	"coinbot/internal/store"
)

func newAPI(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	s, err := store.NewFile(filepath.Join(t.TempDir(), "economia.json"))
	require.NoError(t, err)
	engine, err := economy.NewEngine(s, nil, economy.DefaultConfig())
	require.NoError(t, err)
	key, hash, err := auth.GenerateKey(bcrypt.MinCost)
	require.NoError(t, err)
	keys, err := auth.NewKeyVerifier(hash)
	require.NoError(t, err)

	now := time.UnixMilli(1_700_000_000_000)
	server := api.New(nil, keys, engine,
		api.WithGatherer(prometheus.NewRegistry()),
		api.WithClock(func() time.Time { return now }))
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv, key
}

func TestClientRoundTrip(t *testing.T) {
	srv, key := newAPI(t)
	c := NewClient(srv.URL+"/", key)
	ctx := context.Background()

	items, err := c.Shop(ctx)
	require.NoError(t, err)
	require.Len(t, items, 7)
	assert.Equal(t, "Pão Francês", items[0].Name)

	earned, err := c.Earn(ctx, "5511@s.whatsapp.net")
	require.NoError(t, err)
	assert.True(t, earned.Result.Granted)
	assert.Equal(t, economy.Coins(25), earned.Result.NewBalance)

	again, err := c.Earn(ctx, "5511@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, economy.ReasonCooldownActive, again.Result.Reason)
	assert.Equal(t, int64(20*time.Minute/time.Millisecond), again.CooldownRemainingMs)

	bought, err := c.Purchase(ctx, "5511@s.whatsapp.net", "pao")
	require.NoError(t, err)
	assert.True(t, bought.OK)
	require.NotNil(t, bought.Item)
	assert.Equal(t, "pao", bought.Item.ID)

	sent, err := c.Transfer(ctx, "5511@s.whatsapp.net", "5522@s.whatsapp.net", "10,25")
	require.NoError(t, err)
	assert.True(t, sent.OK)
	assert.Equal(t, economy.Amount(1025), sent.Amount)

	bal, err := c.Balance(ctx, "5522@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, "10.25", bal.Balance)

	inv, err := c.Inventory(ctx, "5511@s.whatsapp.net")
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, InventoryLine{ID: "pao", Name: "Pão Francês", Count: 1}, inv[0])
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	srv, _ := newAPI(t)
	c := NewClient(srv.URL, "coin_wrong")

	_, err := c.Shop(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid api key", apiErr.Message)
}

func TestCredentialsLifecycle(t *testing.T) {
	creds := NewCredentialStore(filepath.Join(t.TempDir(), "coin"))

	_, err := creds.Load()
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	saved := Credentials{APIBaseURL: "http://localhost:8080", APIKey: "coin_abc", SavedAt: time.Unix(1_700_000_000, 0).UTC()}
	require.NoError(t, creds.Save(saved))

	info, err := os.Stat(creds.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := creds.Load()
	require.NoError(t, err)
	assert.Equal(t, saved.APIBaseURL, loaded.APIBaseURL)
	assert.Equal(t, saved.APIKey, loaded.APIKey)
	assert.True(t, saved.SavedAt.Equal(loaded.SavedAt))

	require.NoError(t, creds.Clear())
	require.NoError(t, creds.Clear())
	_, err = creds.Load()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestCredentialsRejectBadInput(t *testing.T) {
	creds := NewCredentialStore(t.TempDir())
	assert.Error(t, creds.Save(Credentials{APIBaseURL: "http://localhost:8080"}))
	assert.Error(t, creds.Save(Credentials{APIBaseURL: "localhost", APIKey: "coin_abc"}))

	require.NoError(t, os.WriteFile(creds.Path(), []byte(`{"api_key": "  "}`), 0o600))
	_, err := creds.Load()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotLoggedIn)
}

func TestDefaultCredentialStoreHonorsConfigDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("COIN_CONFIG_DIR", dir)
	creds, err := DefaultCredentialStore()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "credentials.json"), creds.Path())

	t.Setenv("COIN_CONFIG_DIR", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	creds, err = DefaultCredentialStore()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".coin", "credentials.json"), creds.Path())
}
