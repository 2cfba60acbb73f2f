package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinbot/internal/economy"
)

func TestImportLegacy(t *testing.T) {
	dst, err := NewFile(filepath.Join(t.TempDir(), "economia.json"))
	require.NoError(t, err)

	legacy := `{
		"5511@s.whatsapp.net": {"balance": 12.5, "lastWork": 1700000000000, "inventory": ["maca", "pao"]},
		"5522@s.whatsapp.net": {"balance": 0, "lastWork": 0, "inventory": []},
		"5533@s.whatsapp.net": {"balance": 25}
	}`
	n, err := ImportLegacy(context.Background(), dst, strings.NewReader(legacy))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	table, err := dst.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, economy.Amount(1250), table["5511@s.whatsapp.net"].Balance)
	assert.Equal(t, int64(1700000000000), table["5511@s.whatsapp.net"].LastEarnAt.UnixMilli())
	assert.Equal(t, []string{"maca", "pao"}, table["5511@s.whatsapp.net"].Inventory)
	assert.False(t, table["5522@s.whatsapp.net"].HasEarned())
	assert.Equal(t, economy.Amount(2500), table["5533@s.whatsapp.net"].Balance)
	assert.Empty(t, table["5533@s.whatsapp.net"].Inventory)
}

func TestImportLegacyRejectsBadTables(t *testing.T) {
	cases := map[string]string{
		"not json":         `[1, 2`,
		"negative balance": `{"a": {"balance": -1, "lastWork": 0, "inventory": []}}`,
		"too large":        `{"a": {"balance": 1000000000001, "lastWork": 0, "inventory": []}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dst, err := NewFile(filepath.Join(t.TempDir(), "economia.json"))
			require.NoError(t, err)
			_, err = ImportLegacy(context.Background(), dst, strings.NewReader(body))
			assert.Error(t, err)

			table, err := dst.Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, table)
		})
	}
}
