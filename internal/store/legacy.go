package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"coinbot/internal/economy"
)

// legacyProfile is one entry of the legacy bot's economia.json: balance in
// (float) coins, lastWork in epoch ms with 0 meaning never.
type legacyProfile struct {
	Balance   decimal.Decimal `json:"balance"`
	LastWork  int64           `json:"lastWork"`
	Inventory []string        `json:"inventory"`
}

// ImportLegacy copies an economia.json table into dst in a single commit and
// returns the number of imported profiles. Existing profiles with the same
// ids are replaced.
func ImportLegacy(ctx context.Context, dst economy.ProfileStore, r io.Reader) (int, error) {
	var table map[string]legacyProfile
	if err := json.NewDecoder(r).Decode(&table); err != nil {
		return 0, fmt.Errorf("decode legacy table: %w", err)
	}

	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	mutations := make([]economy.Mutation, 0, len(ids))
	for _, id := range ids {
		lp := table[id]
		minor := lp.Balance.Shift(2).Round(0)
		if minor.IsNegative() {
			return 0, fmt.Errorf("legacy profile %q: negative balance %s", id, lp.Balance)
		}
		if minor.GreaterThan(decimal.NewFromInt(int64(economy.MaxAmount))) {
			return 0, fmt.Errorf("legacy profile %q: balance %s out of range", id, lp.Balance)
		}
		p := economy.Profile{
			Balance:   economy.Amount(minor.IntPart()),
			Inventory: append([]string{}, lp.Inventory...),
		}
		if lp.LastWork > 0 {
			p.LastEarnAt = time.UnixMilli(lp.LastWork)
		}
		mutations = append(mutations, economy.Mutation{UserID: id, Profile: p})
	}
	if len(mutations) == 0 {
		return 0, nil
	}
	if err := dst.Commit(ctx, mutations); err != nil {
		return 0, err
	}
	return len(mutations), nil
}
