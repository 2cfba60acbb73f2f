package store

import (
	"fmt"
	"time"

	"coinbot/internal/economy"
)

// record is the persisted layout of one profile: balance in minor units,
// lastEarnAt in epoch milliseconds (null until the first earn).
type record struct {
	Balance    int64    `json:"balance"`
	LastEarnAt *int64   `json:"lastEarnAt"`
	Inventory  []string `json:"inventory"`
}

func toRecord(p economy.Profile) record {
	r := record{
		Balance:   int64(p.Balance),
		Inventory: append([]string{}, p.Inventory...),
	}
	if p.HasEarned() {
		ms := p.LastEarnAt.UnixMilli()
		r.LastEarnAt = &ms
	}
	return r
}

func (r record) profile() economy.Profile {
	p := economy.Profile{
		Balance:   economy.Amount(r.Balance),
		Inventory: append([]string{}, r.Inventory...),
	}
	if r.LastEarnAt != nil {
		p.LastEarnAt = time.UnixMilli(*r.LastEarnAt)
	}
	return p
}

func (r record) validate(userID string) error {
	if userID == "" {
		return fmt.Errorf("empty user id key")
	}
	if r.Balance < 0 {
		return fmt.Errorf("user %q has negative balance %d", userID, r.Balance)
	}
	return nil
}

func lastEarnMillis(p economy.Profile) *int64 {
	if !p.HasEarned() {
		return nil
	}
	ms := p.LastEarnAt.UnixMilli()
	return &ms
}

func lastEarnFromMillis(ms *int64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return time.UnixMilli(*ms)
}
