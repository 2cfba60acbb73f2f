package economy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinorPerCoin = int64(100)

	// MaxAmount caps any single balance. Keeps sums of two balances inside int64.
	MaxAmount = Amount(1_000_000_000_000) * Amount(MinorPerCoin)

	DefaultCooldown = 20 * time.Minute
	DefaultReward   = Amount(25 * MinorPerCoin)
)

var (
	ErrStorageIO    = errors.New("storage io failure")
	ErrCorruptTable = errors.New("persisted profile table is corrupt")

	ErrInvalidAmount = errors.New("amount must be a positive value with at most 2 decimal places")
)

// Amount is a currency value in minor units (cents).
type Amount int64

func Coins(n int64) Amount {
	return Amount(n * MinorPerCoin)
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// ParseAmount reads a user-typed decimal ("5", "5.5", "5,50") into minor units.
func ParseAmount(s string) (Amount, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return AmountFromDecimal(d)
}

// AmountFromDecimal rejects values that would lose precision in minor units.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, ErrInvalidAmount
	}
	if !minor.IsPositive() || minor.GreaterThan(decimal.NewFromInt(int64(MaxAmount))) {
		return 0, ErrInvalidAmount
	}
	return Amount(minor.IntPart()), nil
}

func (a Amount) Valid() bool {
	return a > 0 && a <= MaxAmount
}

// Profile is the per-user economic state.
type Profile struct {
	Balance    Amount
	LastEarnAt time.Time
	Inventory  []string
}

// HasEarned reports whether the profile ever completed an earn.
func (p Profile) HasEarned() bool {
	return !p.LastEarnAt.IsZero()
}

func (p Profile) Clone() Profile {
	out := p
	if p.Inventory != nil {
		out.Inventory = append([]string(nil), p.Inventory...)
	}
	return out
}

func NewProfile() Profile {
	return Profile{Inventory: []string{}}
}

// Mutation replaces the stored profile of UserID.
type Mutation struct {
	UserID  string
	Profile Profile
}
