package store

import (
	"errors"
	"fmt"
	"strings"

	"coinbot/internal/economy"
)

var (
	ErrEmptyUserID     = errors.New("user id is required")
	ErrNegativeBalance = errors.New("refusing to persist a negative balance")
)

type readFunc func(userID string) (economy.Profile, bool, error)

// txn buffers the puts of one Update call. Reads see earlier puts of the
// same transaction.
type txn struct {
	read  readFunc
	puts  map[string]economy.Profile
	order []string
}

func newTxn(read readFunc) *txn {
	return &txn{read: read, puts: make(map[string]economy.Profile)}
}

func (t *txn) Get(userID string) (economy.Profile, error) {
	if p, ok := t.puts[userID]; ok {
		return p.Clone(), nil
	}
	p, ok, err := t.read(userID)
	if err != nil {
		return economy.Profile{}, err
	}
	if !ok {
		return economy.NewProfile(), nil
	}
	return p.Clone(), nil
}

func (t *txn) Put(userID string, p economy.Profile) {
	if _, seen := t.puts[userID]; !seen {
		t.order = append(t.order, userID)
	}
	t.puts[userID] = p.Clone()
}

func (t *txn) mutations() []economy.Mutation {
	out := make([]economy.Mutation, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, economy.Mutation{UserID: id, Profile: t.puts[id]})
	}
	return out
}

func validateMutations(mutations []economy.Mutation) error {
	for _, m := range mutations {
		if strings.TrimSpace(m.UserID) == "" {
			return ErrEmptyUserID
		}
		if m.Profile.Balance < 0 {
			return fmt.Errorf("%w: user %q balance %s", ErrNegativeBalance, m.UserID, m.Profile.Balance)
		}
	}
	return nil
}

func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", economy.ErrStorageIO, op, err)
}

func corruptErr(where string, err error) error {
	return fmt.Errorf("%w: %s: %w", economy.ErrCorruptTable, where, err)
}
