package economy

import "context"

// ProfileStore owns the persisted profile table. Implementations serialize
// every commit through one critical section so each commit observes all
// commits that completed before it started.
type ProfileStore interface {
	// Load returns the whole table, initializing and persisting an empty
	// one when no backing record exists yet.
	Load(ctx context.Context) (map[string]Profile, error)
	GetOrCreate(ctx context.Context, userID string) (Profile, error)
	// Commit applies every mutation in one durable write, or none of them.
	Commit(ctx context.Context, mutations []Mutation) error
	// Update runs fn against the latest committed table inside the store's
	// critical section. Profiles put through tx are committed atomically
	// when fn returns nil; nothing is written when fn returns an error.
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the table handed to Update callbacks.
type Tx interface {
	// Get returns the stored profile, or a default one if the user has none.
	Get(userID string) (Profile, error)
	Put(userID string, p Profile)
}
