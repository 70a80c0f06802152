package store

import (
	"context"
	"encoding/json"
	"time"
)

// Kind selects which of a user's bounded feeds a key addresses.
type Kind string

const (
	// KindAuthored holds a user's own posts, read by followers at
	// retrieve time (the pull side).
	KindAuthored Kind = "authored"
	// KindRecommended holds posts pushed to a user by fan-out at post
	// time (the push side).
	KindRecommended Kind = "recommended"
)

// Key identifies one capacity-bounded feed.
type Key struct {
	OwnerID string
	Kind    Kind
}

// Entry is one surviving post reference in a feed, oldest-first on read.
type Entry struct {
	PostID    string          `json:"post_id"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store is the capacity-bounded, insertion-ordered feed storage used by the
// timeline engine. A feed comes into existence on first Append; an empty
// feed and a missing feed are indistinguishable.
type Store interface {
	// Append writes the entry's metadata record and inserts the post into
	// the key's ranked index, then trims the index so at most limit
	// entries survive, evicting the oldest first. The three sub-steps are
	// atomic per key.
	Append(ctx context.Context, key Key, e Entry, limit int64) error

	// Read returns all surviving entries for one key, oldest first, with
	// metadata resolved in a single batched lookup.
	Read(ctx context.Context, key Key) ([]Entry, error)

	// BatchRead reads several keys in one round trip. One key's lookup
	// never serializes behind another's.
	BatchRead(ctx context.Context, keys []Key) (map[Key][]Entry, error)

	// Delete removes the post from the key's ranked index. Deleting an
	// absent post is a successful no-op. The metadata record is left to
	// expire on its own.
	Delete(ctx context.Context, key Key, postID string) error
}
