package graph

import (
	"context"
	"fmt"
)

// UnknownLastLoginDays is reported for users the last-login lookup has no
// record of. Large enough that any inactivity threshold classifies them as
// inactive; a missing signal never causes false inclusion.
const UnknownLastLoginDays = 999

// Gateway is the read-only view of the social graph the timeline engine
// consumes. The graph itself is owned elsewhere; this module never writes
// to it.
type Gateway interface {
	CountFollowers(ctx context.Context, userID string) (int64, error)

	// BatchCountFollowers resolves follower counts for all given users in
	// one round trip, keeping retrieve latency bounded by the number of
	// followees classified, not by sequential lookups.
	BatchCountFollowers(ctx context.Context, userIDs []string) (map[string]int64, error)

	Followers(ctx context.Context, userID string) ([]string, error)
	Followees(ctx context.Context, userID string) ([]string, error)

	// LastLoginDays resolves days-since-last-login for all given users in
	// one round trip. Unknown users map to UnknownLastLoginDays; a value
	// may be negative when the recorded login timestamp is in the future.
	LastLoginDays(ctx context.Context, userIDs []string) (map[string]int, error)
}

// UnavailableError reports a failed graph collaborator call. The engine
// propagates it without retrying; retry policy belongs to the caller.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("graph %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
