package timeline

import (
	"encoding/json"
	"time"
)

// Post is one immutable post event entering the engine. CreatedAt defaults
// to engine-observed time when the caller leaves it zero.
type Post struct {
	ID        string          `json:"post_id"`
	AuthorID  string          `json:"author_id"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// FanoutResult is the outcome of one follower's write or delete within a
// fan-out.
type FanoutResult struct {
	FollowerID string `json:"follower_id"`
	Err        error  `json:"-"`
}

// FanoutReport aggregates per-follower outcomes of one fan-out. Failures
// are collected, never raised as a batch-aborting error: one follower's
// store failure does not block any other follower's write.
type FanoutReport struct {
	Results []FanoutResult
}

// Failed returns the subset of results that carry an error.
func (r *FanoutReport) Failed() []FanoutResult {
	var out []FanoutResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}
