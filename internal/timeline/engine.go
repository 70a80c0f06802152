package timeline

import (
	"context"
	"time"

	"github.com/wirelessr/twitter-timeline-facade/internal/graph"
	"github.com/wirelessr/twitter-timeline-facade/internal/store"
)

const (
	defaultCelebrityFollowerThreshold = 1000
	defaultInactiveDayThreshold       = 7
	defaultMaxRecommendLength         = 800
	defaultFanoutWorkers              = 16
)

// Engine decides, per author, between fan-out-on-write and fan-out-on-read,
// and owns all timeline business policy. Storage and graph access are
// injected collaborators.
type Engine struct {
	store store.Store
	graph graph.Gateway

	celebrityFollowerThreshold int64
	inactiveDayThreshold       int
	maxRecommendLength         int64
	fanoutWorkers              int

	now func() time.Time
}

type Option func(*Engine)

func WithCelebrityFollowerThreshold(n int64) Option {
	return func(e *Engine) { e.celebrityFollowerThreshold = n }
}

func WithInactiveDayThreshold(days int) Option {
	return func(e *Engine) { e.inactiveDayThreshold = days }
}

func WithMaxRecommendLength(n int64) Option {
	return func(e *Engine) { e.maxRecommendLength = n }
}

func WithFanoutWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fanoutWorkers = n
		}
	}
}

func NewEngine(st store.Store, gw graph.Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:                      st,
		graph:                      gw,
		celebrityFollowerThreshold: defaultCelebrityFollowerThreshold,
		inactiveDayThreshold:       defaultInactiveDayThreshold,
		maxRecommendLength:         defaultMaxRecommendLength,
		fanoutWorkers:              defaultFanoutWorkers,
		now:                        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsCelebrity reports whether the author's current follower count strictly
// exceeds the configured threshold. It re-reads the count on every call, so
// classification can flip between a post and a later retrieve or delete; a
// post made under one classification is not reconciled when the author
// crosses the threshold afterwards.
func (e *Engine) IsCelebrity(ctx context.Context, authorID string) (bool, error) {
	n, err := e.graph.CountFollowers(ctx, authorID)
	if err != nil {
		return false, err
	}
	return n > e.celebrityFollowerThreshold, nil
}

// ActiveFollowers returns the author's followers whose last login is within
// the inactivity threshold, resolved with a single batched staleness lookup.
func (e *Engine) ActiveFollowers(ctx context.Context, authorID string) ([]string, error) {
	followers, err := e.graph.Followers(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if len(followers) == 0 {
		return nil, nil
	}
	days, err := e.graph.LastLoginDays(ctx, followers)
	if err != nil {
		return nil, err
	}
	active := make([]string, 0, len(followers))
	for _, f := range followers {
		d, ok := days[f]
		if !ok {
			d = graph.UnknownLastLoginDays
		}
		if d <= e.inactiveDayThreshold {
			active = append(active, f)
		}
	}
	return active, nil
}

// Post routes one post event. A celebrity's post lands once in their own
// authored feed; an ordinary author's post is pushed into every active
// follower's recommended feed, each trimmed independently. Per-follower
// outcomes come back in the report; the returned error covers only
// classification, graph access and the celebrity single write.
func (e *Engine) Post(ctx context.Context, p Post) (*FanoutReport, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = e.now().UTC()
	}
	entry := store.Entry{PostID: p.ID, Meta: p.Meta, CreatedAt: p.CreatedAt}

	celeb, err := e.IsCelebrity(ctx, p.AuthorID)
	if err != nil {
		return nil, err
	}
	if celeb {
		key := store.Key{OwnerID: p.AuthorID, Kind: store.KindAuthored}
		if err := e.store.Append(ctx, key, entry, e.maxRecommendLength); err != nil {
			return nil, err
		}
		return &FanoutReport{}, nil
	}

	followers, err := e.ActiveFollowers(ctx, p.AuthorID)
	if err != nil {
		return nil, err
	}
	report := e.broadcast(ctx, followers, func(ctx context.Context, follower string) error {
		key := store.Key{OwnerID: follower, Kind: store.KindRecommended}
		return e.store.Append(ctx, key, entry, e.maxRecommendLength)
	})
	fanoutWrites.Add(float64(len(report.Results) - len(report.Failed())))
	fanoutFailures.Add(float64(len(report.Failed())))
	return report, nil
}

// Retrieve assembles the user's timeline: the recommended feed already
// pushed to them, merged with the authored feeds of the celebrities they
// follow, fetched in one batched round trip. The result is an unordered
// shuffle; a failing batch fails the whole retrieve rather than returning a
// partial merge.
func (e *Engine) Retrieve(ctx context.Context, userID string) ([]store.Entry, error) {
	followees, err := e.graph.Followees(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Ordinary followees contribute nothing here: their posts were
	// already pushed into this user's recommended feed at post time.
	// Counts resolve in one batched round trip, so classification cost
	// does not grow with sequential lookups per followee.
	counts, err := e.graph.BatchCountFollowers(ctx, followees)
	if err != nil {
		return nil, err
	}
	var celebrityKeys []store.Key
	for _, f := range followees {
		if counts[f] > e.celebrityFollowerThreshold {
			celebrityKeys = append(celebrityKeys, store.Key{OwnerID: f, Kind: store.KindAuthored})
		}
	}

	fromOwned, err := e.store.Read(ctx, store.Key{OwnerID: userID, Kind: store.KindRecommended})
	if err != nil {
		return nil, err
	}
	feeds, err := e.store.BatchRead(ctx, celebrityKeys)
	if err != nil {
		return nil, err
	}
	var fromCelebrities []store.Entry
	for _, k := range celebrityKeys {
		fromCelebrities = append(fromCelebrities, feeds[k]...)
	}
	faninPosts.Add(float64(len(fromCelebrities)))

	return assemble(fromOwned, fromCelebrities), nil
}

// DeletePost mirrors Post. A celebrity's delete touches only their authored
// feed; an ordinary author's delete fans out to every follower, active or
// not, since stale copies must go too. Absent entries are no-ops.
func (e *Engine) DeletePost(ctx context.Context, userID, postID string) (*FanoutReport, error) {
	celeb, err := e.IsCelebrity(ctx, userID)
	if err != nil {
		return nil, err
	}
	if celeb {
		key := store.Key{OwnerID: userID, Kind: store.KindAuthored}
		if err := e.store.Delete(ctx, key, postID); err != nil {
			return nil, err
		}
		return &FanoutReport{}, nil
	}

	followers, err := e.graph.Followers(ctx, userID)
	if err != nil {
		return nil, err
	}
	report := e.broadcast(ctx, followers, func(ctx context.Context, follower string) error {
		key := store.Key{OwnerID: follower, Kind: store.KindRecommended}
		return e.store.Delete(ctx, key, postID)
	})
	fanoutFailures.Add(float64(len(report.Failed())))
	return report, nil
}

// AuthorFeed reads a user's own authored feed, oldest first.
func (e *Engine) AuthorFeed(ctx context.Context, userID string) ([]store.Entry, error) {
	return e.store.Read(ctx, store.Key{OwnerID: userID, Kind: store.KindAuthored})
}
