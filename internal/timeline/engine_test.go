package timeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wirelessr/twitter-timeline-facade/internal/graph"
	"github.com/wirelessr/twitter-timeline-facade/internal/store"
)

// memStore is a deterministic in-memory Store double. Individual keys can
// be made to fail to exercise partial-failure behavior.
type memStore struct {
	mu         sync.Mutex
	feeds      map[store.Key][]store.Entry
	failAppend map[store.Key]error
	failRead   map[store.Key]error
}

func newMemStore() *memStore {
	return &memStore{
		feeds:      make(map[store.Key][]store.Entry),
		failAppend: make(map[store.Key]error),
		failRead:   make(map[store.Key]error),
	}
}

func (m *memStore) Append(_ context.Context, key store.Key, e store.Entry, limit int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failAppend[key]; err != nil {
		return &store.WriteError{Key: key, Err: err}
	}
	feed := append(m.feeds[key], e)
	sort.SliceStable(feed, func(i, j int) bool { return feed[i].CreatedAt.Before(feed[j].CreatedAt) })
	if limit > 0 && int64(len(feed)) > limit {
		feed = feed[int64(len(feed))-limit:]
	}
	m.feeds[key] = feed
	return nil
}

func (m *memStore) Read(_ context.Context, key store.Key) ([]store.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failRead[key]; err != nil {
		return nil, &store.ReadError{Key: key, Err: err}
	}
	return append([]store.Entry(nil), m.feeds[key]...), nil
}

func (m *memStore) BatchRead(ctx context.Context, keys []store.Key) (map[store.Key][]store.Entry, error) {
	out := make(map[store.Key][]store.Entry, len(keys))
	for _, k := range keys {
		entries, err := m.Read(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = entries
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, key store.Key, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	feed := m.feeds[key]
	for i, e := range feed {
		if e.PostID == postID {
			m.feeds[key] = append(feed[:i:i], feed[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) contains(key store.Key, postID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.feeds[key] {
		if e.PostID == postID {
			return true
		}
	}
	return false
}

// memGraph is a static Gateway double that records how counts were looked
// up.
type memGraph struct {
	followers map[string][]string
	followees map[string][]string
	lastLogin map[string]int

	countCalls      int
	batchCountCalls int
}

func (g *memGraph) CountFollowers(_ context.Context, userID string) (int64, error) {
	g.countCalls++
	return int64(len(g.followers[userID])), nil
}

func (g *memGraph) BatchCountFollowers(_ context.Context, userIDs []string) (map[string]int64, error) {
	g.batchCountCalls++
	out := make(map[string]int64, len(userIDs))
	for _, id := range userIDs {
		out[id] = int64(len(g.followers[id]))
	}
	return out, nil
}

func (g *memGraph) Followers(_ context.Context, userID string) ([]string, error) {
	return g.followers[userID], nil
}

func (g *memGraph) Followees(_ context.Context, userID string) ([]string, error) {
	return g.followees[userID], nil
}

func (g *memGraph) LastLoginDays(_ context.Context, userIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(userIDs))
	for _, id := range userIDs {
		if d, ok := g.lastLogin[id]; ok {
			out[id] = d
		} else {
			out[id] = graph.UnknownLastLoginDays
		}
	}
	return out, nil
}

func recommended(userID string) store.Key {
	return store.Key{OwnerID: userID, Kind: store.KindRecommended}
}

func authored(userID string) store.Key {
	return store.Key{OwnerID: userID, Kind: store.KindAuthored}
}

func TestIsCelebrityBoundary(t *testing.T) {
	st := newMemStore()
	g := &memGraph{followers: map[string][]string{
		"at-threshold":   {"f1", "f2"},
		"over-threshold": {"f1", "f2", "f3"},
	}}
	e := NewEngine(st, g, WithCelebrityFollowerThreshold(2))
	ctx := context.Background()

	celeb, err := e.IsCelebrity(ctx, "at-threshold")
	require.NoError(t, err)
	assert.False(t, celeb, "a count equal to the threshold is not a celebrity")

	celeb, err = e.IsCelebrity(ctx, "over-threshold")
	require.NoError(t, err)
	assert.True(t, celeb)
}

func TestPostFansOutToActiveFollowersOnly(t *testing.T) {
	st := newMemStore()
	g := &memGraph{
		followers: map[string][]string{"alice": {"bob", "carol", "ghost"}},
		lastLogin: map[string]int{"bob": 1, "carol": 10},
	}
	e := NewEngine(st, g)
	ctx := context.Background()

	report, err := e.Post(ctx, Post{ID: "p1", AuthorID: "alice"})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Empty(t, report.Failed())

	assert.True(t, st.contains(recommended("bob"), "p1"))
	assert.False(t, st.contains(recommended("carol"), "p1"), "inactive follower gets no write")
	assert.False(t, st.contains(recommended("ghost"), "p1"), "unknown staleness means inactive")
	assert.False(t, st.contains(authored("alice"), "p1"), "ordinary author writes no authored feed")
}

func TestPostCelebritySingleWrite(t *testing.T) {
	st := newMemStore()
	g := &memGraph{
		followers: map[string][]string{"celeb": {"bob", "carol"}},
		followees: map[string][]string{"bob": {"celeb"}},
		lastLogin: map[string]int{"bob": 0, "carol": 0},
	}
	e := NewEngine(st, g, WithCelebrityFollowerThreshold(1))
	ctx := context.Background()

	report, err := e.Post(ctx, Post{ID: "p1", AuthorID: "celeb"})
	require.NoError(t, err)
	assert.Empty(t, report.Results)

	assert.True(t, st.contains(authored("celeb"), "p1"))
	assert.False(t, st.contains(recommended("bob"), "p1"), "no per-follower writes for a celebrity")

	// The follower still sees the post, via fan-in rather than a
	// recommended-feed write.
	items, err := e.Retrieve(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].PostID)
}

func TestActiveFollowersToleratesFutureLogins(t *testing.T) {
	st := newMemStore()
	g := &memGraph{
		followers: map[string][]string{"alice": {"skewed"}},
		lastLogin: map[string]int{"skewed": -3},
	}
	e := NewEngine(st, g)

	active, err := e.ActiveFollowers(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"skewed"}, active)
}

func TestFanoutFailuresAreIndependent(t *testing.T) {
	st := newMemStore()
	st.failAppend[recommended("carol")] = errors.New("connection reset")
	g := &memGraph{
		followers: map[string][]string{"alice": {"bob", "carol", "dave"}},
		lastLogin: map[string]int{"bob": 0, "carol": 0, "dave": 0},
	}
	e := NewEngine(st, g, WithFanoutWorkers(2))
	ctx := context.Background()

	report, err := e.Post(ctx, Post{ID: "p1", AuthorID: "alice"})
	require.NoError(t, err)
	require.Len(t, report.Results, 3)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "carol", failed[0].FollowerID)
	var writeErr *store.WriteError
	assert.ErrorAs(t, failed[0].Err, &writeErr)

	assert.True(t, st.contains(recommended("bob"), "p1"))
	assert.True(t, st.contains(recommended("dave"), "p1"))
}

func TestRetrieveMergesOwnedAndCelebrityFeeds(t *testing.T) {
	st := newMemStore()
	g := &memGraph{
		followers: map[string][]string{
			"celeb":    {"bob", "carol"},
			"ordinary": {"bob"},
		},
		followees: map[string][]string{"bob": {"celeb", "ordinary"}},
		lastLogin: map[string]int{"bob": 0, "carol": 0},
	}
	e := NewEngine(st, g, WithCelebrityFollowerThreshold(1))
	ctx := context.Background()

	_, err := e.Post(ctx, Post{ID: "from-ordinary", AuthorID: "ordinary"})
	require.NoError(t, err)
	_, err = e.Post(ctx, Post{ID: "from-celeb", AuthorID: "celeb"})
	require.NoError(t, err)

	items, err := e.Retrieve(ctx, "bob")
	require.NoError(t, err)

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.PostID
	}
	assert.ElementsMatch(t, []string{"from-ordinary", "from-celeb"}, ids)
}

func TestRetrieveClassifiesFolloweesInOneBatch(t *testing.T) {
	st := newMemStore()
	g := &memGraph{
		followers: map[string][]string{
			"celeb":    {"bob", "carol"},
			"ordinary": {"bob"},
		},
		followees: map[string][]string{"bob": {"celeb", "ordinary"}},
	}
	e := NewEngine(st, g, WithCelebrityFollowerThreshold(1))
	ctx := context.Background()

	require.NoError(t, st.Append(ctx, authored("celeb"), store.Entry{PostID: "c1", CreatedAt: time.Now().UTC()}, 10))

	items, err := e.Retrieve(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].PostID)

	assert.Equal(t, 1, g.batchCountCalls, "one batched count lookup per retrieve")
	assert.Zero(t, g.countCalls, "no sequential per-followee count lookups")
}

func TestRetrievePropagatesReadError(t *testing.T) {
	st := newMemStore()
	st.failRead[recommended("bob")] = errors.New("timeout")
	g := &memGraph{followees: map[string][]string{"bob": nil}}
	e := NewEngine(st, g)

	_, err := e.Retrieve(context.Background(), "bob")
	var readErr *store.ReadError
	require.ErrorAs(t, err, &readErr)
}

func TestDeleteFansOutToAllFollowers(t *testing.T) {
	st := newMemStore()
	g := &memGraph{
		followers: map[string][]string{"alice": {"bob", "carol"}},
		lastLogin: map[string]int{"bob": 0, "carol": 0},
	}
	e := NewEngine(st, g)
	ctx := context.Background()

	_, err := e.Post(ctx, Post{ID: "p1", AuthorID: "alice"})
	require.NoError(t, err)

	// Carol goes inactive before the delete; the delete must still reach
	// her stale copy.
	g.lastLogin["carol"] = 30

	report, err := e.DeletePost(ctx, "alice", "p1")
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Empty(t, report.Failed())

	assert.False(t, st.contains(recommended("bob"), "p1"))
	assert.False(t, st.contains(recommended("carol"), "p1"))
}

func TestDeleteCelebrityPost(t *testing.T) {
	st := newMemStore()
	g := &memGraph{
		followers: map[string][]string{"celeb": {"bob", "carol"}},
	}
	e := NewEngine(st, g, WithCelebrityFollowerThreshold(1))
	ctx := context.Background()

	_, err := e.Post(ctx, Post{ID: "p1", AuthorID: "celeb"})
	require.NoError(t, err)

	report, err := e.DeletePost(ctx, "celeb", "p1")
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.False(t, st.contains(authored("celeb"), "p1"))
}

func TestPostDefaultsCreatedAt(t *testing.T) {
	st := newMemStore()
	g := &memGraph{
		followers: map[string][]string{"alice": {"bob"}},
		lastLogin: map[string]int{"bob": 0},
	}
	e := NewEngine(st, g)
	e.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	_, err := e.Post(context.Background(), Post{ID: "p1", AuthorID: "alice"})
	require.NoError(t, err)

	feed, err := st.Read(context.Background(), recommended("bob"))
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), feed[0].CreatedAt)
}
