package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyFeedFmt = "timeline:feed:%s:%s"
	keyPostFmt = "timeline:post:%s"

	// tieSteps bounds how many same-millisecond appends keep distinct
	// ranks; 1/2048 increments stay exactly representable in a float64
	// score at millisecond magnitudes.
	tieSteps = 2048
)

// record is the metadata blob stored once per post, resolved on read.
type record struct {
	PostID    string          `json:"post_id"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type redisStore struct {
	rdb     *redis.Client
	metaTTL time.Duration

	mu     sync.Mutex
	lastMs int64
	seq    int64
}

// NewRedisStore returns the canonical ranked-index store: one sorted set per
// feed scored by creation time, one metadata record per post expiring after
// metaTTL.
func NewRedisStore(rdb *redis.Client, metaTTL time.Duration) Store {
	return &redisStore{rdb: rdb, metaTTL: metaTTL}
}

func feedKey(k Key) string     { return fmt.Sprintf(keyFeedFmt, k.Kind, k.OwnerID) }
func postKey(id string) string { return fmt.Sprintf(keyPostFmt, id) }

// score ranks entries by creation time at millisecond granularity. Ties in
// the same millisecond get a fractional per-process sequence (k/2048) so
// same-timestamp appends keep call order. The sequence restarts whenever
// the observed millisecond changes and saturates at the top step instead of
// wrapping, so a later append never sorts below an earlier one; the
// fraction stays under one millisecond, so entries with distinct timestamps
// are never reordered.
func (s *redisStore) score(createdAt time.Time) float64 {
	ms := createdAt.UnixMilli()
	s.mu.Lock()
	if ms != s.lastMs {
		s.lastMs = ms
		s.seq = 0
	} else if s.seq < tieSteps-1 {
		s.seq++
	}
	frac := float64(s.seq) / tieSteps
	s.mu.Unlock()
	return float64(ms) + frac
}

func (s *redisStore) Append(ctx context.Context, key Key, e Entry, limit int64) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(record{PostID: e.PostID, Meta: e.Meta, CreatedAt: e.CreatedAt})
	if err != nil {
		return &WriteError{Key: key, Err: err}
	}

	fk := feedKey(key)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, postKey(e.PostID), b, s.metaTTL)
	pipe.ZAdd(ctx, fk, redis.Z{Score: s.score(e.CreatedAt), Member: e.PostID})
	if limit > 0 {
		// Trim against the post-insert size: keep only the top limit
		// entries by rank, evicting the oldest.
		pipe.ZRemRangeByRank(ctx, fk, 0, -(limit + 1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

func (s *redisStore) Read(ctx context.Context, key Key) ([]Entry, error) {
	ids, err := s.rdb.ZRange(ctx, feedKey(key), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, &ReadError{Key: key, Err: err}
	}
	return s.resolve(ctx, key, ids)
}

func (s *redisStore) BatchRead(ctx context.Context, keys []Key) (map[Key][]Entry, error) {
	out := make(map[Key][]Entry, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	// One round trip for every ranked index; per-key results come back
	// independently, so one key never waits on another.
	pipe := s.rdb.Pipeline()
	cmds := make(map[Key]*redis.StringSliceCmd, len(keys))
	for _, k := range keys {
		cmds[k] = pipe.ZRange(ctx, feedKey(k), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, &ReadError{Err: err}
	}

	idsByKey := make(map[Key][]string, len(keys))
	for _, k := range keys {
		ids, err := cmds[k].Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, &ReadError{Key: k, Err: err}
		}
		idsByKey[k] = ids
	}

	// One more round trip resolves metadata for the whole batch, deduped
	// across keys, never per key.
	mpipe := s.rdb.Pipeline()
	gets := make(map[string]*redis.StringCmd)
	for _, k := range keys {
		for _, id := range idsByKey[k] {
			if _, ok := gets[id]; !ok {
				gets[id] = mpipe.Get(ctx, postKey(id))
			}
		}
	}
	if len(gets) > 0 {
		if _, err := mpipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, &ReadError{Err: err}
		}
	}

	recs := make(map[string]record, len(gets))
	for _, k := range keys {
		ids := idsByKey[k]
		entries := make([]Entry, 0, len(ids))
		for _, id := range ids {
			rec, ok := recs[id]
			if !ok {
				var err error
				rec, err = decodeRecord(gets[id], id)
				if err != nil {
					return nil, &ReadError{Key: k, Err: err}
				}
				recs[id] = rec
			}
			entries = append(entries, Entry{PostID: rec.PostID, Meta: rec.Meta, CreatedAt: rec.CreatedAt})
		}
		out[k] = entries
	}
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, key Key, postID string) error {
	if err := s.rdb.ZRem(ctx, feedKey(key), postID).Err(); err != nil {
		return &WriteError{Key: key, Err: err}
	}
	return nil
}

// resolve turns an ordered id list into entries via one batched metadata
// lookup. A post surviving in the index without its metadata record fails
// the whole read unit rather than being silently dropped.
func (s *redisStore) resolve(ctx context.Context, key Key, ids []string) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.rdb.Pipeline()
	gets := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		gets[i] = pipe.Get(ctx, postKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, &ReadError{Key: key, Err: err}
	}

	entries := make([]Entry, 0, len(ids))
	for i, id := range ids {
		rec, err := decodeRecord(gets[i], id)
		if err != nil {
			return nil, &ReadError{Key: key, Err: err}
		}
		entries = append(entries, Entry{PostID: rec.PostID, Meta: rec.Meta, CreatedAt: rec.CreatedAt})
	}
	return entries, nil
}

func decodeRecord(cmd *redis.StringCmd, id string) (record, error) {
	b, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return record{}, fmt.Errorf("metadata missing for post %s", id)
	}
	if err != nil {
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return record{}, fmt.Errorf("metadata for post %s: %w", id, err)
	}
	return rec, nil
}
