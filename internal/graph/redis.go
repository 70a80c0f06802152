package graph

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyFollowerFmt  = "timeline:follower:%s"
	keyFolloweeFmt  = "timeline:followee:%s"
	keyLastLoginFmt = "timeline:last_login:%s"
)

type redisGateway struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisGateway reads the graph from the redis keyspace shared with the
// graph-owning service: follower/followee sets plus a last-login timestamp
// (unix milliseconds) per user.
func NewRedisGateway(rdb *redis.Client) Gateway {
	return &redisGateway{rdb: rdb, now: time.Now}
}

// FollowerKey and friends are exported for tooling that seeds the graph.
func FollowerKey(userID string) string { return fmt.Sprintf(keyFollowerFmt, userID) }
func FolloweeKey(userID string) string { return fmt.Sprintf(keyFolloweeFmt, userID) }
func LastLoginKey(userID string) string { return fmt.Sprintf(keyLastLoginFmt, userID) }

func (g *redisGateway) CountFollowers(ctx context.Context, userID string) (int64, error) {
	n, err := g.rdb.SCard(ctx, FollowerKey(userID)).Result()
	if err != nil {
		return 0, &UnavailableError{Op: "count_followers", Err: err}
	}
	return n, nil
}

func (g *redisGateway) BatchCountFollowers(ctx context.Context, userIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	pipe := g.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.SCard(ctx, FollowerKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, &UnavailableError{Op: "batch_count_followers", Err: err}
	}
	for i, id := range userIDs {
		n, err := cmds[i].Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, &UnavailableError{Op: "batch_count_followers", Err: err}
		}
		out[id] = n
	}
	return out, nil
}

func (g *redisGateway) Followers(ctx context.Context, userID string) ([]string, error) {
	ids, err := g.rdb.SMembers(ctx, FollowerKey(userID)).Result()
	if err != nil {
		return nil, &UnavailableError{Op: "followers", Err: err}
	}
	return ids, nil
}

func (g *redisGateway) Followees(ctx context.Context, userID string) ([]string, error) {
	ids, err := g.rdb.SMembers(ctx, FolloweeKey(userID)).Result()
	if err != nil {
		return nil, &UnavailableError{Op: "followees", Err: err}
	}
	return ids, nil
}

func (g *redisGateway) LastLoginDays(ctx context.Context, userIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	pipe := g.rdb.Pipeline()
	gets := make([]*redis.StringCmd, len(userIDs))
	for i, id := range userIDs {
		gets[i] = pipe.Get(ctx, LastLoginKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, &UnavailableError{Op: "last_login_days", Err: err}
	}

	now := g.now()
	for i, id := range userIDs {
		v, err := gets[i].Result()
		if errors.Is(err, redis.Nil) {
			out[id] = UnknownLastLoginDays
			continue
		}
		if err != nil {
			return nil, &UnavailableError{Op: "last_login_days", Err: err}
		}
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			out[id] = UnknownLastLoginDays
			continue
		}
		// Negative when the recorded login is in the future; callers
		// treat that as active.
		days := int(now.Sub(time.UnixMilli(ms)) / (24 * time.Hour))
		out[id] = days
	}
	return out, nil
}
