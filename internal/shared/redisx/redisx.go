package redisx

import (
	"github.com/redis/go-redis/v9"

	"github.com/wirelessr/twitter-timeline-facade/configs"
)

func Open(cfg *configs.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPass,
	})
}
