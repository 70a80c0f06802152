package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppPort string

	RedisHost string
	RedisPort string
	RedisPass string

	// Timeline policy, fixed for the lifetime of the process.
	CelebrityFollowerThreshold int64
	InactiveDayThreshold       int
	MaxRecommendLength         int64
	FanoutWorkers              int
	PostMetaTTL                time.Duration

	KafkaBootstrapServers string
	KafkaGroupID          string
	PostsTopic            string
}

func LoadConfig() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", ":8083"),

		RedisHost: getEnv("REDIS_HOST", "localhost"),
		RedisPort: getEnv("REDIS_PORT", "6379"),
		RedisPass: getEnv("REDIS_PASS", ""),

		CelebrityFollowerThreshold: int64(atoiDef(os.Getenv("CELEBRITY_FOLLOWER_THRESHOLD"), 1000)),
		InactiveDayThreshold:       atoiDef(os.Getenv("INACTIVE_DAY_THRESHOLD"), 7),
		MaxRecommendLength:         int64(atoiDef(os.Getenv("MAX_RECOMMEND_LENGTH"), 800)),
		FanoutWorkers:              atoiDef(os.Getenv("FANOUT_WORKERS"), 16),
		PostMetaTTL:                time.Duration(atoiDef(os.Getenv("POST_META_TTL_HOURS"), 720)) * time.Hour,

		KafkaBootstrapServers: getEnv("KAFKA_BOOTSTRAP_SERVERS", "kafka:9092"),
		KafkaGroupID:          getEnv("KAFKA_GROUP_ID", "timeline-service"),
		PostsTopic:            getEnv("POSTS_TOPIC", "posts.created"),
	}
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func atoiDef(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
