package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"

	"github.com/wirelessr/twitter-timeline-facade/configs"
	"github.com/wirelessr/twitter-timeline-facade/internal/graph"
	"github.com/wirelessr/twitter-timeline-facade/internal/shared/jwt"
	"github.com/wirelessr/twitter-timeline-facade/internal/shared/redisx"
)

// Seeds a local environment: a fake social graph straight into redis, then
// a burst of posts through the HTTP API so both the push and pull paths get
// exercised.
func main() {
	gofakeit.Seed(time.Now().UnixNano())

	cfg := configs.LoadConfig()
	apiURL := getenv("API_URL", "http://localhost:8083")
	users := atoiDef(os.Getenv("SEED_USERS"), 50)
	postsPerUser := atoiDef(os.Getenv("SEED_POSTS_PER_USER"), 3)

	rdb := redisx.Open(cfg)
	defer rdb.Close()

	ctx := context.Background()

	ids := make([]string, users)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", gofakeit.Username(), i)
	}

	// First user becomes a celebrity: everyone follows them, which pushes
	// the count past the threshold when SEED_USERS exceeds it (lower
	// CELEBRITY_FOLLOWER_THRESHOLD locally to see the pull path).
	celebrity := ids[0]
	for _, id := range ids[1:] {
		follow(ctx, rdb, id, celebrity)
	}

	// Everyone else follows a handful of random ordinary users.
	for _, id := range ids {
		for n := 0; n < 5; n++ {
			other := ids[1+rand.IntN(users-1)]
			if other != id {
				follow(ctx, rdb, id, other)
			}
		}
	}

	// Most users logged in recently; roughly a fifth went stale.
	for _, id := range ids {
		last := time.Now().Add(-time.Duration(rand.IntN(5)) * 24 * time.Hour)
		if rand.IntN(5) == 0 {
			last = time.Now().Add(-time.Duration(10+rand.IntN(30)) * 24 * time.Hour)
		}
		if err := rdb.Set(ctx, graph.LastLoginKey(id), last.UnixMilli(), 0).Err(); err != nil {
			log.Fatalf("set last login: %v", err)
		}
	}
	log.Printf("seeded graph: %d users, celebrity=%s", users, celebrity)

	client := &http.Client{Timeout: 5 * time.Second}
	for _, id := range ids {
		tok, err := jwt.Sign(id, time.Hour)
		if err != nil {
			log.Fatalf("sign token: %v", err)
		}
		for n := 0; n < postsPerUser; n++ {
			createPost(client, apiURL, tok, id)
		}
	}
	log.Printf("seeded %d posts", users*postsPerUser)
}

func follow(ctx context.Context, rdb *redis.Client, follower, followee string) {
	if err := rdb.SAdd(ctx, graph.FollowerKey(followee), follower).Err(); err != nil {
		log.Fatalf("add follower: %v", err)
	}
	if err := rdb.SAdd(ctx, graph.FolloweeKey(follower), followee).Err(); err != nil {
		log.Fatalf("add followee: %v", err)
	}
}

func createPost(client *http.Client, apiURL, token, authorID string) {
	body, _ := json.Marshal(map[string]any{
		"meta": map[string]string{"text": gofakeit.Sentence(8)},
	})
	req, err := http.NewRequest(http.MethodPost, apiURL+"/posts", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		log.Printf("post as %s: %v", authorID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Printf("post as %s: status %d", authorID, resp.StatusCode)
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func atoiDef(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
