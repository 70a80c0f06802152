package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	kf "github.com/segmentio/kafka-go"

	"github.com/wirelessr/twitter-timeline-facade/internal/timeline"
)

// PostEvent is the posts.created payload published by the post service.
type PostEvent struct {
	PostID    string          `json:"post_id"`
	AuthorID  string          `json:"author_id"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type reader interface {
	FetchMessage(ctx context.Context) (kf.Message, error)
	CommitMessages(ctx context.Context, msgs ...kf.Message) error
	Close() error
}

type Consumer struct {
	reader  reader
	engine  *timeline.Engine
	topic   string
	backoff time.Duration
}

func NewConsumer(bootstrap, topic, groupID string, engine *timeline.Engine) *Consumer {
	return &Consumer{
		reader: kf.NewReader(kf.ReaderConfig{
			Brokers:        strings.Split(bootstrap, ","),
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10 << 20,
			StartOffset:    kf.FirstOffset,
			CommitInterval: time.Second,
		}),
		engine:  engine,
		topic:   topic,
		backoff: time.Second,
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }

// Run consumes post events until the context is canceled. Malformed
// payloads are committed and skipped; a failed fan-out leaves the message
// uncommitted so it is redelivered. Fetch errors back off before retrying
// so a broken reader does not busy-loop.
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("kafka consumer started topic=%s", c.topic)
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Printf("kafka fetch: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		var ev PostEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Printf("kafka: bad payload: %v (key=%s)", err, string(m.Key))
			_ = c.reader.CommitMessages(ctx, m)
			continue
		}

		report, err := c.engine.Post(ctx, timeline.Post{
			ID:        ev.PostID,
			AuthorID:  ev.AuthorID,
			Meta:      ev.Meta,
			CreatedAt: ev.CreatedAt,
		})
		if err != nil {
			log.Printf("handle post event %s: %v", ev.PostID, err)
			continue
		}
		for _, f := range report.Failed() {
			log.Printf("fanout %s -> %s: %v", ev.PostID, f.FollowerID, f.Err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("kafka commit: %v", err)
		}
	}
}
