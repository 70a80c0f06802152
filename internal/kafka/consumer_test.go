package kafka

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	kf "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubReader always fails fetches until its context is canceled.
type stubReader struct {
	calls atomic.Int32
	err   error
}

func (s *stubReader) FetchMessage(ctx context.Context) (kf.Message, error) {
	s.calls.Add(1)
	if ctx.Err() != nil {
		return kf.Message{}, context.Canceled
	}
	return kf.Message{}, s.err
}

func (s *stubReader) CommitMessages(context.Context, ...kf.Message) error { return nil }

func (s *stubReader) Close() error { return nil }

func TestRunBacksOffOnPersistentFetchErrors(t *testing.T) {
	stub := &stubReader{err: errors.New("reader closed")}
	c := &Consumer{reader: stub, topic: "posts.created", backoff: 20 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, c.Run(ctx))

	calls := stub.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(2), "fetch retries after an error")
	assert.LessOrEqual(t, calls, int32(10), "fetch errors must wait out the backoff, not spin")
}

func TestRunReturnsOnCancel(t *testing.T) {
	stub := &stubReader{err: errors.New("boom")}
	c := &Consumer{reader: stub, topic: "posts.created", backoff: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, c.Run(ctx))
}
