package messaging

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	commitErr error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return kafka.Message{}, context.Canceled
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return r.commitErr
	}
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func messages(values ...string) []kafka.Message {
	out := make([]kafka.Message, len(values))
	for i, v := range values {
		out[i] = kafka.Message{Offset: int64(i), Value: []byte(v)}
	}
	return out
}

func TestConsumerCommitsEveryMessage(t *testing.T) {
	reader := &fakeReader{pending: messages("ok", "fail", "panic", "ok")}
	c := newConsumer(reader, "order.notifications", "test-group", testLogger())

	var seen []string
	err := c.Consume(context.Background(), func(_ context.Context, payload []byte) error {
		seen = append(seen, string(payload))
		switch string(payload) {
		case "fail":
			return errors.New("provider rejected")
		case "panic":
			panic("nil customer")
		}
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"ok", "fail", "panic", "ok"}, seen)
	assert.Equal(t, []int64{0, 1, 2, 3}, reader.committed)
}

func TestConsumerStopsOnCommitFailure(t *testing.T) {
	reader := &fakeReader{
		pending:   messages("a", "b"),
		commitErr: errors.New("group rebalancing"),
	}
	c := newConsumer(reader, "order.status", "test-group", testLogger())

	calls := 0
	err := c.Consume(context.Background(), func(context.Context, []byte) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit message")
	assert.Equal(t, 1, calls)
}
