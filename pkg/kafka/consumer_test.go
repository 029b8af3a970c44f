package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type recordingDLQ struct {
	mu   sync.Mutex
	msgs []kafka.Message
	errs []error
}

func (d *recordingDLQ) Publish(_ context.Context, msg kafka.Message, lastErr error, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	d.errs = append(d.errs, lastErr)
	return nil
}

func eventMessage(t *testing.T, topic string) kafka.Message {
	t.Helper()
	event, err := NewEvent("order.paid", "ord-1", "order", "storefront", orderPaid{OrderID: "ord-1"})
	require.NoError(t, err)
	raw, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Key: []byte("ord-1"), Value: raw, Offset: 7}
}

func newTestConsumer(reader *fakeReader, handler Handler, dlq DeadLetterPublisher, group string) *Consumer {
	return &Consumer{
		reader: reader,
		cfg: ConsumerConfig{
			GroupID:      group,
			MaxAttempts:  3,
			RetryBackoff: time.Millisecond,
		},
		handler: handler,
		dlq:     dlq,
		logger:  newTestLogger(),
	}
}

func runUntilCommitted(t *testing.T, c *Consumer, reader *fakeReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return reader.commits() >= want }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, reader.closed)
}

func TestConsumer_CommitsAfterSuccess(t *testing.T) {
	topic := "test.consumer.success"
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, topic)}}

	var seen atomic.Int32
	c := newTestConsumer(reader, func(_ context.Context, e *Event) error {
		assert.Equal(t, "order.paid", e.EventType)
		seen.Add(1)
		return nil
	}, nil, "g-success")

	runUntilCommitted(t, c, reader, 1)

	assert.Equal(t, int32(1), seen.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(ConsumerMessagesProcessed.WithLabelValues(topic, "g-success")))
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	topic := "test.consumer.retry"
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, topic)}}
	dlq := &recordingDLQ{}

	var calls atomic.Int32
	c := newTestConsumer(reader, func(context.Context, *Event) error {
		if calls.Add(1) < 3 {
			return errors.New("database busy")
		}
		return nil
	}, dlq, "g-retry")

	runUntilCommitted(t, c, reader, 1)

	assert.Equal(t, int32(3), calls.Load())
	assert.Empty(t, dlq.msgs)
}

func TestConsumer_DeadLettersAfterAllAttempts(t *testing.T) {
	topic := "test.consumer.dlq"
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, topic)}}
	dlq := &recordingDLQ{}

	c := newTestConsumer(reader, func(context.Context, *Event) error {
		return errors.New("constraint violation")
	}, dlq, "g-dlq")

	runUntilCommitted(t, c, reader, 1)

	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, int64(7), dlq.msgs[0].Offset)
	assert.EqualError(t, dlq.errs[0], "constraint violation")
	assert.Equal(t, float64(1), testutil.ToFloat64(ConsumerDLQPublished.WithLabelValues(topic, "g-dlq")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ConsumerMessagesFailed.WithLabelValues(topic, "g-dlq")))
}

func TestConsumer_UndecodableMessageGoesToDLQ(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Topic: "test.consumer.garbage", Value: []byte("garbage")}}}
	dlq := &recordingDLQ{}

	var called atomic.Bool
	c := newTestConsumer(reader, func(context.Context, *Event) error {
		called.Store(true)
		return nil
	}, dlq, "g-garbage")

	runUntilCommitted(t, c, reader, 1)

	assert.False(t, called.Load())
	require.Len(t, dlq.msgs, 1)
}

func TestConsumer_CanceledDuringRetryDoesNotCommit(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{eventMessage(t, "test.consumer.cancel")}}
	c := newTestConsumer(reader, func(context.Context, *Event) error {
		return errors.New("down")
	}, nil, "g-cancel")
	c.cfg.RetryBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, reader.commits())
}
