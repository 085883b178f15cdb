package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	r.mu.Unlock()
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "record-changes")

	err := p.Publish(context.Background(),
		Event{Key: "1", Value: map[string]int{"a": 1}},
		Event{Key: "2", Value: []int{2}},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"a":1}`, string(w.msgs[0].Value))
	assert.JSONEq(t, `[2]`, string(w.msgs[1].Value))

	require.NoError(t, p.Publish(context.Background()))
}

func TestProducerPublishErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, "record-changes")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "1", Value: 1}))

	p = NewProducerWithWriter(&fakeWriter{}, "record-changes")
	assert.Error(t, p.Publish(context.Background(), Event{Key: "1", Value: make(chan int)}))
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		pending: []kafka.Message{
			{Key: []byte("ok"), Value: []byte(`1`)},
			{Key: []byte("ok"), Value: []byte(`2`)},
		},
		cancel: cancel,
	}
	var seen []string
	c := NewConsumerWithReader(r, "record-changes", func(_ context.Context, _, value []byte) error {
		seen = append(seen, string(value))
		return nil
	})

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"1", "2"}, seen)
	require.Len(t, r.committed, 2)
	assert.Equal(t, []byte(`2`), r.committed[1].Value)
	assert.True(t, r.closed)
}

func TestConsumerStopsOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		pending: []kafka.Message{
			{Key: []byte("ok"), Value: []byte(`1`)},
			{Key: []byte("bad"), Value: []byte(`2`), Offset: 1},
			{Key: []byte("ok"), Value: []byte(`3`), Offset: 2},
		},
		cancel: cancel,
	}
	var seen []string
	c := NewConsumerWithReader(r, "record-changes", func(_ context.Context, key, value []byte) error {
		seen = append(seen, string(value))
		if string(key) == "bad" {
			return errors.New("cannot handle")
		}
		return nil
	})

	err := c.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 1")
	assert.Equal(t, []string{"1", "2"}, seen)
	// the failed message and everything after it stay uncommitted
	require.Len(t, r.committed, 1)
	assert.Equal(t, []byte(`1`), r.committed[0].Value)
	assert.Len(t, r.pending, 1)
	assert.True(t, r.closed)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		IDs []int64 `json:"ids"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"ids":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.IDs)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}
