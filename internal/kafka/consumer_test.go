package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/fanout"
	"github.com/RaikyD/isp-order-intake/internal/repository"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeReader hands out queued messages, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.msgs) > 0 {
		m := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

type scriptedProcessor struct {
	mu    sync.Mutex
	errs  map[uuid.UUID][]error
	calls map[uuid.UUID]int
}

func (p *scriptedProcessor) ProcessByID(_ context.Context, id uuid.UUID) (fanout.Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[id]++
	if q := p.errs[id]; len(q) > 0 {
		p.errs[id] = q[1:]
		return fanout.Report{}, q[0]
	}
	return fanout.Report{SubmissionID: id}, nil
}

func message(t *testing.T, offset int64, id uuid.UUID) kafka.Message {
	t.Helper()
	b, err := json.Marshal(SubmissionMessage{SubmissionID: id, RequestID: "req"})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(id.String()), Value: b}
}

func TestConsume(t *testing.T) {
	defer goleak.VerifyNone(t)

	ok, flaky, gone := uuid.New(), uuid.New(), uuid.New()
	r := &fakeReader{msgs: []kafka.Message{
		message(t, 1, ok),
		{Offset: 2, Value: []byte("not json")},
		message(t, 3, flaky),
		message(t, 4, gone),
	}}
	p := &scriptedProcessor{
		errs: map[uuid.UUID][]error{
			flaky: {errors.New("db timeout"), errors.New("db timeout")},
			gone:  {repository.ErrNotClaimable},
		},
		calls: map[uuid.UUID]int{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(ctx, r, p, time.Millisecond)
	}()

	require.Eventually(t, func() bool { return len(r.commits()) == 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int64{1, 2, 3, 4}, r.commits())
	assert.Equal(t, 3, p.calls[flaky])
	assert.Equal(t, 1, p.calls[gone])
	assert.True(t, r.closed)
}

func TestConsume_StopsWhileRetrying(t *testing.T) {
	defer goleak.VerifyNone(t)

	id := uuid.New()
	r := &fakeReader{msgs: []kafka.Message{message(t, 7, id)}}
	errs := make([]error, 1000)
	for i := range errs {
		errs[i] = errors.New("still down")
	}
	p := &scriptedProcessor{errs: map[uuid.UUID][]error{id: errs}, calls: map[uuid.UUID]int{}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(ctx, r, p, 5*time.Millisecond)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Empty(t, r.commits())
}
