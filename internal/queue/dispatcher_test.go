package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendia-app/agendia-platform/pkg/logging"
)

type fakeJobUpdater struct {
	mu        sync.Mutex
	completed map[uuid.UUID]int
	failed    map[uuid.UUID]string
	pending   map[uuid.UUID]Payload
	cancelled map[uuid.UUID]bool
}

func newFakeJobUpdater() *fakeJobUpdater {
	return &fakeJobUpdater{
		completed: make(map[uuid.UUID]int),
		failed:    make(map[uuid.UUID]string),
		pending:   make(map[uuid.UUID]Payload),
		cancelled: make(map[uuid.UUID]bool),
	}
}

func (f *fakeJobUpdater) PutPending(ctx context.Context, p Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[p.JobID] = p
	return nil
}

func (f *fakeJobUpdater) MarkCompleted(ctx context.Context, jobID uuid.UUID, attempts int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[jobID] = attempts
	return nil
}

func (f *fakeJobUpdater) MarkFailed(ctx context.Context, jobID uuid.UUID, attempts int, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[jobID] = errMsg
	return nil
}

func (f *fakeJobUpdater) IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[jobID], nil
}

func (f *fakeJobUpdater) completedAttempts(jobID uuid.UUID) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.completed[jobID]
	return n, ok
}

func (f *fakeJobUpdater) failedMessage(jobID uuid.UUID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.failed[jobID]
	return msg, ok
}

// flakyHandler fails the first failures invocations, then succeeds.
type flakyHandler struct {
	mu       sync.Mutex
	failures int
	attempts []int
	done     chan struct{}
	want     int
}

func newFlakyHandler(failures, wantCalls int) *flakyHandler {
	return &flakyHandler{failures: failures, want: wantCalls, done: make(chan struct{})}
}

func (h *flakyHandler) handle(ctx context.Context, job Payload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, job.Attempt)
	if len(h.attempts) == h.want {
		close(h.done)
	}
	if len(h.attempts) <= h.failures {
		return errors.New("transient failure")
	}
	return nil
}

func (h *flakyHandler) calls() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int, len(h.attempts))
	copy(out, h.attempts)
	return out
}

func waitFor(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for handler calls")
	}
}

func testPayload() Payload {
	return Payload{
		JobID:          uuid.New(),
		CompanyID:      uuid.New(),
		SubjectAddress: "+5511999990000",
		RawText:        "quero marcar um corte",
		ReceivedAt:     time.Now().UTC(),
		Attempt:        1,
	}
}

func enqueue(t *testing.T, q Client, p Payload) {
	t.Helper()
	body, err := p.Encode()
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), body))
}

func TestDispatcherRetriesUntilSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(16)
	jobs := newFakeJobUpdater()
	handler := newFlakyHandler(2, 3)

	d := NewDispatcher(q, handler.handle, jobs, logging.New("error"), nil,
		WithWorkerCount(2),
		WithRetryBaseDelay(time.Millisecond),
		WithReceiveWaitSeconds(1),
	)
	d.Start(ctx)

	p := testPayload()
	enqueue(t, q, p)

	waitFor(t, handler.done, 5*time.Second)
	cancel()
	d.Wait()

	assert.Equal(t, []int{1, 2, 3}, handler.calls())
	attempts, ok := jobs.completedAttempts(p.JobID)
	require.True(t, ok)
	assert.Equal(t, 3, attempts)
	_, failed := jobs.failedMessage(p.JobID)
	assert.False(t, failed)
}

func TestDispatcherDropsCancelledJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(16)
	jobs := newFakeJobUpdater()
	cancelledJob := testPayload()
	jobs.cancelled[cancelledJob.JobID] = true

	// The second job proves the worker keeps consuming past the dropped one.
	handler := newFlakyHandler(0, 1)
	d := NewDispatcher(q, handler.handle, jobs, logging.New("error"), nil,
		WithWorkerCount(1),
		WithReceiveWaitSeconds(1),
	)
	d.Start(ctx)

	enqueue(t, q, cancelledJob)
	live := testPayload()
	enqueue(t, q, live)

	waitFor(t, handler.done, 5*time.Second)
	cancel()
	d.Wait()

	assert.Equal(t, []int{1}, handler.calls())
	_, completed := jobs.completedAttempts(cancelledJob.JobID)
	assert.False(t, completed, "cancelled job must never reach the handler or complete")
	_, ok := jobs.completedAttempts(live.JobID)
	assert.True(t, ok)
}

func TestDispatcherDeadLettersAfterMaxAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(16)
	jobs := newFakeJobUpdater()
	// Always fails; the third attempt is the last.
	handler := newFlakyHandler(10, 3)

	d := NewDispatcher(q, handler.handle, jobs, logging.New("error"), nil,
		WithWorkerCount(1),
		WithRetryBaseDelay(time.Millisecond),
		WithReceiveWaitSeconds(1),
	)
	d.Start(ctx)

	p := testPayload()
	enqueue(t, q, p)

	waitFor(t, handler.done, 5*time.Second)
	// Give a potential fourth attempt room to (wrongly) happen.
	time.Sleep(50 * time.Millisecond)
	cancel()
	d.Wait()

	assert.Equal(t, []int{1, 2, 3}, handler.calls())
	msg, ok := jobs.failedMessage(p.JobID)
	require.True(t, ok)
	assert.Equal(t, "transient failure", msg)
	_, completed := jobs.completedAttempts(p.JobID)
	assert.False(t, completed)
}

func TestDispatcherDropsUndecodableMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryQueue(16)
	jobs := newFakeJobUpdater()
	called := make(chan struct{}, 1)

	d := NewDispatcher(q, func(ctx context.Context, job Payload) error {
		called <- struct{}{}
		return nil
	}, jobs, logging.New("error"), nil,
		WithWorkerCount(1),
		WithReceiveWaitSeconds(1),
	)
	d.Start(ctx)

	require.NoError(t, q.Send(ctx, "not json"))

	select {
	case <-called:
		t.Fatal("handler invoked for undecodable message")
	case <-time.After(200 * time.Millisecond):
	}
	cancel()
	d.Wait()
}

func TestPublisherRecordsPendingAndEnqueues(t *testing.T) {
	q := NewMemoryQueue(16)
	jobs := newFakeJobUpdater()
	pub := NewPublisher(q, jobs, logging.New("error"))

	companyID := uuid.New()
	jobID, err := pub.Publish(context.Background(), companyID, "+5511988887777", "oi", map[string]string{"channel": "whatsapp"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, jobID)

	jobs.mu.Lock()
	pending, ok := jobs.pending[jobID]
	jobs.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, companyID, pending.CompanyID)
	assert.Equal(t, 1, pending.Attempt)

	msgs, err := q.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	decoded, err := DecodePayload(msgs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, jobID, decoded.JobID)
	assert.Equal(t, "oi", decoded.RawText)
	assert.Equal(t, "whatsapp", decoded.Metadata["channel"])
}

func TestPublisherRejectsMissingFields(t *testing.T) {
	pub := NewPublisher(NewMemoryQueue(1), newFakeJobUpdater(), logging.New("error"))

	_, err := pub.Publish(context.Background(), uuid.Nil, "+55119", "oi", nil)
	assert.Error(t, err)

	_, err = pub.Publish(context.Background(), uuid.New(), "", "oi", nil)
	assert.Error(t, err)
}

func TestMemoryQueueDelayedSend(t *testing.T) {
	q := NewMemoryQueue(4)
	require.NoError(t, q.SendDelayed(context.Background(), "later", 20*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msgs, err := q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "later", msgs[0].Body)
}

func TestMemoryQueueDelayedSendSurvivesFullBuffer(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Send(context.Background(), "first"))
	require.NoError(t, q.SendDelayed(context.Background(), "retry", 5*time.Millisecond))

	// Let the timer fire while the buffer is still full.
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msgs, err := q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Body)

	msgs, err = q.Receive(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "retry", msgs[0].Body)
}
