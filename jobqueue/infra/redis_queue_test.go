package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"security-gateway/jobqueue/domain"
	"security-gateway/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type queueFixture struct {
	q      *RedisQueue
	mr     *miniredis.Miniredis
	clock  *fakeClock
	signer *Signer
	sink   *logging.MemorySink
	log    *logging.Logger
}

func newQueueFixture(t *testing.T, opts ...QueueOption) *queueFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	signer, err := NewSigner([]byte("test-secret"), WithSignerClock(clock.Now))
	require.NoError(t, err)

	sink := logging.NewMemorySink()
	log := logging.New(logging.Config{Sinks: []logging.Sink{sink}})

	base := []QueueOption{WithQueueClock(clock.Now), WithLogger(log), WithDequeueTimeout(time.Second)}
	q := NewRedisQueue(rdb, signer, append(base, opts...)...)
	return &queueFixture{q: q, mr: mr, clock: clock, signer: signer, sink: sink, log: log}
}

func (f *queueFixture) payload(requestID, jobType string) domain.Payload {
	return domain.NewPayload(requestID, f.signer.GenerateJobToken(requestID, jobType), map[string]any{"format": "json"})
}

func (f *queueFixture) events(t *testing.T, event string) []logging.Entry {
	t.Helper()
	require.NoError(t, f.log.Flush(context.Background()))
	return f.sink.ByEvent(event)
}

func TestRedisQueue_ExportScenario(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_export", f.payload("req-1", "data_export"), domain.WithUserID("user-9"))
	require.NoError(t, err)
	require.True(t, f.mr.Exists(JobKey(id)))
	assert.Equal(t, DefaultJobTTL, f.mr.TTL(JobKey(id)))

	job, err := f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, domain.StatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, domain.DefaultMaxAttempts, job.MaxAttempts)
	assert.Equal(t, "user-9", job.UserID)
	assert.Equal(t, "json", job.Payload.String("format"))

	processing, err := f.mr.List(ProcessingKey("data_export"))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, processing)

	require.NoError(t, f.q.CompleteJob(ctx, id))

	got, err := f.q.GetJobStatus(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, DefaultAuditTTL, f.mr.TTL(JobKey(id)))
	assert.False(t, f.mr.Exists(ProcessingKey("data_export")))

	assert.Len(t, f.events(t, "job_completed"), 1)
}

func TestRedisQueue_EnqueueRequiresRequestIDAndToken(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	_, err := f.q.Enqueue(ctx, "data_export", domain.Payload{domain.PayloadJobToken: "x"})
	assert.ErrorIs(t, err, domain.ErrMissingRequestID)

	_, err = f.q.Enqueue(ctx, "data_export", domain.Payload{domain.PayloadRequestID: "req"})
	assert.ErrorIs(t, err, domain.ErrMissingJobToken)

	_, err = f.q.Enqueue(ctx, "", f.payload("req", ""))
	assert.ErrorIs(t, err, domain.ErrEmptyJobType)

	assert.Empty(t, f.mr.Keys())
}

func TestRedisQueue_TamperedTokenIsDiscardedOnce(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	forger, err := NewSigner([]byte("not-the-secret"))
	require.NoError(t, err)
	payload := domain.NewPayload("req-evil", forger.GenerateJobToken("req-evil", "data_deletion"), nil)

	id, err := f.q.Enqueue(ctx, "data_deletion", payload)
	require.NoError(t, err)

	job, err := f.q.Dequeue(ctx, "data_deletion")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.False(t, f.mr.Exists(JobKey(id)))
	assert.False(t, f.mr.Exists(ProcessingKey("data_deletion")))

	events := f.events(t, "malicious_request")
	require.Len(t, events, 1)
	assert.Equal(t, logging.SeverityCritical, events[0].Severity)
	assert.True(t, events[0].HasTag("security"))
	assert.Empty(t, f.sink.ByEvent("job_record_corrupt"))
}

func TestRedisQueue_TokenBoundToJobType(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	// token válido para export reaproveitado num job de deleção
	_, err := f.q.Enqueue(ctx, "data_deletion", f.payload("req-1", "data_export"))
	require.NoError(t, err)

	job, err := f.q.Dequeue(ctx, "data_deletion")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Len(t, f.events(t, "malicious_request"), 1)
}

func TestRedisQueue_ExpiredJobDiscardedWithoutAttempt(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_export", f.payload("req-1", "data_export"))
	require.NoError(t, err)

	f.clock.Advance(DefaultJobTTL + time.Minute)

	job, err := f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.False(t, f.mr.Exists(JobKey(id)))
	assert.False(t, f.mr.Exists(ProcessingKey("data_export")))
	assert.Empty(t, f.events(t, "malicious_request"))
}

func TestRedisQueue_FailJobRequeuesThenFails(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_export", f.payload("req-1", "data_export"), domain.WithMaxAttempts(2))
	require.NoError(t, err)

	job, err := f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, f.q.FailJob(ctx, id, errors.New("s3 timeout")))

	got, err := f.q.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, "s3 timeout", got.LastError)
	pending, err := f.mr.List(PendingKey("data_export"))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, pending)
	assert.False(t, f.mr.Exists(ProcessingKey("data_export")))

	job, err = f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	require.NoError(t, f.q.FailJob(ctx, id, errors.New("s3 timeout")))

	got, err = f.q.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.FailedAt)
	assert.Equal(t, DefaultJobTTL, f.mr.TTL(JobKey(id)))
	assert.False(t, f.mr.Exists(PendingKey("data_export")))
	assert.False(t, f.mr.Exists(ProcessingKey("data_export")))

	assert.Len(t, f.events(t, "job_requeued"), 1)
	failed := f.sink.ByEvent("job_failed")
	require.Len(t, failed, 1)
	assert.Equal(t, logging.LevelError, failed[0].Level)
}

func TestRedisQueue_CompleteUnknownJob(t *testing.T) {
	f := newQueueFixture(t)
	err := f.q.CompleteJob(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	job, err := f.q.GetJobStatus(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRedisQueue_CorruptRecord(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mr.Set(JobKey("bad"), "{not json"))
	f.mr.Lpush(PendingKey("data_export"), "bad")

	job, err := f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.False(t, f.mr.Exists(JobKey("bad")))

	corrupt := f.events(t, "job_record_corrupt")
	require.Len(t, corrupt, 1)
	assert.Equal(t, logging.LevelError, corrupt[0].Level)
	assert.False(t, corrupt[0].HasTag("security"))
	assert.Empty(t, f.sink.ByEvent("malicious_request"))
}

func TestRedisQueue_MissingRecordDropped(t *testing.T) {
	f := newQueueFixture(t)
	f.mr.Lpush(PendingKey("data_export"), "ghost")

	job, err := f.q.Dequeue(context.Background(), "data_export")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.False(t, f.mr.Exists(ProcessingKey("data_export")))
}

func TestRedisQueue_DequeueTimeout(t *testing.T) {
	f := newQueueFixture(t)
	job, err := f.q.Dequeue(context.Background(), "data_export")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRedisQueue_CleanupExpiredJobs(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	old, err := f.q.Enqueue(ctx, "data_export", f.payload("req-old", "data_export"))
	require.NoError(t, err)
	f.clock.Advance(23 * time.Hour)
	fresh, err := f.q.Enqueue(ctx, "data_export", f.payload("req-new", "data_export"))
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	n, err := f.q.CleanupExpiredJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.mr.Exists(JobKey(old)))
	assert.True(t, f.mr.Exists(JobKey(fresh)))

	pending, err := f.mr.List(PendingKey("data_export"))
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, pending)
}

func TestRedisQueue_CompletedJobSurvivesCleanup(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_export", f.payload("req-1", "data_export"))
	require.NoError(t, err)
	_, err = f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	require.NoError(t, f.q.CompleteJob(ctx, id))

	f.clock.Advance(48 * time.Hour)
	n, err := f.q.CleanupExpiredJobs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, f.mr.Exists(JobKey(id)))
}

func TestRedisQueue_RecoverStuckJobs(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_export", f.payload("req-1", "data_export"))
	require.NoError(t, err)
	_, err = f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)

	n, err := f.q.RecoverStuckJobs(ctx, "data_export", 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n, "job still within visibility timeout")

	f.clock.Advance(10 * time.Minute)
	n, err = f.q.RecoverStuckJobs(ctx, "data_export", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.q.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.False(t, f.mr.Exists(ProcessingKey("data_export")))

	job, err := f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
}

func TestRedisQueue_StoreErrorsPropagate(t *testing.T) {
	f := newQueueFixture(t)
	f.mr.Close()

	_, err := f.q.Enqueue(context.Background(), "data_export", f.payload("req-1", "data_export"))
	assert.Error(t, err)

	_, err = f.q.Dequeue(context.Background(), "data_export")
	assert.Error(t, err)
}

func TestRedisQueue_LateCompleteAfterRecoveryIsRejected(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_deletion", f.payload("req-1", "data_deletion"))
	require.NoError(t, err)
	_, err = f.q.Dequeue(ctx, "data_deletion")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	n, err := f.q.RecoverStuckJobs(ctx, "data_deletion", 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// worker lento termina depois que o job voltou para a fila
	err = f.q.CompleteJob(ctx, id)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := f.q.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)

	// a nova entrega conclui e o job não é entregue de novo
	job, err := f.q.Dequeue(ctx, "data_deletion")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
	require.NoError(t, f.q.CompleteJob(ctx, id))

	job, err = f.q.Dequeue(ctx, "data_deletion")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Len(t, f.events(t, "job_completed"), 1)
}

func TestRedisQueue_CompletedJobIsTerminal(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_deletion", f.payload("req-1", "data_deletion"))
	require.NoError(t, err)
	_, err = f.q.Dequeue(ctx, "data_deletion")
	require.NoError(t, err)
	require.NoError(t, f.q.CompleteJob(ctx, id))

	assert.ErrorIs(t, f.q.FailJob(ctx, id, errors.New("late")), domain.ErrInvalidTransition)
	assert.ErrorIs(t, f.q.CompleteJob(ctx, id), domain.ErrInvalidTransition)

	got, err := f.q.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, f.mr.Exists(PendingKey("data_deletion")))

	job, err := f.q.Dequeue(ctx, "data_deletion")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRedisQueue_DoubleFailPushesOnce(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_export", f.payload("req-1", "data_export"))
	require.NoError(t, err)
	_, err = f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)

	require.NoError(t, f.q.FailJob(ctx, id, errors.New("timeout")))
	assert.ErrorIs(t, f.q.FailJob(ctx, id, errors.New("timeout")), domain.ErrInvalidTransition)

	pending, err := f.mr.List(PendingKey("data_export"))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, pending)
	assert.Len(t, f.events(t, "job_requeued"), 1)
}

func TestRedisQueue_StaleQueueEntrySkipped(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_export", f.payload("req-1", "data_export"))
	require.NoError(t, err)
	_, err = f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	require.NoError(t, f.q.CompleteJob(ctx, id))

	// id duplicado deixado na fila
	f.mr.Lpush(PendingKey("data_export"), id)

	job, err := f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.False(t, f.mr.Exists(ProcessingKey("data_export")))

	got, err := f.q.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Len(t, f.events(t, "job_stale_entry"), 1)
}

func TestRedisQueue_RequeueRefreshesExpiry(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	id, err := f.q.Enqueue(ctx, "data_export", f.payload("req-1", "data_export"))
	require.NoError(t, err)
	_, err = f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)

	f.clock.Advance(20 * time.Hour)
	require.NoError(t, f.q.FailJob(ctx, id, errors.New("timeout")))

	got, err := f.q.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Add(DefaultJobTTL).Equal(got.ExpiresAt))

	f.clock.Advance(10 * time.Hour)
	job, err := f.q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Attempts)
}
