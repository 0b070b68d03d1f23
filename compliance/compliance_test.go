package compliance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"security-gateway/apperror"
	"security-gateway/jobqueue/application"
	"security-gateway/jobqueue/domain"
	"security-gateway/jobqueue/infra"
	"security-gateway/logging"

	"github.com/alicebob/miniredis/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	mr       *miniredis.Miniredis
	queue    *infra.RedisQueue
	producer Producer
	sink     *logging.MemorySink
	log      *logging.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	signer, err := infra.NewSigner([]byte("compliance-secret"))
	require.NoError(t, err)
	sink := logging.NewMemorySink()
	log := logging.New(logging.Config{Sinks: []logging.Sink{sink}})
	q := infra.NewRedisQueue(rdb, signer, infra.WithLogger(log), infra.WithDequeueTimeout(time.Second))
	return &fixture{
		mr:       mr,
		queue:    q,
		producer: Producer{Queue: q, Signer: signer, Log: log},
		sink:     sink,
		log:      log,
	}
}

type fakeDeleter struct{ users []string }

func (d *fakeDeleter) Delete(_ context.Context, userID string) error {
	d.users = append(d.users, userID)
	return nil
}

func TestProducer_ExportRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()

	id, err := f.producer.RequestDataExport(ctx, "user-1", "req-1", "CSV")
	require.NoError(t, err)

	w := &application.Worker{Queue: f.queue, Log: f.log}
	w.Handle(JobDataExport, ExportHandler(FileExporter{Dir: dir}, f.log))

	ok, err := w.ProcessOne(ctx, JobDataExport)
	require.NoError(t, err)
	require.True(t, ok)

	job, err := f.queue.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.Equal(t, "user-1", job.UserID)
	assert.Equal(t, "csv", job.Payload.String("format"))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0].Name(), "user-1-"))

	require.NoError(t, f.log.Flush(ctx))
	assert.Len(t, f.sink.ByEvent("data_export_requested"), 1)
	assert.Len(t, f.sink.ByEvent("data_exported"), 1)
}

func TestProducer_DeletionRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.producer.RequestDataDeletion(ctx, "user-2", "", "account closed")
	require.NoError(t, err)

	del := &fakeDeleter{}
	w := &application.Worker{Queue: f.queue, Log: f.log}
	w.Handle(JobDataDeletion, DeletionHandler(del, f.log))

	_, err = w.ProcessOne(ctx, JobDataDeletion)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-2"}, del.users)

	job, err := f.queue.GetJobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
	assert.NotEmpty(t, job.Payload.RequestID(), "request id generated when absent")
}

func TestProducer_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.producer.RequestDataExport(context.Background(), "", "req", "json")
	var ae *apperror.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperror.CodeValidation, ae.Code)

	_, err = f.producer.RequestDataExport(context.Background(), "user", "req", "xml")
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperror.CodeValidation, ae.Code)

	assert.Empty(t, f.mr.Keys())
}

func TestProducer_EnqueueFailureIsVisible(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	_, err := f.producer.RequestDataDeletion(context.Background(), "user-3", "req", "")
	var ae *apperror.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperror.CodeUnavailable, ae.Code)
	assert.Equal(t, http.StatusServiceUnavailable, ae.Status)
}

func TestRoutes(t *testing.T) {
	f := newFixture(t)
	h := apperror.RequestIDMiddleware(Routes(f.producer, &apperror.Handler{Production: true}))

	req := httptest.NewRequest(http.MethodPost, "/export", strings.NewReader(`{"format":"json"}`))
	req.Header.Set(UserHeader, "user-7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp jobResponse
	require.NoError(t, jsoniter.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, w.Header().Get(apperror.RequestIDHeader), resp.RequestID)

	// dono do job enxerga o status
	req = httptest.NewRequest(http.MethodGet, "/jobs/"+resp.JobID, nil)
	req.Header.Set(UserHeader, "user-7")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// outro usuário não
	req = httptest.NewRequest(http.MethodGet, "/jobs/"+resp.JobID, nil)
	req.Header.Set(UserHeader, "user-8")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/delete", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"VALIDATION_ERROR"`)

	req = httptest.NewRequest(http.MethodPost, "/export", strings.NewReader(`{nope`))
	req.Header.Set(UserHeader, "user-7")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
