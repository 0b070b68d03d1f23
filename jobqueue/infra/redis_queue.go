package infra

import (
	"context"
	"strings"
	"time"

	"security-gateway/instrumentation"
	"security-gateway/jobqueue/domain"
	"security-gateway/logging"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultJobTTL         = 24 * time.Hour
	DefaultAuditTTL       = 7 * 24 * time.Hour
	DefaultDequeueTimeout = 10 * time.Second
)

// RedisQueue implementa domain.Queue.
//
// Cada transição de estado é um MULTI/EXEC sob WATCH do registro: registro e listas
// nunca ficam divergentes, e duas transições concorrentes sobre o mesmo job não se
// sobrescrevem. Estados válidos: pending -> processing -> completed | failed | pending.
type RedisQueue struct {
	rdb     *redis.Client
	signer  *Signer
	log     *logging.Logger
	metrics *instrumentation.Metrics
	now     func() time.Time
	newID   func() string

	jobTTL         time.Duration
	auditTTL       time.Duration
	dequeueTimeout time.Duration
	maxAttempts    int
}

var _ domain.Queue = (*RedisQueue)(nil)

type QueueOption func(*RedisQueue)

func WithJobTTL(d time.Duration) QueueOption {
	return func(q *RedisQueue) { q.jobTTL = d }
}

func WithAuditTTL(d time.Duration) QueueOption {
	return func(q *RedisQueue) { q.auditTTL = d }
}

// WithDequeueTimeout define a espera do BRPOPLPUSH. O Redis trabalha em segundos:
// valores abaixo de 1s viram 1s.
func WithDequeueTimeout(d time.Duration) QueueOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.dequeueTimeout = d
		}
	}
}

func WithDefaultMaxAttempts(n int) QueueOption {
	return func(q *RedisQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func WithLogger(l *logging.Logger) QueueOption {
	return func(q *RedisQueue) { q.log = l }
}

func WithMetrics(m *instrumentation.Metrics) QueueOption {
	return func(q *RedisQueue) { q.metrics = m }
}

func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *RedisQueue) { q.now = now }
}

func WithIDGenerator(fn func() string) QueueOption {
	return func(q *RedisQueue) { q.newID = fn }
}

func NewRedisQueue(rdb *redis.Client, signer *Signer, opts ...QueueOption) *RedisQueue {
	q := &RedisQueue{
		rdb:            rdb,
		signer:         signer,
		now:            time.Now,
		newID:          uuid.NewString,
		jobTTL:         DefaultJobTTL,
		auditTTL:       DefaultAuditTTL,
		dequeueTimeout: DefaultDequeueTimeout,
		maxAttempts:    domain.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func JobKey(id string) string             { return "job:" + id }
func PendingKey(jobType string) string    { return "queue:" + jobType }
func ProcessingKey(jobType string) string { return "processing:" + jobType }

func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, payload domain.Payload, opts ...domain.EnqueueOption) (string, error) {
	if jobType == "" {
		return "", domain.ErrEmptyJobType
	}
	if payload.RequestID() == "" {
		return "", domain.ErrMissingRequestID
	}
	if payload.JobToken() == "" {
		return "", domain.ErrMissingJobToken
	}

	o := domain.EnqueueOptions{MaxAttempts: q.maxAttempts}
	for _, opt := range opts {
		opt(&o)
	}

	now := q.now()
	job := domain.Job{
		ID:          q.newID(),
		Type:        jobType,
		Payload:     payload,
		JobToken:    payload.JobToken(),
		UserID:      o.UserID,
		QueuedAt:    now,
		ExpiresAt:   now.Add(q.jobTTL),
		MaxAttempts: o.MaxAttempts,
		Status:      domain.StatusPending,
	}
	data, err := json.Marshal(&job)
	if err != nil {
		return "", errors.Wrap(err, "jobqueue: encode job")
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetEx(ctx, JobKey(job.ID), data, q.jobTTL)
		p.LPush(ctx, PendingKey(jobType), job.ID)
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "jobqueue: enqueue %s", jobType)
	}

	q.log.Audit("job_enqueued", logging.Fields{
		"jobId":     job.ID,
		"jobType":   jobType,
		"requestId": payload.RequestID(),
		"userId":    o.UserID,
	})
	q.metrics.RecordJob(ctx, "enqueued", jobType)
	return job.ID, nil
}

// dequeueOutcome diz o que fazer com o id que o BRPOPLPUSH moveu para processing.
type dequeueOutcome int

const (
	dequeueReady dequeueOutcome = iota
	dequeueMissing
	dequeueCorrupt
	dequeueStale
	dequeueExpired
	dequeueForged
)

func (q *RedisQueue) Dequeue(ctx context.Context, jobType string) (*domain.Job, error) {
	id, err := q.rdb.BRPopLPush(ctx, PendingKey(jobType), ProcessingKey(jobType), q.dequeueTimeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "jobqueue: dequeue %s", jobType)
	}

	var (
		job       domain.Job
		outcome   dequeueOutcome
		decodeErr error
	)
	err = q.watchJob(ctx, id, func(tx *redis.Tx) error {
		job, outcome, decodeErr = domain.Job{}, dequeueReady, nil
		raw, err := tx.Get(ctx, JobKey(id)).Bytes()
		if err == redis.Nil {
			outcome = dequeueMissing
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "jobqueue: load job %s", id)
		}
		if decodeErr = json.Unmarshal(raw, &job); decodeErr != nil {
			outcome = dequeueCorrupt
			return nil
		}

		now := q.now()
		switch {
		case job.Status != domain.StatusPending:
			outcome = dequeueStale
		case job.Expired(now):
			outcome = dequeueExpired
		case !q.verify(&job, jobType):
			outcome = dequeueForged
		}
		if outcome != dequeueReady {
			return nil
		}

		job.Attempts++
		job.Status = domain.StatusProcessing
		job.ProcessingStartedAt = &now
		data, err := json.Marshal(&job)
		if err != nil {
			return errors.Wrap(err, "jobqueue: encode job")
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, JobKey(id), data, redis.KeepTTL)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "jobqueue: claim job %s", id)
	}

	switch outcome {
	case dequeueMissing:
		// registro expirou com o id ainda na lista
		q.log.Event(logging.LevelWarn, "job_record_missing", "job record not found", logging.Fields{"jobId": id, "jobType": jobType})
		q.metrics.RecordDiscard(ctx, jobType, "missing")
		return nil, q.discard(ctx, jobType, id)
	case dequeueCorrupt:
		q.log.Event(logging.LevelError, "job_record_corrupt", "job record could not be decoded", logging.Fields{
			"jobId":   id,
			"jobType": jobType,
			"error":   decodeErr.Error(),
		})
		q.metrics.RecordDiscard(ctx, jobType, "corrupt")
		return nil, q.discard(ctx, jobType, id)
	case dequeueStale:
		// id repetido na fila de um job que já saiu de pending: só a entrada da lista sai,
		// o registro continua valendo
		q.log.Event(logging.LevelWarn, "job_stale_entry", "queued id does not point to a pending job", logging.Fields{
			"jobId":   id,
			"jobType": jobType,
			"status":  string(job.Status),
		})
		q.metrics.RecordDiscard(ctx, jobType, "stale")
		if err := q.rdb.LRem(ctx, ProcessingKey(jobType), 1, id).Err(); err != nil {
			return nil, errors.Wrapf(err, "jobqueue: drop stale entry %s", id)
		}
		return nil, nil
	case dequeueExpired:
		q.metrics.RecordDiscard(ctx, jobType, "expired")
		return nil, q.discard(ctx, jobType, id)
	case dequeueForged:
		q.log.Security("malicious_request", logging.SeverityCritical, logging.Fields{
			"reason":    "job token verification failed",
			"jobId":     id,
			"jobType":   jobType,
			"requestId": job.Payload.RequestID(),
			"userId":    job.UserID,
		})
		q.metrics.RecordDiscard(ctx, jobType, "token_mismatch")
		q.metrics.RecordSecurityEvent(ctx, "malicious_request")
		return nil, q.discard(ctx, jobType, id)
	}

	q.metrics.RecordJob(ctx, "dequeued", jobType)
	return &job, nil
}

func (q *RedisQueue) verify(job *domain.Job, jobType string) bool {
	if q.signer == nil || job.JobToken == "" || job.Payload.JobToken() != job.JobToken {
		return false
	}
	issuedAt, ok := job.Payload.TokenIssuedAt()
	if !ok {
		return false
	}
	return q.signer.Verify(job.Payload.RequestID(), jobType, issuedAt, job.JobToken)
}

// CompleteJob só vale para job em processing: um job devolvido à fila pelo
// RecoverStuckJobs ou já finalizado devolve ErrInvalidTransition.
func (q *RedisQueue) CompleteJob(ctx context.Context, jobID string) error {
	var job *domain.Job
	err := q.watchJob(ctx, jobID, func(tx *redis.Tx) error {
		var err error
		if job, err = q.loadProcessing(ctx, tx, jobID, "complete"); err != nil {
			return err
		}

		now := q.now()
		job.Status = domain.StatusCompleted
		job.CompletedAt = &now
		// o prazo do registro acompanha a retenção de auditoria
		job.ExpiresAt = now.Add(q.auditTTL)

		data, err := json.Marshal(job)
		if err != nil {
			return errors.Wrap(err, "jobqueue: encode job")
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SetEx(ctx, JobKey(job.ID), data, q.auditTTL)
			p.LRem(ctx, ProcessingKey(job.Type), 1, job.ID)
			return nil
		})
		return errors.Wrapf(err, "jobqueue: complete %s", jobID)
	})
	if err != nil {
		return err
	}

	q.log.Audit("job_completed", logging.Fields{
		"jobId":    job.ID,
		"jobType":  job.Type,
		"attempts": job.Attempts,
		"userId":   job.UserID,
	})
	q.metrics.RecordJob(ctx, "completed", job.Type)
	return nil
}

// FailJob só vale para job em processing. Como a volta para pending acontece na mesma
// transação do LPUSH, uma segunda chamada para o mesmo dequeue não empilha o id de novo.
func (q *RedisQueue) FailJob(ctx context.Context, jobID string, cause error) error {
	var (
		job      *domain.Job
		terminal bool
	)
	err := q.watchJob(ctx, jobID, func(tx *redis.Tx) error {
		var err error
		if job, err = q.loadProcessing(ctx, tx, jobID, "fail"); err != nil {
			return err
		}

		now := q.now()
		if cause != nil {
			job.LastError = cause.Error()
		}
		// registro e ExpiresAt ganham o mesmo prazo
		job.ExpiresAt = now.Add(q.jobTTL)
		terminal = job.Exhausted()
		if terminal {
			job.Status = domain.StatusFailed
			job.FailedAt = &now
		} else {
			job.Status = domain.StatusPending
			job.ProcessingStartedAt = nil
		}

		data, err := json.Marshal(job)
		if err != nil {
			return errors.Wrap(err, "jobqueue: encode job")
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SetEx(ctx, JobKey(job.ID), data, q.jobTTL)
			p.LRem(ctx, ProcessingKey(job.Type), 1, job.ID)
			if !terminal {
				p.LPush(ctx, PendingKey(job.Type), job.ID)
			}
			return nil
		})
		return errors.Wrapf(err, "jobqueue: fail %s", jobID)
	})
	if err != nil {
		return err
	}

	fields := logging.Fields{
		"jobId":       job.ID,
		"jobType":     job.Type,
		"attempts":    job.Attempts,
		"maxAttempts": job.MaxAttempts,
		"error":       job.LastError,
	}
	if terminal {
		q.log.Event(logging.LevelError, "job_failed", "job failed permanently", fields)
		q.metrics.RecordJob(ctx, "failed", job.Type)
	} else {
		q.log.Event(logging.LevelWarn, "job_requeued", "job failed, requeued", fields)
		q.metrics.RecordJob(ctx, "requeued", job.Type)
	}
	return nil
}

// GetJobStatus devolve (nil, nil) para job inexistente.
func (q *RedisQueue) GetJobStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := q.load(ctx, q.rdb, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil, nil
	}
	return job, err
}

// CleanupExpiredJobs varre job:* e apaga registros cujo ExpiresAt passou.
// Registros ilegíveis são ignorados: o TTL cuida deles.
func (q *RedisQueue) CleanupExpiredJobs(ctx context.Context) (int, error) {
	now := q.now()
	removed := 0
	iter := q.rdb.Scan(ctx, 0, JobKey("*"), 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := strings.TrimPrefix(key, JobKey(""))
		deleted := false
		err := q.watchJob(ctx, id, func(tx *redis.Tx) error {
			deleted = false
			raw, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "jobqueue: cleanup read %s", key)
			}
			var job domain.Job
			if json.Unmarshal(raw, &job) != nil || !job.Expired(now) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Del(ctx, key)
				p.LRem(ctx, PendingKey(job.Type), 0, id)
				p.LRem(ctx, ProcessingKey(job.Type), 0, id)
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "jobqueue: cleanup delete %s", key)
			}
			deleted = true
			return nil
		})
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, errors.Wrap(err, "jobqueue: cleanup scan")
	}
	if removed > 0 {
		q.log.Info("expired jobs removed", logging.Fields{"count": removed})
	}
	return removed, nil
}

// RecoverStuckJobs devolve para a fila os jobs em processing há mais que visibilityTimeout
// (worker que caiu segurando o job). Jobs sem tentativas restantes viram failed.
func (q *RedisQueue) RecoverStuckJobs(ctx context.Context, jobType string, visibilityTimeout time.Duration) (int, error) {
	ids, err := q.rdb.LRange(ctx, ProcessingKey(jobType), 0, -1).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "jobqueue: list processing %s", jobType)
	}

	now := q.now()
	recovered := 0
	for _, id := range ids {
		var (
			job      *domain.Job
			released bool
			terminal bool
			orphan   bool
		)
		err := q.watchJob(ctx, id, func(tx *redis.Tx) error {
			released, terminal, orphan = false, false, false
			var err error
			job, err = q.load(ctx, tx, id)
			if errors.Is(err, domain.ErrJobNotFound) {
				orphan = true
				return nil
			}
			if err != nil {
				return err
			}
			if job.Status != domain.StatusProcessing || job.ProcessingStartedAt == nil ||
				now.Sub(*job.ProcessingStartedAt) < visibilityTimeout {
				return nil
			}

			terminal = job.Exhausted()
			job.ProcessingStartedAt = nil
			job.LastError = "processing timed out"
			if terminal {
				job.Status = domain.StatusFailed
				job.FailedAt = &now
			} else {
				job.Status = domain.StatusPending
			}
			data, err := json.Marshal(job)
			if err != nil {
				return errors.Wrap(err, "jobqueue: encode job")
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, JobKey(id), data, redis.KeepTTL)
				p.LRem(ctx, ProcessingKey(jobType), 1, id)
				if !terminal {
					p.LPush(ctx, PendingKey(jobType), id)
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "jobqueue: recover %s", id)
			}
			released = true
			return nil
		})
		if err != nil {
			return recovered, err
		}
		if orphan {
			if err := q.rdb.LRem(ctx, ProcessingKey(jobType), 0, id).Err(); err != nil {
				return recovered, errors.Wrapf(err, "jobqueue: drop orphan %s", id)
			}
			continue
		}
		if !released {
			continue
		}

		q.log.Event(logging.LevelWarn, "job_recovered", "stuck job released", logging.Fields{
			"jobId":    id,
			"jobType":  jobType,
			"attempts": job.Attempts,
			"terminal": terminal,
		})
		q.metrics.RecordJob(ctx, "recovered", jobType)
		recovered++
	}
	return recovered, nil
}

// maxWatchRetries limita as repetições quando outro cliente altera job:<id>
// entre o GET e o EXEC.
const maxWatchRetries = 5

// watchJob roda fn sob WATCH job:<id>. Escritas feitas por fn via tx.TxPipelined só
// são aplicadas se o registro não mudou desde a leitura; caso contrário fn roda de novo.
func (q *RedisQueue) watchJob(ctx context.Context, id string, fn func(tx *redis.Tx) error) error {
	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = q.rdb.Watch(ctx, fn, JobKey(id))
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errors.Wrapf(err, "jobqueue: job %s under contention", id)
}

// jobReader é satisfeito por *redis.Client e *redis.Tx.
type jobReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (q *RedisQueue) load(ctx context.Context, r jobReader, jobID string) (*domain.Job, error) {
	raw, err := r.Get(ctx, JobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrap(domain.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "jobqueue: load job %s", jobID)
	}
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, errors.Wrapf(err, "jobqueue: decode job %s", jobID)
	}
	return &job, nil
}

func (q *RedisQueue) loadProcessing(ctx context.Context, r jobReader, jobID, op string) (*domain.Job, error) {
	job, err := q.load(ctx, r, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusProcessing {
		return nil, errors.Wrapf(domain.ErrInvalidTransition, "%s %s: status is %s", op, jobID, job.Status)
	}
	return job, nil
}

func (q *RedisQueue) discard(ctx context.Context, jobType, id string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, JobKey(id))
		p.LRem(ctx, ProcessingKey(jobType), 1, id)
		return nil
	})
	return errors.Wrapf(err, "jobqueue: discard %s", id)
}
