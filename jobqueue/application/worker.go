package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"security-gateway/jobqueue/domain"
	"security-gateway/logging"

	"github.com/pkg/errors"
)

// Handler processa um job. Erro devolvido vira FailJob (requeue ou falha terminal).
type Handler func(ctx context.Context, job *domain.Job) error

type Worker struct {
	Queue domain.Queue
	// Pool limita jobs simultâneos entre todos os tipos. nil = um por vez por tipo, no próprio loop.
	Pool domain.SlotPool
	Log  *logging.Logger

	// VisibilityTimeout é o tempo máximo em processing antes de RecoverStuckJobs devolver o job.
	VisibilityTimeout time.Duration
	MaintenanceEvery  time.Duration
	ErrorBackoff      time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

var ErrNoHandlers = errors.New("jobqueue: worker has no handlers")

func (w *Worker) Handle(jobType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handlers == nil {
		w.handlers = make(map[string]Handler)
	}
	w.handlers[jobType] = h
}

func (w *Worker) JobTypes() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (w *Worker) handler(jobType string) Handler {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.handlers[jobType]
}

// ProcessOne retira no máximo um job do tipo e o executa de forma síncrona.
// Retorna false quando não havia job utilizável.
func (w *Worker) ProcessOne(ctx context.Context, jobType string) (bool, error) {
	job, err := w.Queue.Dequeue(ctx, jobType)
	if err != nil || job == nil {
		return false, err
	}
	return true, w.process(ctx, job)
}

// Run bloqueia até o ctx encerrar e os jobs em andamento terminarem.
func (w *Worker) Run(ctx context.Context) error {
	types := w.JobTypes()
	if len(types) == 0 {
		return ErrNoHandlers
	}
	var wg sync.WaitGroup
	for _, jobType := range types {
		wg.Add(1)
		go func(jobType string) {
			defer wg.Done()
			w.loop(ctx, jobType, &wg)
		}(jobType)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.maintain(ctx, types)
	}()

	w.Log.Info("worker started", logging.Fields{"jobTypes": types})
	wg.Wait()
	w.Log.Info("worker stopped", nil)
	return nil
}

func (w *Worker) loop(ctx context.Context, jobType string, wg *sync.WaitGroup) {
	for ctx.Err() == nil {
		release := func() {}
		if w.Pool != nil {
			var ok bool
			if release, ok = w.Pool.Acquire(ctx); !ok {
				return
			}
		}
		job, err := w.Queue.Dequeue(ctx, jobType)
		if err != nil {
			release()
			if ctx.Err() != nil {
				return
			}
			w.Log.WarnThrottled("dequeue:"+jobType, "job_dequeue_error", "dequeue failed", logging.Fields{
				"jobType": jobType,
				"error":   err.Error(),
			})
			w.sleep(ctx, w.backoff())
			continue
		}
		if job == nil {
			release()
			continue
		}

		if w.Pool == nil {
			w.processLogged(ctx, job)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer release()
			w.processLogged(ctx, job)
		}()
	}
}

func (w *Worker) processLogged(ctx context.Context, job *domain.Job) {
	err := w.process(ctx, job)
	if errors.Is(err, domain.ErrInvalidTransition) {
		// outro worker assumiu o job depois do visibility timeout
		w.Log.Event(logging.LevelWarn, "job_result_dropped", "job result discarded, job no longer held", logging.Fields{
			"jobId": job.ID, "jobType": job.Type, "error": err.Error(),
		})
		return
	}
	if err != nil {
		w.Log.Error("job bookkeeping failed", logging.Fields{"jobId": job.ID, "jobType": job.Type, "error": err.Error()})
	}
}

// process executa o handler e registra o resultado. O erro devolvido é só de bookkeeping
// (Store); falha do handler vira FailJob.
func (w *Worker) process(ctx context.Context, job *domain.Job) error {
	// o resultado precisa ser gravado mesmo durante o shutdown
	bookkeeping := context.WithoutCancel(ctx)

	h := w.handler(job.Type)
	if h == nil {
		return w.Queue.FailJob(bookkeeping, job.ID, errors.Wrap(domain.ErrNoHandler, job.Type))
	}
	if err := w.run(ctx, h, job); err != nil {
		return w.Queue.FailJob(bookkeeping, job.ID, err)
	}
	return w.Queue.CompleteJob(bookkeeping, job.ID)
}

func (w *Worker) run(ctx context.Context, h Handler, job *domain.Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			w.Log.Event(logging.LevelError, "job_handler_panic", "job handler panicked", logging.Fields{
				"jobId":   job.ID,
				"jobType": job.Type,
				"panic":   fmt.Sprint(p),
			})
			err = errors.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, job)
}

func (w *Worker) maintain(ctx context.Context, types []string) {
	every := w.MaintenanceEvery
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Maintain(ctx, types...)
		}
	}
}

// Maintain roda uma rodada de recuperação (por tipo) e de limpeza.
func (w *Worker) Maintain(ctx context.Context, types ...string) {
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	for _, jobType := range types {
		if _, err := w.Queue.RecoverStuckJobs(ctx, jobType, visibility); err != nil {
			w.Log.WarnThrottled("recover:"+jobType, "job_recover_error", "stuck job recovery failed", logging.Fields{
				"jobType": jobType,
				"error":   err.Error(),
			})
		}
	}
	if _, err := w.Queue.CleanupExpiredJobs(ctx); err != nil {
		w.Log.WarnThrottled("cleanup", "job_cleanup_error", "expired job cleanup failed", logging.Fields{"error": err.Error()})
	}
}

func (w *Worker) backoff() time.Duration {
	if w.ErrorBackoff > 0 {
		return w.ErrorBackoff
	}
	return time.Second
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
