package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink recebe lotes de entradas já sanitizadas.
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
	Close() error
}

type Config struct {
	Service  string
	MinLevel Level

	// BufferSize dispara um flush antecipado quando atingido.
	BufferSize int
	// MaxBuffered limita a memória: acima disso as entradas mais antigas são descartadas.
	MaxBuffered   int
	FlushInterval time.Duration

	RedactFields []string
	Sinks        []Sink

	// ThrottleEvery controla WarnThrottled: uma emissão por chave a cada ThrottleEvery.
	ThrottleEvery time.Duration

	Now func() time.Time
}

type Logger struct {
	cfg      Config
	redactor redactor
	throttle *Throttle

	mu      sync.Mutex
	buf     []Entry
	dropped int

	flushMu sync.Mutex
	kick    chan struct{}
}

func New(cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.MaxBuffered < cfg.BufferSize {
		cfg.MaxBuffered = cfg.BufferSize * 10
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.RedactFields == nil {
		cfg.RedactFields = DefaultRedactFields
	}
	if cfg.ThrottleEvery <= 0 {
		cfg.ThrottleEvery = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Logger{
		cfg:      cfg,
		redactor: newRedactor(cfg.RedactFields),
		throttle: NewThrottle(cfg.ThrottleEvery, 1),
		buf:      make([]Entry, 0, cfg.BufferSize),
		kick:     make(chan struct{}, 1),
	}
}

// Nop devolve um logger sem sinks. Um *Logger nil também é aceito por todos os métodos.
func Nop() *Logger { return New(Config{MinLevel: LevelCritical + 1}) }

func (l *Logger) Debug(msg string, fields Fields)    { l.log(LevelDebug, "", msg, "", nil, fields) }
func (l *Logger) Info(msg string, fields Fields)     { l.log(LevelInfo, "", msg, "", nil, fields) }
func (l *Logger) Warn(msg string, fields Fields)     { l.log(LevelWarn, "", msg, "", nil, fields) }
func (l *Logger) Error(msg string, fields Fields)    { l.log(LevelError, "", msg, "", nil, fields) }
func (l *Logger) Critical(msg string, fields Fields) { l.log(LevelCritical, "", msg, "", nil, fields) }

// Event registra um evento nomeado (ex: "job_requeued") no nível indicado.
func (l *Logger) Event(level Level, event, msg string, fields Fields) {
	l.log(level, event, msg, "", nil, fields)
}

// Security registra um evento de segurança. O nível deriva da severidade.
func (l *Logger) Security(event string, severity Severity, fields Fields) {
	l.log(levelFor(severity), event, "security event: "+event, severity, []string{"security"}, fields)
}

// Audit registra uma ação auditável (ex: job concluído, limite resetado).
func (l *Logger) Audit(action string, fields Fields) {
	l.log(LevelInfo, action, "audit: "+action, SeverityLow, []string{"audit"}, fields)
}

// WarnThrottled emite no máximo um aviso por chave a cada Config.ThrottleEvery.
// A emissão seguinte carrega em "suppressed" quantos foram omitidos.
func (l *Logger) WarnThrottled(key, event, msg string, fields Fields) {
	if l == nil {
		return
	}
	ok, suppressed := l.throttle.Allow(key)
	if !ok {
		return
	}
	if suppressed > 0 {
		cp := make(Fields, len(fields)+1)
		for k, v := range fields {
			cp[k] = v
		}
		cp["suppressed"] = suppressed
		fields = cp
	}
	l.log(LevelWarn, event, msg, "", nil, fields)
}

func (l *Logger) log(level Level, event, msg string, sev Severity, tags []string, fields Fields) {
	if l == nil || level < l.cfg.MinLevel {
		return
	}
	if sev == "" {
		sev = severityFor(level)
	}
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: l.cfg.Now().UTC(),
		Level:     level,
		Event:     event,
		Message:   msg,
		Severity:  sev,
		Service:   l.cfg.Service,
		Tags:      tags,
		Context:   l.redactor.fields(fields),
	}

	l.mu.Lock()
	if len(l.buf) >= l.cfg.MaxBuffered {
		drop := len(l.buf) - l.cfg.MaxBuffered + 1
		l.buf = append(l.buf[:0], l.buf[drop:]...)
		l.dropped += drop
	}
	l.buf = append(l.buf, e)
	full := len(l.buf) >= l.cfg.BufferSize
	l.mu.Unlock()

	if full {
		select {
		case l.kick <- struct{}{}:
		default:
		}
	}
}

// Pending devolve quantas entradas aguardam flush.
func (l *Logger) Pending() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// Dropped devolve quantas entradas foram descartadas por buffer cheio.
func (l *Logger) Dropped() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Flush escreve o buffer atual em todos os sinks. Entradas de um lote que falhou
// não voltam para o buffer.
func (l *Logger) Flush(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	if len(l.buf) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := l.buf
	l.buf = make([]Entry, 0, l.cfg.BufferSize)
	l.mu.Unlock()

	var errs []error
	for _, s := range l.cfg.Sinks {
		if err := s.Write(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run descarrega o buffer periodicamente e quando ele enche, até ctx encerrar.
// No encerramento faz um último flush com prazo próprio.
func (l *Logger) Run(ctx context.Context) {
	if l == nil {
		return
	}
	l.throttle.StartJanitor(ctx)

	t := time.NewTicker(l.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			l.reportFlush(l.Flush(flushCtx))
			cancel()
			return
		case <-t.C:
			l.reportFlush(l.Flush(ctx))
		case <-l.kick:
			l.reportFlush(l.Flush(ctx))
		}
	}
}

// Close faz o flush final e fecha os sinks.
func (l *Logger) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	errs := []error{l.Flush(ctx)}
	for _, s := range l.cfg.Sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func (l *Logger) reportFlush(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: flush error: %v\n", err)
	}
}
