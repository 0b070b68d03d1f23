package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

const slogLevelCritical = slog.Level(12)

// ConsoleSink renderiza cada entrada como uma linha JSON via log/slog.
type ConsoleSink struct {
	mu      sync.Mutex
	handler slog.Handler
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{
		handler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.LevelKey && len(groups) == 0 {
					if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= slogLevelCritical {
						return slog.String(slog.LevelKey, "CRITICAL")
					}
				}
				return a
			},
		}),
	}
}

func (s *ConsoleSink) Write(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		r := slog.NewRecord(e.Timestamp, toSlogLevel(e.Level), e.Message, 0)
		r.AddAttrs(
			slog.String("id", e.ID),
			slog.String("severity", string(e.Severity)),
		)
		if e.Event != "" {
			r.AddAttrs(slog.String("event", e.Event))
		}
		if e.Service != "" {
			r.AddAttrs(slog.String("service", e.Service))
		}
		if len(e.Tags) > 0 {
			r.AddAttrs(slog.Any("tags", e.Tags))
		}
		if len(e.Context) > 0 {
			r.AddAttrs(slog.Any("context", map[string]any(e.Context)))
		}
		if err := s.handler.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *ConsoleSink) Close() error { return nil }

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slogLevelCritical
}
