package logging

import (
	"fmt"
	"strings"
	"time"
)

type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	}
	return fmt.Sprintf("level(%d)", int8(l))
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	}
	return LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// Severity é a gravidade de negócio/segurança, independente do nível técnico.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func severityFor(l Level) Severity {
	switch {
	case l >= LevelCritical:
		return SeverityCritical
	case l >= LevelError:
		return SeverityHigh
	case l >= LevelWarn:
		return SeverityMedium
	}
	return SeverityLow
}

func levelFor(s Severity) Level {
	switch s {
	case SeverityCritical:
		return LevelCritical
	case SeverityHigh:
		return LevelError
	case SeverityMedium:
		return LevelWarn
	}
	return LevelInfo
}

type Fields map[string]any

// Entry é uma linha de log já sanitizada. Não é retida depois de escrita nos sinks.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Event     string    `json:"event,omitempty"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Service   string    `json:"service,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Context   Fields    `json:"context,omitempty"`
}

func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
