package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Chaves reservadas do payload.
const (
	PayloadRequestID     = "requestId"
	PayloadJobToken      = "jobToken"
	PayloadTokenIssuedAt = "tokenIssuedAt"
)

// Payload é opaco para a fila, exceto pelas chaves reservadas acima.
type Payload map[string]any

// NewPayload copia data e grava requestId, jobToken e tokenIssuedAt (unix ms).
func NewPayload(requestID string, token Token, data map[string]any) Payload {
	p := make(Payload, len(data)+3)
	for k, v := range data {
		p[k] = v
	}
	p[PayloadRequestID] = requestID
	p[PayloadJobToken] = token.Value
	p[PayloadTokenIssuedAt] = token.IssuedAt.UnixMilli()
	return p
}

func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p Payload) RequestID() string { return p.String(PayloadRequestID) }
func (p Payload) JobToken() string  { return p.String(PayloadJobToken) }

// TokenIssuedAt aceita os formatos que um round-trip JSON pode produzir.
func (p Payload) TokenIssuedAt() (time.Time, bool) {
	var ms int64
	switch v := p[PayloadTokenIssuedAt].(type) {
	case int64:
		ms = v
	case int:
		ms = int64(v)
	case float64:
		ms = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		ms = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		ms = n
	default:
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Token é o digest HMAC (hex) e o instante que entrou no digest.
type Token struct {
	Value    string
	IssuedAt time.Time
}

type Job struct {
	ID                  string     `json:"id"`
	Type                string     `json:"type"`
	Payload             Payload    `json:"payload"`
	JobToken            string     `json:"jobToken"`
	UserID              string     `json:"userId,omitempty"`
	QueuedAt            time.Time  `json:"queuedAt"`
	ExpiresAt           time.Time  `json:"expiresAt"`
	Attempts            int        `json:"attempts"`
	MaxAttempts         int        `json:"maxAttempts"`
	Status              Status     `json:"status"`
	LastError           string     `json:"lastError,omitempty"`
	ProcessingStartedAt *time.Time `json:"processingStartedAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	FailedAt            *time.Time `json:"failedAt,omitempty"`
}

func (j *Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && now.After(j.ExpiresAt)
}

// Exhausted indica que o próximo FailJob é terminal.
func (j *Job) Exhausted() bool { return j.Attempts >= j.MaxAttempts }
