package apperror

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"security-gateway/logging"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Envelope struct {
	Error Body `json:"error"`
}

type Body struct {
	Kind      Kind           `json:"kind"`
	Code      Code           `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     string         `json:"cause,omitempty"`
	Stack     []string       `json:"stack,omitempty"`
}

// Handler converte erros em respostas. O valor zero funciona (modo desenvolvimento, sem log).
type Handler struct {
	Log        *logging.Logger
	Production bool
	Now        func() time.Time
}

// Render monta o envelope sem escrever nada. Útil para testes e para quem não usa net/http.
func (h *Handler) Render(err *Error, requestID string) Envelope {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	body := Body{
		Kind:      err.Kind,
		Code:      err.Code,
		Message:   err.Message,
		RequestID: requestID,
		Timestamp: now().UTC().Format(time.RFC3339Nano),
		Details:   err.Details,
	}
	internal := err.Kind == KindServer || err.Kind == KindExternal
	if h.Production {
		if internal {
			body.Message = codes[err.Code].message
			body.Details = nil
		}
		return Envelope{Error: body}
	}
	if err.cause != nil {
		body.Cause = err.cause.Error()
	}
	body.Stack = err.Stack()
	return Envelope{Error: body}
}

func (h *Handler) Write(w http.ResponseWriter, r *http.Request, err error) {
	ae := From(err)
	if ae == nil {
		return
	}

	requestID := RequestID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	h.report(ae, r, requestID)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set(RequestIDHeader, requestID)
	if ae.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(math.Ceil(ae.RetryAfter.Seconds())), 10))
	}
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(h.Render(ae, requestID))
}

// Wrap adapta um handler que devolve erro para http.Handler, recuperando panics.
func (h *Handler) Wrap(fn func(w http.ResponseWriter, r *http.Request) error) http.Handler {
	return h.Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.Write(w, r, err)
		}
	}))
}

func (h *Handler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				h.Write(w, r, Internal(fmt.Errorf("panic: %v", p)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) report(e *Error, r *http.Request, requestID string) {
	fields := logging.Fields{
		"code":      string(e.Code),
		"status":    e.Status,
		"requestId": requestID,
		"method":    r.Method,
		"path":      r.URL.Path,
	}
	switch e.Kind {
	case KindServer, KindExternal:
		if e.cause != nil {
			fields["cause"] = e.cause.Error()
		}
		h.Log.Event(logging.LevelError, "request_error", e.Message, fields)
	case KindSecurity:
		switch e.Code {
		case CodeRateLimited:
			// o rate limiter já registra bloqueios e excessos
			h.Log.Debug(e.Message, fields)
		case CodeTokenInvalid, CodeCSRFInvalid:
			h.Log.Security(eventName(e.Code), logging.SeverityHigh, fields)
		default:
			h.Log.Security(eventName(e.Code), logging.SeverityMedium, fields)
		}
	default:
		h.Log.Debug(e.Message, fields)
	}
}

func eventName(c Code) string {
	switch c {
	case CodeUnauthorized:
		return "unauthorized_access"
	case CodeForbidden:
		return "forbidden_access"
	case CodeTokenInvalid:
		return "invalid_token"
	case CodeCSRFInvalid:
		return "csrf_violation"
	}
	return "security_error"
}
