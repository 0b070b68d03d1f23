package apperror

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindClient   Kind = "client"
	KindSecurity Kind = "security"
	KindServer   Kind = "server"
	KindExternal Kind = "external"
	KindBusiness Kind = "business"
)

type Code string

const (
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeTokenInvalid    Code = "TOKEN_INVALID"
	CodeCSRFInvalid     Code = "CSRF_INVALID"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeStore           Code = "STORE_ERROR"
	CodeDatabase        Code = "DATABASE_ERROR"
	CodeTimeout         Code = "TIMEOUT"
	CodeUnavailable     Code = "SERVICE_UNAVAILABLE"
	CodeExternalService Code = "EXTERNAL_SERVICE_ERROR"
	CodeQuotaExceeded   Code = "QUOTA_EXCEEDED"
	CodeSubscription    Code = "SUBSCRIPTION_REQUIRED"
	CodeFeature         Code = "FEATURE_UNAVAILABLE"
)

type codeInfo struct {
	kind    Kind
	status  int
	message string
}

// codes é o conjunto fechado de códigos conhecidos.
var codes = map[Code]codeInfo{
	CodeBadRequest:      {KindClient, http.StatusBadRequest, "Bad request"},
	CodeNotFound:        {KindClient, http.StatusNotFound, "Resource not found"},
	CodeConflict:        {KindClient, http.StatusConflict, "Resource conflict"},
	CodeValidation:      {KindClient, http.StatusUnprocessableEntity, "Validation failed"},
	CodeUnauthorized:    {KindSecurity, http.StatusUnauthorized, "Authentication required"},
	CodeForbidden:       {KindSecurity, http.StatusForbidden, "Access denied"},
	CodeRateLimited:     {KindSecurity, http.StatusTooManyRequests, "Too many requests"},
	CodeTokenInvalid:    {KindSecurity, http.StatusUnauthorized, "Invalid or expired token"},
	CodeCSRFInvalid:     {KindSecurity, http.StatusForbidden, "Invalid CSRF token"},
	CodeInternal:        {KindServer, http.StatusInternalServerError, "An internal error occurred"},
	CodeStore:           {KindServer, http.StatusInternalServerError, "An internal error occurred"},
	CodeDatabase:        {KindServer, http.StatusInternalServerError, "An internal error occurred"},
	CodeTimeout:         {KindServer, http.StatusGatewayTimeout, "The request timed out"},
	CodeUnavailable:     {KindServer, http.StatusServiceUnavailable, "Service temporarily unavailable"},
	CodeExternalService: {KindExternal, http.StatusBadGateway, "An upstream service failed"},
	CodeQuotaExceeded:   {KindBusiness, http.StatusTooManyRequests, "Quota exceeded"},
	CodeSubscription:    {KindBusiness, http.StatusPaymentRequired, "Subscription required"},
	CodeFeature:         {KindBusiness, http.StatusForbidden, "Feature not available on current plan"},
}

// Error é o erro de aplicação. Deve ser criado via New/Wrap ou pelos construtores.
type Error struct {
	Kind       Kind
	Code       Code
	Status     int
	Message    string
	Details    map[string]any
	RetryAfter time.Duration

	cause error
	stack errors.StackTrace
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New cria um erro do código informado. Códigos fora do conjunto conhecido viram INTERNAL_ERROR.
func New(code Code, message string) *Error {
	return build(code, message, nil)
}

// Wrap anexa uma causa. O stack da causa (pkg/errors) tem precedência sobre o capturado aqui.
func Wrap(cause error, code Code, message string) *Error {
	return build(code, message, cause)
}

func build(code Code, message string, cause error) *Error {
	info, ok := codes[code]
	if !ok {
		code, info = CodeInternal, codes[CodeInternal]
	}
	if message == "" {
		message = info.message
	}
	e := &Error{
		Kind:    info.kind,
		Code:    code,
		Status:  info.status,
		Message: message,
		cause:   cause,
	}
	var st stackTracer
	if cause != nil && errors.As(cause, &st) {
		e.stack = st.StackTrace()
	} else {
		e.stack = capture()
	}
	return e
}

func capture() errors.StackTrace {
	st, ok := errors.New("").(stackTracer)
	if !ok {
		return nil
	}
	frames := st.StackTrace()
	// descarta capture e build
	if len(frames) > 2 {
		frames = frames[2:]
	}
	return frames
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause mantém compatibilidade com errors.Cause de pkg/errors.
func (e *Error) Cause() error { return e.cause }

func (e *Error) StackTrace() errors.StackTrace { return e.stack }

func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// Stack formata o stack como linhas "função arquivo:linha".
func (e *Error) Stack() []string {
	out := make([]string, 0, len(e.stack))
	for _, f := range e.stack {
		out = append(out, strings.TrimSpace(strings.ReplaceAll(fmt.Sprintf("%+v", f), "\n\t", " ")))
	}
	return out
}

// From classifica qualquer erro. nil continua nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, CodeTimeout, "")
	}
	return Wrap(err, CodeInternal, err.Error())
}

func BadRequest(msg string) *Error { return New(CodeBadRequest, msg) }
func NotFound(msg string) *Error   { return New(CodeNotFound, msg) }
func Conflict(msg string) *Error   { return New(CodeConflict, msg) }

func Validation(msg string, fields map[string]any) *Error {
	e := New(CodeValidation, msg)
	if len(fields) > 0 {
		e.Details = fields
	}
	return e
}

func Unauthorized(msg string) *Error { return New(CodeUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(CodeForbidden, msg) }
func TokenInvalid(msg string) *Error { return New(CodeTokenInvalid, msg) }
func CSRFInvalid(msg string) *Error  { return New(CodeCSRFInvalid, msg) }

func RateLimited(msg string, retryAfter time.Duration) *Error {
	e := New(CodeRateLimited, msg)
	e.RetryAfter = retryAfter
	return e
}

func Internal(cause error) *Error { return Wrap(cause, CodeInternal, "") }

func Store(cause error) *Error { return Wrap(cause, CodeStore, "") }

func Database(cause error) *Error { return Wrap(cause, CodeDatabase, "") }

func Timeout(msg string) *Error { return New(CodeTimeout, msg) }

func Unavailable(msg string, retryAfter time.Duration) *Error {
	e := New(CodeUnavailable, msg)
	e.RetryAfter = retryAfter
	return e
}

func External(service string, cause error) *Error {
	e := Wrap(cause, CodeExternalService, "")
	if service != "" {
		e.Details = map[string]any{"service": service}
	}
	return e
}

func QuotaExceeded(msg string, retryAfter time.Duration) *Error {
	e := New(CodeQuotaExceeded, msg)
	e.RetryAfter = retryAfter
	return e
}

func SubscriptionRequired(msg string) *Error { return New(CodeSubscription, msg) }
func FeatureUnavailable(msg string) *Error   { return New(CodeFeature, msg) }
