package domain

import "errors"

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrMissingRequestID = errors.New("payload requires requestId")
	ErrMissingJobToken  = errors.New("payload requires jobToken (use GenerateJobToken)")
	ErrEmptyJobType     = errors.New("job type must not be empty")
	ErrNoHandler        = errors.New("no handler registered for job type")
	// ErrInvalidTransition: o job não está no estado que a operação exige
	// (ex: CompleteJob em job já devolvido para a fila ou concluído).
	ErrInvalidTransition = errors.New("invalid job status transition")
)
