package domain

import "errors"

var (
	ErrClassName          = errors.New("ratelimit: limit class name is required")
	ErrClassInterval      = errors.New("ratelimit: limit class interval must be > 0")
	ErrClassMaxRequests   = errors.New("ratelimit: limit class maxRequests must be >= 1")
	ErrClassBlockDuration = errors.New("ratelimit: limit class blockDuration must be >= 0")
	ErrDuplicateClass     = errors.New("ratelimit: duplicate limit class")
	ErrNoDefaultClass     = errors.New("ratelimit: registry has no default class")
)
