package compliance

import (
	"context"
	"strings"

	"security-gateway/apperror"
	"security-gateway/jobqueue/domain"
	"security-gateway/logging"

	"github.com/google/uuid"
)

const (
	JobDataExport   = "data_export"
	JobDataDeletion = "data_deletion"
)

var exportFormats = map[string]bool{"json": true, "csv": true}

type Producer struct {
	Queue  domain.Queue
	Signer domain.TokenSigner
	Log    *logging.Logger
}

// RequestDataExport enfileira a exportação. requestID vazio gera um novo.
func (p Producer) RequestDataExport(ctx context.Context, userID, requestID, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "json"
	}
	if !exportFormats[format] {
		return "", apperror.Validation("unsupported export format", map[string]any{"format": format})
	}
	return p.enqueue(ctx, JobDataExport, userID, requestID, map[string]any{"format": format})
}

func (p Producer) RequestDataDeletion(ctx context.Context, userID, requestID, reason string) (string, error) {
	return p.enqueue(ctx, JobDataDeletion, userID, requestID, map[string]any{"reason": reason})
}

func (p Producer) enqueue(ctx context.Context, jobType, userID, requestID string, data map[string]any) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", apperror.Validation("userId is required", map[string]any{"userId": "required"})
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	token := p.Signer.GenerateJobToken(requestID, jobType)
	payload := domain.NewPayload(requestID, token, data)

	id, err := p.Queue.Enqueue(ctx, jobType, payload, domain.WithUserID(userID))
	if err != nil {
		// falha de enfileiramento precisa chegar ao chamador
		return "", apperror.Wrap(err, apperror.CodeUnavailable, "Could not schedule the request, please retry")
	}
	p.Log.Audit(jobType+"_requested", logging.Fields{"jobId": id, "userId": userID, "requestId": requestID})
	return id, nil
}
