package compliance

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"security-gateway/jobqueue/application"
	"security-gateway/jobqueue/domain"
	"security-gateway/logging"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var errNoUser = errors.New("compliance: job has no userId")

// Exporter produz o arquivo de exportação e devolve onde ele ficou.
type Exporter interface {
	Export(ctx context.Context, userID, format string) (string, error)
}

type Deleter interface {
	Delete(ctx context.Context, userID string) error
}

func ExportHandler(exp Exporter, log *logging.Logger) application.Handler {
	return func(ctx context.Context, job *domain.Job) error {
		if job.UserID == "" {
			return errNoUser
		}
		location, err := exp.Export(ctx, job.UserID, job.Payload.String("format"))
		if err != nil {
			return errors.Wrap(err, "compliance: export")
		}
		log.Audit("data_exported", logging.Fields{
			"jobId":     job.ID,
			"userId":    job.UserID,
			"requestId": job.Payload.RequestID(),
			"location":  location,
		})
		return nil
	}
}

func DeletionHandler(del Deleter, log *logging.Logger) application.Handler {
	return func(ctx context.Context, job *domain.Job) error {
		if job.UserID == "" {
			return errNoUser
		}
		if err := del.Delete(ctx, job.UserID); err != nil {
			return errors.Wrap(err, "compliance: delete")
		}
		log.Audit("data_deleted", logging.Fields{
			"jobId":     job.ID,
			"userId":    job.UserID,
			"requestId": job.Payload.RequestID(),
			"reason":    job.Payload.String("reason"),
		})
		return nil
	}
}

// FileExporter grava um manifesto JSON por exportação em Dir.
// Os dados do usuário vêm da camada de dados, fora deste serviço.
type FileExporter struct {
	Dir string
	Now func() time.Time
}

type exportManifest struct {
	UserID     string    `json:"userId"`
	Format     string    `json:"format"`
	ExportedAt time.Time `json:"exportedAt"`
}

func (e FileExporter) Export(_ context.Context, userID, format string) (string, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	at := now().UTC()
	if err := os.MkdirAll(e.Dir, 0o750); err != nil {
		return "", err
	}
	path := filepath.Join(e.Dir, filepath.Base(userID)+"-"+at.Format("20060102T150405Z")+".json")
	data, err := jsoniter.Marshal(exportManifest{UserID: userID, Format: format, ExportedAt: at})
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o640)
}

// AuditDeleter só registra a exclusão. Serve para ambientes sem camada de dados.
type AuditDeleter struct {
	Log *logging.Logger
}

func (d AuditDeleter) Delete(_ context.Context, userID string) error {
	d.Log.Audit("data_deletion_recorded", logging.Fields{"userId": userID})
	return nil
}
