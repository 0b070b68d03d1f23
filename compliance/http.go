package compliance

import (
	"net/http"

	"security-gateway/apperror"
	"security-gateway/jobqueue/domain"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
)

// UserHeader carrega o usuário autenticado; quem preenche é a camada de autenticação.
const UserHeader = "X-User-ID"

type jobResponse struct {
	JobID     string `json:"jobId"`
	Status    string `json:"status"`
	RequestID string `json:"requestId,omitempty"`
}

type exportBody struct {
	Format string `json:"format"`
}

type deletionBody struct {
	Reason string `json:"reason"`
}

// Routes monta /export, /delete e /jobs/{id}. O chamador decide o prefixo.
func Routes(p Producer, errs *apperror.Handler) http.Handler {
	if errs == nil {
		errs = &apperror.Handler{}
	}
	r := chi.NewRouter()

	r.Method(http.MethodPost, "/export", errs.Wrap(func(w http.ResponseWriter, req *http.Request) error {
		var body exportBody
		if err := decodeOptional(req, &body); err != nil {
			return err
		}
		id, err := p.RequestDataExport(req.Context(), req.Header.Get(UserHeader), apperror.RequestID(req.Context()), body.Format)
		if err != nil {
			return err
		}
		return accepted(w, id, req)
	}))

	r.Method(http.MethodPost, "/delete", errs.Wrap(func(w http.ResponseWriter, req *http.Request) error {
		var body deletionBody
		if err := decodeOptional(req, &body); err != nil {
			return err
		}
		id, err := p.RequestDataDeletion(req.Context(), req.Header.Get(UserHeader), apperror.RequestID(req.Context()), body.Reason)
		if err != nil {
			return err
		}
		return accepted(w, id, req)
	}))

	r.Method(http.MethodGet, "/jobs/{id}", errs.Wrap(func(w http.ResponseWriter, req *http.Request) error {
		job, err := p.Queue.GetJobStatus(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			return apperror.Store(err)
		}
		// job de outro usuário responde como inexistente
		if job == nil || job.UserID == "" || job.UserID != req.Header.Get(UserHeader) {
			return apperror.NotFound("job not found")
		}
		return writeJSON(w, http.StatusOK, jobResponse{
			JobID:     job.ID,
			Status:    string(job.Status),
			RequestID: job.Payload.RequestID(),
		})
	}))

	return r
}

func decodeOptional(req *http.Request, v any) error {
	if req.Body == nil || req.ContentLength == 0 {
		return nil
	}
	if err := jsoniter.NewDecoder(req.Body).Decode(v); err != nil {
		return apperror.BadRequest("invalid JSON body")
	}
	return nil
}

func accepted(w http.ResponseWriter, jobID string, req *http.Request) error {
	return writeJSON(w, http.StatusAccepted, jobResponse{
		JobID:     jobID,
		Status:    string(domain.StatusPending),
		RequestID: apperror.RequestID(req.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// cabeçalho já enviado: erro de escrita não tem mais como virar resposta
	_ = jsoniter.NewEncoder(w).Encode(v)
	return nil
}
