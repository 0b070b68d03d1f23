package infra

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"security-gateway/jobqueue/domain"
	"security-gateway/logging"

	"github.com/pkg/errors"
)

var ErrEmptySecret = errors.New("jobqueue: job secret must not be empty")

// Signer gera e verifica tokens de job. É imutável depois de criado.
type Signer struct {
	secret []byte
	now    func() time.Time
}

var _ domain.TokenSigner = (*Signer)(nil)

type SignerOption func(*Signer)

func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *Signer) { s.now = now }
}

func NewSigner(secret []byte, opts ...SignerOption) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	s := &Signer{secret: append([]byte(nil), secret...), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func NewRandomSigner(opts ...SignerOption) (*Signer, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, errors.Wrap(err, "jobqueue: generate job secret")
	}
	return NewSigner(b, opts...)
}

// SignerFromSecret usa o segredo configurado ou gera um aleatório.
// Segredo aleatório quebra a verificação entre processos: fica registrado como aviso.
func SignerFromSecret(secret string, log *logging.Logger, opts ...SignerOption) (*Signer, error) {
	if secret != "" {
		return NewSigner([]byte(secret), opts...)
	}
	s, err := NewRandomSigner(opts...)
	if err != nil {
		return nil, err
	}
	log.Event(logging.LevelWarn, "job_secret_generated",
		"JOB_SECRET not set: generated a random secret, tokens will not verify across instances", nil)
	return s, nil
}

func (s *Signer) Sign(requestID, jobType string, issuedAt time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(requestID))
	mac.Write([]byte{':'})
	mac.Write([]byte(jobType))
	mac.Write([]byte{':'})
	mac.Write([]byte(strconv.FormatInt(issuedAt.UnixMilli(), 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) GenerateJobToken(requestID, jobType string) domain.Token {
	// truncado para ms: é a precisão que viaja no payload
	issuedAt := time.UnixMilli(s.now().UnixMilli())
	return domain.Token{Value: s.Sign(requestID, jobType, issuedAt), IssuedAt: issuedAt}
}

// Verify compara em tempo constante.
func (s *Signer) Verify(requestID, jobType string, issuedAt time.Time, token string) bool {
	want := s.Sign(requestID, jobType, issuedAt)
	return hmac.Equal([]byte(want), []byte(token))
}
