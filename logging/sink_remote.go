package logging

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// RemoteSink envia lotes via HTTP POST ({"entries": [...]}) para um coletor.
// Os envios são espaçados por um token bucket para não sobrecarregar o coletor.
type RemoteSink struct {
	client   *resty.Client
	endpoint string
	limiter  *rate.Limiter
}

type RemoteOption func(*RemoteSink)

func WithRemoteHeader(name, value string) RemoteOption {
	return func(s *RemoteSink) { s.client.SetHeader(name, value) }
}

func WithRemoteTimeout(d time.Duration) RemoteOption {
	return func(s *RemoteSink) { s.client.SetTimeout(d) }
}

// WithRemoteRate limita os POSTs a `perSecond` com rajada `burst`.
func WithRemoteRate(perSecond float64, burst int) RemoteOption {
	return func(s *RemoteSink) { s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func NewRemoteSink(endpoint string, opts ...RemoteOption) *RemoteSink {
	s := &RemoteSink{
		client:   resty.New().SetTimeout(5 * time.Second),
		endpoint: endpoint,
		limiter:  rate.NewLimiter(rate.Limit(2), 4),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type remoteBatch struct {
	Entries []Entry `json:"entries"`
}

func (s *RemoteSink) Write(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "logging: remote sink")
	}

	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(remoteBatch{Entries: entries})
	if err != nil {
		return errors.Wrap(err, "logging: encode batch")
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(s.endpoint)
	if err != nil {
		return errors.Wrap(err, "logging: remote sink post")
	}
	if resp.IsError() {
		return errors.Errorf("logging: remote sink returned %d", resp.StatusCode())
	}
	return nil
}

func (s *RemoteSink) Close() error { return nil }
