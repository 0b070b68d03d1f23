package logging

import (
	"context"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// FileSink grava JSON lines em modo append.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *jsoniter.Encoder
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, errors.Wrapf(err, "logging: open %s", path)
	}
	return &FileSink{
		f:   f,
		enc: jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(f),
	}, nil
}

func (s *FileSink) Write(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if err := s.enc.Encode(e); err != nil {
			return errors.Wrap(err, "logging: write entry")
		}
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
