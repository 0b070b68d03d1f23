package infra

import (
	"context"

	"security-gateway/jobqueue/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool de vagas baseado em channel com capacidade `max` (mínimo 1).
func NewChanPool(max int) domain.SlotPool {
	if max < 1 {
		max = 1
	}
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, false
	}
	var released bool
	return func() {
		if released {
			return
		}
		released = true
		<-p.sem
	}, true
}
