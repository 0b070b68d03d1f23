package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChanPool_LimitsAndReleases(t *testing.T) {
	p := NewChanPool(1)

	release, ok := p.Acquire(context.Background())
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok = p.Acquire(ctx)
	require.False(t, ok, "expected second acquire to time out")

	release()
	release() // idempotente

	release2, ok := p.Acquire(context.Background())
	require.True(t, ok)
	release2()
}
