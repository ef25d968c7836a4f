package pacing

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextStaysInWindow(t *testing.T) {
	p := New(1000, 3000)
	p.rng = rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		d := p.Next()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestDegenerateWindow(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, New(500, 500).Next())
	assert.Equal(t, 800*time.Millisecond, New(800, 100).Next())
}

func TestPauseUsesSleep(t *testing.T) {
	p := New(10, 20)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	assert.NoError(t, p.Pause(context.Background()))
	assert.NoError(t, p.Pause(context.Background()))
	assert.Len(t, slept, 2)
}

func TestPauseHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(60000, 60001).Pause(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCounter(t *testing.T) {
	var c Counter
	_ = c.Pause(context.Background())
	_ = c.Pause(context.Background())
	assert.Equal(t, 2, c.Count())
}
