package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/temoto/alive/v2"
)

func TestAliveSleep(t *testing.T) {
	t.Parallel()

	a := alive.NewAlive()
	assert.NoError(t, AliveSleep(context.Background(), a, 0))
	assert.NoError(t, AliveSleep(context.Background(), nil, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, AliveSleep(ctx, a, time.Hour))

	go func() {
		time.Sleep(10 * time.Millisecond)
		a.Stop()
	}()
	begin := time.Now()
	assert.Equal(t, ErrStopped, AliveSleep(context.Background(), a, time.Hour))
	assert.True(t, time.Since(begin) < time.Second)
	// stopped alive never sleeps again
	assert.Equal(t, ErrStopped, AliveSleep(context.Background(), a, time.Hour))
}

func TestIntDurationDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, IntSecondDefault(0, 5*time.Second))
	assert.Equal(t, 3*time.Second, IntSecondDefault(3, 5*time.Second))
	assert.Equal(t, time.Second, IntMillisecondDefault(0, time.Second))
	assert.Equal(t, 250*time.Millisecond, IntMillisecondDefault(250, time.Second))
}
