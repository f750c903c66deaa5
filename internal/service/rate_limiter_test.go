package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/imgdrop/internal/repository"
	appErrors "github.com/noah-isme/imgdrop/pkg/errors"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestRateLimiterEleventhAttemptInWindowRejected(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	metrics := NewMetricsService()
	limiter := NewRateLimiter(repository.NewMemoryRateWindowRepository(10, 5*time.Minute), nil, metrics)
	limiter.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := limiter.Admit(ctx, "198.51.100.4")
		require.NoError(t, err)
		require.True(t, ok, "attempt %d", i+1)
		clock.Advance(10 * time.Second)
	}
	ok, err := limiter.Admit(ctx, "198.51.100.4")
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(5 * time.Minute)
	ok, err = limiter.Admit(ctx, "198.51.100.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingRateStore struct{}

func (failingRateStore) Admit(ctx context.Context, origin string, now time.Time) (bool, error) {
	return false, errors.New("connection refused")
}

func TestRateLimiterStoreFailure(t *testing.T) {
	limiter := NewRateLimiter(failingRateStore{}, nil, nil)
	_, err := limiter.Admit(context.Background(), "o")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStoreUnavailable.Code, appErrors.FromError(err).Code)
}

func TestRateLimiterSweeperStopsWithContext(t *testing.T) {
	store := repository.NewMemoryRateWindowRepository(1, time.Millisecond)
	limiter := NewRateLimiter(store, nil, nil)
	_, err := limiter.Admit(context.Background(), "o")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		limiter.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
