package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rateWindowRepository interface {
	Admit(ctx context.Context, origin string, now time.Time) (bool, error)
}

func rateBackends(limit int, window time.Duration) map[string]func(t *testing.T) rateWindowRepository {
	return map[string]func(t *testing.T) rateWindowRepository{
		"memory": func(t *testing.T) rateWindowRepository {
			return NewMemoryRateWindowRepository(limit, window)
		},
		"redis": func(t *testing.T) rateWindowRepository {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisRateWindowRepository(client, limit, window)
		},
	}
}

func TestRateWindowEleventhAttemptRejected(t *testing.T) {
	for name, newRepo := range rateBackends(10, 5*time.Minute) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

			for i := 0; i < 10; i++ {
				ok, err := repo.Admit(ctx, "203.0.113.7", base.Add(time.Duration(i)*time.Second))
				require.NoError(t, err)
				require.True(t, ok, "attempt %d", i+1)
			}
			ok, err := repo.Admit(ctx, "203.0.113.7", base.Add(20*time.Second))
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = repo.Admit(ctx, "198.51.100.1", base.Add(20*time.Second))
			require.NoError(t, err)
			assert.True(t, ok, "origins are independent")

			ok, err = repo.Admit(ctx, "203.0.113.7", base.Add(5*time.Minute+time.Second))
			require.NoError(t, err)
			assert.True(t, ok, "oldest admission left the window")
		})
	}
}

func TestRateWindowSlides(t *testing.T) {
	for name, newRepo := range rateBackends(2, time.Minute) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

			mustAdmit := func(at time.Duration, want bool) {
				ok, err := repo.Admit(ctx, "o", base.Add(at))
				require.NoError(t, err)
				require.Equal(t, want, ok, "at %s", at)
			}
			mustAdmit(0, true)
			mustAdmit(30*time.Second, true)
			mustAdmit(59*time.Second, false)
			mustAdmit(60*time.Second, true)
			mustAdmit(61*time.Second, false)
			mustAdmit(90*time.Second, true)
		})
	}
}

func TestRateWindowNoOverAdmissionUnderContention(t *testing.T) {
	const limit = 10
	for name, newRepo := range rateBackends(limit, 5*time.Minute) {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			ctx := context.Background()
			now := time.Now()

			var admitted int32
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					ok, err := repo.Admit(ctx, "burst", now)
					if err != nil {
						t.Errorf("admit: %v", err)
						return
					}
					if ok {
						atomic.AddInt32(&admitted, 1)
					}
				}()
			}
			close(start)
			wg.Wait()
			assert.Equal(t, int32(limit), atomic.LoadInt32(&admitted))
		})
	}
}

func TestMemoryRateWindowSweep(t *testing.T) {
	repo := NewMemoryRateWindowRepository(3, time.Minute)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.Admit(ctx, "idle", base)
	require.NoError(t, err)
	_, err = repo.Admit(ctx, "busy", base.Add(50*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, repo.Len())

	assert.Equal(t, 1, repo.Sweep(base.Add(70*time.Second)))
	assert.Equal(t, 1, repo.Len())

	ok, err := repo.Admit(ctx, "idle", base.Add(71*time.Second))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRateWindowKeyExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	repo := NewRedisRateWindowRepository(client, 10, time.Minute)

	ok, err := repo.Admit(context.Background(), "o", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists(rateKey("o")))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(rateKey("o")))
}
