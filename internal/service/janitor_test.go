package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyDeleter struct {
	mu       sync.Mutex
	failures int
	deleted  []string
}

func (d *flakyDeleter) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return errors.New("store offline")
	}
	d.deleted = append(d.deleted, id)
	return nil
}

func (d *flakyDeleter) Deleted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.deleted...)
}

func TestArtifactJanitorRetriesUntilDeleted(t *testing.T) {
	store := &flakyDeleter{failures: 2}
	janitor := NewArtifactJanitor(store, nil, JanitorConfig{Retries: 5, RetryDelay: 5 * time.Millisecond})
	janitor.Start(context.Background())
	defer janitor.Stop()

	janitor.ScheduleDelete("art-1")
	require.Eventually(t, func() bool { return len(store.Deleted()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"art-1"}, store.Deleted())
}

func TestArtifactJanitorNotStartedDoesNotBlock(t *testing.T) {
	janitor := NewArtifactJanitor(&flakyDeleter{}, nil, JanitorConfig{})
	done := make(chan struct{})
	go func() {
		janitor.ScheduleDelete("art-1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ScheduleDelete blocked")
	}
}

func TestArtifactJanitorLifecycle(t *testing.T) {
	store := &flakyDeleter{}
	janitor := NewArtifactJanitor(store, nil, JanitorConfig{RetryDelay: time.Millisecond})
	janitor.Start(context.Background())

	janitor.ScheduleDelete("during-drain")
	require.Eventually(t, func() bool { return len(store.Deleted()) == 1 }, 2*time.Second, 5*time.Millisecond)

	janitor.Stop()
	janitor.ScheduleDelete("after-stop")
	assert.Equal(t, []string{"during-drain"}, store.Deleted())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	early := NewArtifactJanitor(store, nil, JanitorConfig{})
	early.Start(cancelled)
	defer early.Stop()
	early.ScheduleDelete("cancelled-start")
	assert.Equal(t, []string{"during-drain"}, store.Deleted())
}
