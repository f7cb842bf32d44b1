package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

func TestEventSerializer_RunsInSubmissionOrder(t *testing.T) {
	s := NewEventSerializer(nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var mu sync.Mutex
	var seen []int
	for i := 0; i < 100; i++ {
		i := i
		assert.True(t, s.Submit(func(ctx context.Context) {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, s.SubmitWait(context.Background(), func(ctx context.Context) {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 100)
	for i, v := range seen {
		assert.Equal(t, i, v)
	}
}

func TestEventSerializer_SubmitBeforeStartRunsOnStart(t *testing.T) {
	s := NewEventSerializer(nil, nil)
	ran := make(chan struct{})
	assert.True(t, s.Submit(func(ctx context.Context) { close(ran) }))
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued task did not run after start")
	}
}

func TestEventSerializer_PanicDoesNotStopDrainLoop(t *testing.T) {
	s := NewEventSerializer(nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.Submit(func(ctx context.Context) { panic("boom") })

	ran := false
	require.NoError(t, s.SubmitWait(context.Background(), func(ctx context.Context) { ran = true }))
	assert.True(t, ran)
}

func TestEventSerializer_StopDropsQueuedTasks(t *testing.T) {
	s := NewEventSerializer(nil, nil)
	require.NoError(t, s.Start(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	s.Submit(func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	dropped := false
	for i := 0; i < 5; i++ {
		s.Submit(func(ctx context.Context) { dropped = true })
	}
	assert.Equal(t, 5, s.Pending())

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	// Stop waits for the in-flight task
	select {
	case <-stopped:
		t.Fatal("stop returned before in-flight task finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-stopped

	assert.False(t, dropped)
	assert.Equal(t, 0, s.Pending())
	assert.False(t, s.IsRunning())
}

func TestEventSerializer_SubmitWaitReturnsWhenStopDropsTask(t *testing.T) {
	s := NewEventSerializer(nil, nil)
	require.NoError(t, s.Start(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	s.Submit(func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	ran := false
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- s.SubmitWait(context.Background(), func(ctx context.Context) { ran = true })
	}()
	require.Eventually(t, func() bool { return s.Pending() == 1 }, time.Second, 5*time.Millisecond)

	go s.Stop()
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	close(release)

	select {
	case err := <-waitErr:
		assert.ErrorIs(t, err, domain.ErrCoordinatorStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("SubmitWait still blocked after Stop dropped its task")
	}
	assert.False(t, ran)
}

func TestEventSerializer_SubmitWaitInFlightDuringStop(t *testing.T) {
	s := NewEventSerializer(nil, nil)
	require.NoError(t, s.Start(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- s.SubmitWait(context.Background(), func(ctx context.Context) {
			close(started)
			<-release
		})
	}()
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	close(release)
	<-stopped

	assert.NoError(t, <-waitErr, "a task that ran reports success even when Stop races it")
}

func TestEventSerializer_SubmitAfterStop(t *testing.T) {
	s := NewEventSerializer(nil, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	assert.False(t, s.Submit(func(ctx context.Context) {}))
	assert.ErrorIs(t, s.SubmitWait(context.Background(), func(ctx context.Context) {}), domain.ErrCoordinatorStopped)
	assert.ErrorIs(t, s.Stop(), domain.ErrCoordinatorStopped)
	assert.ErrorIs(t, s.Start(context.Background()), domain.ErrCoordinatorStopped)
}

func TestEventSerializer_StartTwice(t *testing.T) {
	s := NewEventSerializer(nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestEventSerializer_ConcurrentSubmittersNeverOverlap(t *testing.T) {
	s := NewEventSerializer(nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var mu sync.Mutex
	inFlight, peak, count := 0, 0, 0

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Submit(func(ctx context.Context) {
					mu.Lock()
					inFlight++
					if inFlight > peak {
						peak = inFlight
					}
					mu.Unlock()

					time.Sleep(10 * time.Microsecond)

					mu.Lock()
					inFlight--
					count++
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, s.SubmitWait(context.Background(), func(ctx context.Context) {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 400, count)
	assert.Equal(t, 1, peak)
}
