package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
	"github.com/yourusername/kiwix-monitor-go/pkg/logger"
)

// Task is a unit of work executed on the drain loop
type Task func(ctx context.Context)

// EventSerializer runs submitted tasks one at a time in submission order.
// The queue is unbounded; Submit never blocks.
type EventSerializer struct {
	logger      *zap.Logger
	multiLogger *logger.MultiLogger

	mu       sync.Mutex
	queue    []Task
	running  bool
	stopped  bool
	cancel   context.CancelFunc
	signal   chan struct{}
	stopCh   chan struct{}
	workerWg sync.WaitGroup
}

// NewEventSerializer creates a serializer. Tasks submitted before Start are kept until it runs.
func NewEventSerializer(log *zap.Logger, multiLogger *logger.MultiLogger) *EventSerializer {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventSerializer{
		logger:      log,
		multiLogger: multiLogger,
		signal:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
	}
}

// Start starts the drain loop
func (s *EventSerializer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return domain.ErrCoordinatorStopped
	}
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("event serializer already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.workerWg.Add(1)
	go s.drain(ctx)

	s.wake()
	return nil
}

// Stop cancels the drain loop. The in-flight task finishes; queued tasks are dropped.
func (s *EventSerializer) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return domain.ErrCoordinatorStopped
	}
	s.stopped = true
	s.running = false
	dropped := len(s.queue)
	s.queue = nil
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.workerWg.Wait()
	close(s.stopCh)

	if s.multiLogger != nil {
		s.multiLogger.LogSessionEvent("serializer_stopped", zap.Int("dropped_tasks", dropped))
	}
	return nil
}

// Submit appends task to the queue. Returns false once the serializer has stopped.
func (s *EventSerializer) Submit(task Task) bool {
	if task == nil {
		return false
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, task)
	s.mu.Unlock()

	s.wake()
	return true
}

// SubmitWait submits task and blocks until it has run, ctx is done, or Stop drops it
func (s *EventSerializer) SubmitWait(ctx context.Context, task Task) error {
	done := make(chan struct{})
	ok := s.Submit(func(ctx context.Context) {
		defer close(done)
		task(ctx)
	})
	if !ok {
		return domain.ErrCoordinatorStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		select {
		case <-done:
			return nil
		default:
			return domain.ErrCoordinatorStopped
		}
	}
}

// Pending returns the number of queued tasks, not counting the one running
func (s *EventSerializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// IsRunning returns whether the drain loop is running
func (s *EventSerializer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *EventSerializer) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *EventSerializer) drain(ctx context.Context) {
	defer s.workerWg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
		}

		for {
			if ctx.Err() != nil {
				return
			}
			task := s.next()
			if task == nil {
				break
			}
			s.run(ctx, task)
		}
	}
}

func (s *EventSerializer) next() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	task := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return task
}

// run executes one task; a panic is logged and the loop continues
func (s *EventSerializer) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Task panicked", zap.Any("panic", r), zap.Stack("stack"))
			if s.multiLogger != nil {
				s.multiLogger.LogAppError("task_panicked", zap.Any("panic", r))
			}
		}
	}()
	task(ctx)
}
