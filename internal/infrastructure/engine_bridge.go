package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

// EngineBridge stands in for the download engine inside this process.
// The external engine posts callbacks to it; it tracks the engine's live
// operations and fans each callback out to registered listeners on the caller's goroutine.
type EngineBridge struct {
	validator *EventValidator
	logger    *zap.Logger

	mu        sync.RWMutex
	listeners []domain.EngineListener
	live      map[int64]*domain.Operation
}

// NewEngineBridge creates a bridge. validator may be nil to skip schema checks.
func NewEngineBridge(validator *EventValidator, logger *zap.Logger) *EngineBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineBridge{
		validator: validator,
		logger:    logger,
		live:      make(map[int64]*domain.Operation),
	}
}

// AddListener implements domain.Engine
func (b *EngineBridge) AddListener(l domain.EngineListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.listeners {
		if existing == l {
			return
		}
	}
	b.listeners = append(b.listeners, l)
}

// RemoveListener implements domain.Engine
func (b *EngineBridge) RemoveListener(l domain.EngineListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.listeners {
		if existing == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of registered listeners
func (b *EngineBridge) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// OperationsWithStatus implements domain.Engine
func (b *EngineBridge) OperationsWithStatus(ctx context.Context, statuses []domain.OperationStatus) ([]*domain.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := make(map[domain.OperationStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var ops []*domain.Operation
	for _, op := range b.live {
		if want[op.Status] {
			ops = append(ops, op.Clone())
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	return ops, nil
}

// Ingest validates and decodes a raw callback payload, then publishes it
func (b *EngineBridge) Ingest(payload []byte) (domain.Event, error) {
	if b.validator != nil {
		if err := b.validator.Validate(payload); err != nil {
			return nil, err
		}
	}

	var env domain.EventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	ev, err := env.Event()
	if err != nil {
		return nil, err
	}
	if _, err := domain.NewOperationNotificationID(ev.Operation().ID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}

	b.Publish(ev)
	return ev, nil
}

// Publish records the engine-side state and delivers ev to every listener
func (b *EngineBridge) Publish(ev domain.Event) {
	op := ev.Operation()
	if op == nil {
		return
	}

	b.mu.Lock()
	switch ev.(type) {
	case domain.Cancelled, domain.Deleted, domain.Removed:
		delete(b.live, op.ID)
	default:
		live := op.Clone()
		live.Merge(b.live[op.ID])
		b.live[op.ID] = live
	}
	listeners := make([]domain.EngineListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	b.logger.Debug("Engine event",
		zap.String("kind", string(ev.Kind())),
		zap.Int64("operation_id", op.ID),
		zap.Int("listeners", len(listeners)))

	for _, l := range listeners {
		l.OnEvent(ev)
	}
}
