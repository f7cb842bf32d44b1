package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
	"github.com/yourusername/kiwix-monitor-go/pkg/logger"
)

const (
	ActionStartService = "start_download_service"
	ActionStopService  = "stop_download_service"
)

// ServiceCommand is a control request delivered to the running host
type ServiceCommand struct {
	Action      string `json:"action"`
	DisplayName string `json:"display_name,omitempty"`
}

// OperationChange describes one applied mutation
type OperationChange struct {
	Kind      domain.EventKind  `json:"kind"`
	Operation *domain.Operation `json:"operation"`
	Removed   bool              `json:"removed"`
}

// MutationObserver is called on the drain loop after each applied mutation. It must not block.
type MutationObserver func(change OperationChange)

// SessionStatus is a snapshot of the coordinator's lifecycle
type SessionStatus struct {
	SessionID        string `json:"session_id"`
	Running          bool   `json:"running"`
	ListenerAttached bool   `json:"listener_attached"`
	Foreground       bool   `json:"foreground"`
	DisplayName      string `json:"display_name"`
	PendingTasks     int    `json:"pending_tasks"`
}

// SessionCoordinator receives engine events and applies them through the serializer
type SessionCoordinator struct {
	sessionID   string
	repo        domain.OperationRepository
	engine      domain.Engine
	serializer  *EventSerializer
	notifier    *NotificationManager
	foreground  *ForegroundController
	logger      *zap.Logger
	multiLogger *logger.MultiLogger

	mu        sync.Mutex
	running   bool
	stopped   bool
	attached  bool
	observers []MutationObserver
	done      chan struct{}
}

// NewSessionCoordinator creates a coordinator with its serializer, notifier and foreground controller
func NewSessionCoordinator(
	repo domain.OperationRepository,
	engine domain.Engine,
	surface domain.NotificationSurface,
	host domain.ServiceHost,
	config *domain.Config,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) *SessionCoordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if config == nil {
		config = domain.DefaultConfig()
	}

	serializer := NewEventSerializer(log, multiLogger)
	notifier := NewNotificationManager(surface, config.Notification, log)

	var source domain.ActivitySource = StoreActivitySource{Repo: repo}
	if config.Session.ForegroundSource == domain.ForegroundSourceEngine {
		source = EngineActivitySource{Engine: engine}
	}

	c := &SessionCoordinator{
		sessionID:   uuid.New().String(),
		repo:        repo,
		engine:      engine,
		serializer:  serializer,
		notifier:    notifier,
		logger:      log,
		multiLogger: multiLogger,
		done:        make(chan struct{}),
	}
	c.foreground = NewForegroundController(source, host, notifier, serializer.Pending, log, multiLogger)
	c.foreground.SetDisplayName(config.Session.DisplayName)
	return c
}

// Start runs the drain loop, evaluates foreground state from what is already
// persisted, and only then attaches to the engine.
func (c *SessionCoordinator) Start(ctx context.Context, displayName string) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return domain.ErrCoordinatorStopped
	}
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("session coordinator already running")
	}
	c.running = true
	c.mu.Unlock()

	c.foreground.SetDisplayName(displayName)

	if err := c.serializer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event serializer: %w", err)
	}

	err := c.serializer.SubmitWait(ctx, func(ctx context.Context) {
		if _, err := c.foreground.Evaluate(ctx); err != nil {
			c.logError("startup_evaluation_failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("startup evaluation: %w", err)
	}

	c.AttachListener()
	c.logSession("session_started",
		zap.String("session_id", c.sessionID),
		zap.String("display_name", c.foreground.DisplayName()),
		zap.String("state", c.foreground.State().String()))
	return nil
}

// Stop stops accepting events, cancels the drain loop and leaves foreground.
// It then detaches from the engine and drops builder state.
func (c *SessionCoordinator) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return domain.ErrCoordinatorStopped
	}
	c.stopped = true
	c.running = false
	c.mu.Unlock()

	if err := c.serializer.Stop(); err != nil && !errors.Is(err, domain.ErrCoordinatorStopped) {
		c.logger.Warn("Failed to stop event serializer", zap.Error(err))
	}
	// the drain loop has exited, so no evaluation can re-enter foreground
	c.foreground.LeaveForeground("session_stopped")
	c.detachListener()
	c.notifier.Release()
	close(c.done)

	c.logSession("session_stopped", zap.String("session_id", c.sessionID))
	return nil
}

// Done is closed once Stop has completed
func (c *SessionCoordinator) Done() <-chan struct{} {
	return c.done
}

// AttachListener registers the coordinator with the engine. Repeated calls are no-ops.
func (c *SessionCoordinator) AttachListener() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached || c.stopped {
		return
	}
	c.engine.AddListener(c)
	c.attached = true
	c.logSession("listener_attached", zap.String("session_id", c.sessionID))
}

func (c *SessionCoordinator) detachListener() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return
	}
	c.engine.RemoveListener(c)
	c.attached = false
	c.logSession("listener_detached", zap.String("session_id", c.sessionID))
}

// AddObserver registers fn to receive applied mutations
func (c *SessionCoordinator) AddObserver(fn MutationObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// OnEvent implements domain.EngineListener. It submits exactly one task and returns.
func (c *SessionCoordinator) OnEvent(ev domain.Event) {
	if ev == nil || ev.Operation() == nil {
		c.logger.Warn("Ignoring engine event without operation")
		return
	}
	op := ev.Operation().Clone()

	if !c.serializer.Submit(func(ctx context.Context) { c.apply(ctx, ev, op) }) {
		c.logger.Debug("Dropping engine event after stop",
			zap.String("kind", string(ev.Kind())),
			zap.Int64("operation_id", op.ID))
	}
}

// HandleCommand applies a control request from the host
func (c *SessionCoordinator) HandleCommand(ctx context.Context, cmd ServiceCommand) error {
	if cmd.DisplayName != "" {
		c.foreground.SetDisplayName(cmd.DisplayName)
	}

	switch cmd.Action {
	case ActionStopService:
		c.logSession("stop_requested", zap.String("session_id", c.sessionID))
		err := c.Stop()
		c.foreground.ForceBackground("stop_command")
		return err
	case ActionStartService, "":
		c.mu.Lock()
		stopped := c.stopped
		c.mu.Unlock()
		if stopped {
			return domain.ErrCoordinatorStopped
		}
		c.AttachListener()
		if !c.serializer.Submit(c.evaluate) {
			return domain.ErrCoordinatorStopped
		}
		return nil
	default:
		return fmt.Errorf("unknown service action: %s", cmd.Action)
	}
}

// Clear removes a stored record through the drain loop
func (c *SessionCoordinator) Clear(ctx context.Context, id int64) error {
	var result error
	err := c.serializer.SubmitWait(ctx, func(ctx context.Context) {
		existing, err := c.repo.FindByID(id)
		if err != nil {
			result = fmt.Errorf("failed to find operation: %w", err)
			return
		}
		if existing == nil {
			result = domain.ErrOperationNotFound
			return
		}
		if err := c.repo.Remove(id); err != nil {
			result = fmt.Errorf("failed to remove operation: %w", err)
			return
		}
		if err := c.notifier.Cancel(id); err != nil {
			c.logger.Warn("Failed to cancel notification", zap.Int64("operation_id", id), zap.Error(err))
		}
		c.publish(OperationChange{Kind: domain.EventRemoved, Operation: existing, Removed: true})
		c.evaluate(ctx)
	})
	if err != nil {
		return err
	}
	return result
}

// GetOperation returns a stored record
func (c *SessionCoordinator) GetOperation(id int64) (*domain.Operation, error) {
	op, err := c.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, domain.ErrOperationNotFound
	}
	return op, nil
}

// ListOperations lists stored records with optional filters
func (c *SessionCoordinator) ListOperations(filters map[string]interface{}) ([]*domain.Operation, error) {
	return c.repo.FindAll(filters)
}

// GetStats returns per-status counts
func (c *SessionCoordinator) GetStats() (*domain.OperationStats, error) {
	return c.repo.GetStats()
}

// Status returns a lifecycle snapshot
func (c *SessionCoordinator) Status() SessionStatus {
	c.mu.Lock()
	running, attached := c.running, c.attached
	c.mu.Unlock()
	return SessionStatus{
		SessionID:        c.sessionID,
		Running:          running,
		ListenerAttached: attached,
		Foreground:       c.foreground.State() == Foreground,
		DisplayName:      c.foreground.DisplayName(),
		PendingTasks:     c.serializer.Pending(),
	}
}

// SessionID returns the id of this coordinator instance
func (c *SessionCoordinator) SessionID() string {
	return c.sessionID
}

// Notifier returns the notification manager
func (c *SessionCoordinator) Notifier() *NotificationManager {
	return c.notifier
}

// apply runs on the drain loop
func (c *SessionCoordinator) apply(ctx context.Context, ev domain.Event, op *domain.Operation) {
	if op.Status == "" {
		if implied, ok := domain.ImpliedStatus(ev.Kind()); ok {
			op.Status = implied
		}
	}

	var err error
	switch e := ev.(type) {
	case domain.Cancelled, domain.Deleted, domain.Removed:
		err = c.removeOperation(ev.Kind(), op)
	case domain.Completed:
		op.MarkCompleted()
		err = c.finishOperation(ev.Kind(), op)
	case domain.Errored:
		op.MarkFailed(e.Err)
		err = c.finishOperation(ev.Kind(), op)
	case domain.Paused:
		op.Status = domain.StatusPaused
		err = c.updateOperation(ev.Kind(), op, c.notifier.ShowPaused)
	case domain.Added, domain.Queued, domain.Started, domain.Resumed,
		domain.Progress, domain.BlockUpdated, domain.WaitingNetwork:
		err = c.updateOperation(ev.Kind(), op, c.notifier.ShowProgress)
	default:
		err = fmt.Errorf("%w: unhandled event %T", domain.ErrInvalidEvent, ev)
	}

	if err != nil {
		c.logger.Error("Failed to apply engine event",
			zap.String("kind", string(ev.Kind())),
			zap.Int64("operation_id", op.ID),
			zap.Error(err))
		if c.multiLogger != nil {
			c.multiLogger.LogAppError("apply_event_failed",
				zap.String("kind", string(ev.Kind())),
				zap.Int64("operation_id", op.ID),
				zap.Error(err))
		}
		return
	}

	c.evaluate(ctx)
}

func (c *SessionCoordinator) updateOperation(kind domain.EventKind, op *domain.Operation, show func(*domain.Operation) error) error {
	if err := c.mergeStored(op); err != nil {
		return err
	}
	op.Normalize()
	if _, err := c.repo.Upsert(op); err != nil {
		return fmt.Errorf("failed to upsert operation: %w", err)
	}
	if err := show(op); err != nil {
		c.logger.Warn("Failed to post notification", zap.Int64("operation_id", op.ID), zap.Error(err))
	}
	c.publish(OperationChange{Kind: kind, Operation: op})
	return nil
}

func (c *SessionCoordinator) finishOperation(kind domain.EventKind, op *domain.Operation) error {
	if err := c.mergeStored(op); err != nil {
		return err
	}
	title, err := c.resolveTitle(op)
	if err != nil {
		c.logger.Warn("Failed to resolve title", zap.Int64("operation_id", op.ID), zap.Error(err))
		title = op.DisplayTitle()
	}
	if op.Title == "" {
		op.Title = title
	}

	op.Normalize()
	changed, err := c.repo.Upsert(op)
	if err != nil {
		return fmt.Errorf("failed to upsert operation: %w", err)
	}
	if !changed {
		c.logger.Debug("Terminal state already recorded",
			zap.Int64("operation_id", op.ID), zap.String("status", string(op.Status)))
		return nil
	}

	if err := c.notifier.ShowCompleted(op, title); err != nil {
		c.logger.Warn("Failed to post completed notification", zap.Int64("operation_id", op.ID), zap.Error(err))
	}
	c.logSession("operation_finished",
		zap.Int64("operation_id", op.ID),
		zap.String("status", string(op.Status)),
		zap.String("title", title))
	c.publish(OperationChange{Kind: kind, Operation: op})
	return nil
}

// mergeStored keeps what the store already knows about op when the event omits it
func (c *SessionCoordinator) mergeStored(op *domain.Operation) error {
	stored, err := c.repo.FindByID(op.ID)
	if err != nil {
		return fmt.Errorf("failed to load operation: %w", err)
	}
	op.Merge(stored)
	return nil
}

func (c *SessionCoordinator) removeOperation(kind domain.EventKind, op *domain.Operation) error {
	if err := c.repo.Remove(op.ID); err != nil {
		return fmt.Errorf("failed to remove operation: %w", err)
	}
	if err := c.notifier.Cancel(op.ID); err != nil {
		c.logger.Warn("Failed to cancel notification", zap.Int64("operation_id", op.ID), zap.Error(err))
	}
	c.publish(OperationChange{Kind: kind, Operation: op, Removed: true})
	return nil
}

// resolveTitle finds a human title for op when the engine no longer carries one
func (c *SessionCoordinator) resolveTitle(op *domain.Operation) (string, error) {
	if key := domain.TitleKey(op); key != "" {
		stored, err := c.repo.FindByFileName(key)
		if err != nil {
			return "", err
		}
		if stored != nil && stored.Title != "" {
			return stored.Title, nil
		}
	}

	stored, err := c.repo.FindByID(op.ID)
	if err != nil {
		return "", err
	}
	if stored != nil && stored.Title != "" {
		return stored.Title, nil
	}

	if op.Title != "" {
		return op.Title, nil
	}
	if op.FileRef != "" {
		return filepath.Base(op.FileRef), nil
	}
	return fmt.Sprintf("Download %d", op.ID), nil
}

func (c *SessionCoordinator) evaluate(ctx context.Context) {
	if _, err := c.foreground.Evaluate(ctx); err != nil {
		c.logError("foreground_evaluation_failed", err)
	}
}

func (c *SessionCoordinator) publish(change OperationChange) {
	c.mu.Lock()
	observers := make([]MutationObserver, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	change.Operation = change.Operation.Clone()
	for _, fn := range observers {
		fn(change)
	}
}

func (c *SessionCoordinator) logSession(event string, fields ...zap.Field) {
	if c.multiLogger != nil {
		c.multiLogger.LogSessionEvent(event, fields...)
	}
}

func (c *SessionCoordinator) logError(event string, err error) {
	c.logger.Error("Session error", zap.String("event", event), zap.Error(err))
	if c.multiLogger != nil {
		c.multiLogger.LogAppError(event, zap.String("session_id", c.sessionID), zap.Error(err))
	}
}
