package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
	"github.com/yourusername/kiwix-monitor-go/pkg/logger"
)

// ForegroundState is the host's service mode
type ForegroundState int

const (
	Background ForegroundState = iota
	Foreground
)

func (s ForegroundState) String() string {
	if s == Foreground {
		return "foreground"
	}
	return "background"
}

// StoreActivitySource answers the active-set question from the persisted records
type StoreActivitySource struct {
	Repo domain.OperationRepository
}

// ActiveOperations implements domain.ActivitySource
func (s StoreActivitySource) ActiveOperations(ctx context.Context) ([]*domain.Operation, error) {
	return s.Repo.ListActive()
}

// EngineActivitySource answers the active-set question from the engine's live operations
type EngineActivitySource struct {
	Engine domain.Engine
}

// ActiveOperations implements domain.ActivitySource
func (s EngineActivitySource) ActiveOperations(ctx context.Context) ([]*domain.Operation, error) {
	return s.Engine.OperationsWithStatus(ctx, domain.ActiveStatuses)
}

// ForegroundController moves the host in and out of foreground mode based on the active set
type ForegroundController struct {
	source      domain.ActivitySource
	host        domain.ServiceHost
	notifier    *NotificationManager
	pending     func() int
	logger      *zap.Logger
	multiLogger *logger.MultiLogger

	mu          sync.Mutex
	state       ForegroundState
	evaluated   bool
	displayName string
	activeCount int
}

// NewForegroundController creates a controller starting in Background.
// pending reports work still queued behind the current task; nil means none.
func NewForegroundController(
	source domain.ActivitySource,
	host domain.ServiceHost,
	notifier *NotificationManager,
	pending func() int,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) *ForegroundController {
	if log == nil {
		log = zap.NewNop()
	}
	if pending == nil {
		pending = func() int { return 0 }
	}
	return &ForegroundController{
		source:      source,
		host:        host,
		notifier:    notifier,
		pending:     pending,
		logger:      log,
		multiLogger: multiLogger,
		state:       Background,
	}
}

// Evaluate recomputes the active set and transitions if needed.
// Returns the state after evaluation.
func (c *ForegroundController) Evaluate(ctx context.Context) (ForegroundState, error) {
	active, err := c.source.ActiveOperations(ctx)
	if err != nil {
		return c.State(), fmt.Errorf("failed to query active operations: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	first := !c.evaluated
	c.evaluated = true
	c.activeCount = len(active)

	switch {
	case len(active) > 0 && c.state == Background:
		if err := c.enterForegroundLocked(); err != nil {
			return c.state, err
		}
	case len(active) == 0 && (c.state == Foreground || first):
		c.leaveForegroundLocked("idle")
	}
	return c.state, nil
}

// SetDisplayName changes the summary title. The foreground notification is refreshed when shown.
func (c *ForegroundController) SetDisplayName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == "" || name == c.displayName {
		return
	}
	c.displayName = name
	if c.state == Foreground {
		if err := c.host.StartForeground(domain.ForegroundNotificationID, c.summaryLocked()); err != nil {
			c.logger.Warn("Failed to refresh foreground notification", zap.Error(err))
		}
	}
}

// ForceBackground leaves foreground mode regardless of the active set and stops the host
func (c *ForegroundController) ForceBackground(reason string) {
	c.LeaveForeground(reason)
	c.host.StopSelf()
}

// LeaveForeground drops foreground mode regardless of the active set. The host keeps running.
func (c *ForegroundController) LeaveForeground(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluated = true
	if c.state == Foreground {
		if err := c.host.StopForeground(); err != nil {
			c.logger.Warn("Failed to stop foreground", zap.Error(err))
		}
		c.state = Background
	}
	c.logSession("foreground_forced_off", zap.String("reason", reason))
}

// State returns the current state
func (c *ForegroundController) State() ForegroundState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DisplayName returns the summary title
func (c *ForegroundController) DisplayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayName
}

func (c *ForegroundController) enterForegroundLocked() error {
	if c.notifier != nil {
		if err := c.notifier.EnsureChannel(); err != nil {
			return fmt.Errorf("failed to create notification channel: %w", err)
		}
	}
	if err := c.host.StartForeground(domain.ForegroundNotificationID, c.summaryLocked()); err != nil {
		return fmt.Errorf("failed to enter foreground: %w", err)
	}
	c.state = Foreground
	c.logger.Info("Entered foreground", zap.Int("active", c.activeCount))
	c.logSession("foreground_entered", zap.Int("active", c.activeCount))
	return nil
}

func (c *ForegroundController) leaveForegroundLocked(reason string) {
	if c.state == Foreground {
		if err := c.host.StopForeground(); err != nil {
			c.logger.Warn("Failed to stop foreground", zap.Error(err))
		}
		c.state = Background
		c.logger.Info("Left foreground", zap.String("reason", reason))
		c.logSession("foreground_left", zap.String("reason", reason))
	}

	if pending := c.pending(); pending > 0 {
		c.logger.Debug("Work pending, host kept alive", zap.Int("pending", pending))
		return
	}
	c.host.StopSelf()
}

func (c *ForegroundController) summaryLocked() domain.Notification {
	title := c.displayName
	if title == "" {
		title = "Downloads"
	}
	text := "Downloading"
	if c.activeCount > 1 {
		text = fmt.Sprintf("%d downloads in progress", c.activeCount)
	}
	channelID := domain.DefaultChannelID
	if c.notifier != nil {
		channelID = c.notifier.ChannelID()
	}
	return domain.Notification{
		ID:            domain.ForegroundNotificationID,
		ChannelID:     channelID,
		Title:         title,
		Text:          text,
		Indeterminate: true,
		Ongoing:       true,
		OnlyAlertOnce: true,
		Silent:        true,
		GroupSummary:  true,
		PostedAt:      time.Now(),
	}
}

func (c *ForegroundController) logSession(event string, fields ...zap.Field) {
	if c.multiLogger != nil {
		c.multiLogger.LogSessionEvent(event, fields...)
	}
}
