package app

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

// NotificationManager posts and cancels per-operation notifications.
// Builders are kept per notification id and reused across updates.
type NotificationManager struct {
	surface domain.NotificationSurface
	logger  *zap.Logger

	mu       sync.Mutex
	config   domain.NotificationConfig
	builders map[domain.NotificationID]*domain.Notification
}

// NewNotificationManager creates a new notification manager
func NewNotificationManager(surface domain.NotificationSurface, config domain.NotificationConfig, log *zap.Logger) *NotificationManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationManager{
		surface:  surface,
		config:   withNotificationDefaults(config),
		logger:   log,
		builders: make(map[domain.NotificationID]*domain.Notification),
	}
}

func withNotificationDefaults(config domain.NotificationConfig) domain.NotificationConfig {
	if config.ChannelID == "" {
		config.ChannelID = domain.DefaultChannelID
	}
	if config.ChannelName == "" {
		config.ChannelName = "Downloads"
	}
	if config.CompletedTimeout <= 0 {
		config.CompletedTimeout = domain.DefaultCompletedTimeout
	}
	return config
}

// SetConfig replaces the notification settings; used on config reload
func (m *NotificationManager) SetConfig(config domain.NotificationConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = withNotificationDefaults(config)
}

// ChannelID returns the channel notifications are posted to
func (m *NotificationManager) ChannelID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.ChannelID
}

// EnsureChannel creates the notification channel if the surface does not have it yet
func (m *NotificationManager) EnsureChannel() error {
	m.mu.Lock()
	config := m.config
	m.mu.Unlock()

	if m.surface.ChannelExists(config.ChannelID) {
		return nil
	}
	return m.surface.CreateChannel(domain.NotificationChannel{
		ID:          config.ChannelID,
		Name:        config.ChannelName,
		Description: "Download progress and results",
		Importance:  domain.ImportanceHigh,
		Sound:       false,
		Vibration:   false,
	})
}

// ShowProgress posts the ongoing progress notification at the operation's base id
func (m *NotificationManager) ShowProgress(op *domain.Operation) error {
	ids, err := domain.NewOperationNotificationID(op.ID)
	if err != nil {
		return err
	}

	return m.post(ids.Base(), func(n *domain.Notification) {
		n.Title = op.DisplayTitle()
		n.Text = progressText(op)
		n.Progress = op.Progress
		n.ProgressMax = 100
		n.Indeterminate = op.Status != domain.StatusDownloading
		n.Ongoing = true
		n.AutoCancel = false
		n.OnlyAlertOnce = true
		n.Silent = true
		n.Group = strconv.FormatInt(op.ID, 10)
		n.TimeoutAfter = 0
		n.Intent = nil
	})
}

// ShowPaused replaces the progress notification with a dismissible paused one
func (m *NotificationManager) ShowPaused(op *domain.Operation) error {
	ids, err := domain.NewOperationNotificationID(op.ID)
	if err != nil {
		return err
	}

	return m.post(ids.Base(), func(n *domain.Notification) {
		n.Title = op.DisplayTitle()
		n.Text = "Paused"
		n.Progress = op.Progress
		n.ProgressMax = 100
		n.Indeterminate = false
		n.Ongoing = false
		n.AutoCancel = false
		n.OnlyAlertOnce = true
		n.Silent = true
		n.Group = strconv.FormatInt(op.ID, 10)
		n.TimeoutAfter = 0
		n.Intent = nil
	})
}

// ShowCompleted posts the result notification at the completed id.
// The stale completed id and the base id are cancelled first.
func (m *NotificationManager) ShowCompleted(op *domain.Operation, title string) error {
	ids, err := domain.NewOperationNotificationID(op.ID)
	if err != nil {
		return err
	}

	if err := m.cancel(ids.StaleCompleted()); err != nil {
		m.logger.Warn("Failed to cancel stale completed notification",
			zap.Int64("operation_id", op.ID), zap.Error(err))
	}
	if err := m.cancel(ids.Base()); err != nil {
		m.logger.Warn("Failed to cancel progress notification",
			zap.Int64("operation_id", op.ID), zap.Error(err))
	}

	if title == "" {
		title = op.DisplayTitle()
	}
	text := "Download complete"
	if op.Status == domain.StatusError {
		text = "Download failed"
		if op.ErrorMessage != "" {
			text = fmt.Sprintf("Download failed: %s", op.ErrorMessage)
		}
	}

	m.mu.Lock()
	timeout := m.config.CompletedTimeout
	m.mu.Unlock()

	return m.post(ids.Completed(), func(n *domain.Notification) {
		n.Title = title
		n.Text = text
		n.Progress = 0
		n.ProgressMax = 0
		n.Indeterminate = false
		n.Ongoing = false
		n.AutoCancel = true
		n.OnlyAlertOnce = false
		n.Silent = true
		n.Group = ""
		n.TimeoutAfter = timeout
		n.Intent = &domain.NotificationIntent{
			Action: domain.ActionOpenDownload,
			Extras: map[string]string{
				"title_key":    domain.TitleKey(op),
				"operation_id": strconv.FormatInt(op.ID, 10),
			},
		}
	})
}

// Cancel removes the progress notification of an operation. Completed notifications are left alone.
func (m *NotificationManager) Cancel(operationID int64) error {
	ids, err := domain.NewOperationNotificationID(operationID)
	if err != nil {
		return err
	}
	return m.cancel(ids.Base())
}

// Release drops all builder state
func (m *NotificationManager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.builders = make(map[domain.NotificationID]*domain.Notification)
}

// BuilderCount returns the number of live builders
func (m *NotificationManager) BuilderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.builders)
}

// post updates the builder for id and posts a snapshot of it
func (m *NotificationManager) post(id domain.NotificationID, update func(n *domain.Notification)) error {
	if id == domain.ForegroundNotificationID {
		return domain.ErrReservedNotificationID
	}

	m.mu.Lock()
	if !m.config.Enabled {
		m.mu.Unlock()
		return nil
	}
	channelID := m.config.ChannelID
	m.mu.Unlock()

	if err := m.EnsureChannel(); err != nil {
		return fmt.Errorf("failed to create notification channel: %w", err)
	}

	m.mu.Lock()
	b, ok := m.builders[id]
	if !ok {
		b = &domain.Notification{ID: id}
		m.builders[id] = b
	}
	b.ChannelID = channelID
	update(b)
	b.PostedAt = time.Now()
	snapshot := *b
	if b.Intent != nil {
		intent := *b.Intent
		snapshot.Intent = &intent
	}
	m.mu.Unlock()

	return m.surface.Notify(id, snapshot)
}

func (m *NotificationManager) cancel(id domain.NotificationID) error {
	m.mu.Lock()
	delete(m.builders, id)
	m.mu.Unlock()
	return m.surface.Cancel(id)
}

func progressText(op *domain.Operation) string {
	switch op.Status {
	case domain.StatusDownloading:
		if op.TotalBytes > 0 {
			return fmt.Sprintf("%d%% of %s", op.Progress, formatBytes(op.TotalBytes))
		}
		return fmt.Sprintf("%d%%", op.Progress)
	case domain.StatusWaitingOnNetwork:
		return "Waiting for network"
	case domain.StatusPaused:
		return "Paused"
	default:
		return "Pending"
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
