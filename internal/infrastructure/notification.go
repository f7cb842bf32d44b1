package infrastructure

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
	"go.uber.org/zap"
)

// NotificationCenter is the process-local notification tray.
// Result notifications are also forwarded to the desktop when a method is configured.
type NotificationCenter struct {
	logger *zap.Logger
	run    func(name string, args ...string) error

	mu       sync.Mutex
	config   domain.NotificationConfig
	tray     map[domain.NotificationID]domain.Notification
	timers   map[domain.NotificationID]*time.Timer
	channels map[string]domain.NotificationChannel
}

// NewNotificationCenter creates a new notification center
func NewNotificationCenter(config domain.NotificationConfig, logger *zap.Logger) *NotificationCenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationCenter{
		logger:   logger,
		run:      runCommand,
		config:   config,
		tray:     make(map[domain.NotificationID]domain.Notification),
		timers:   make(map[domain.NotificationID]*time.Timer),
		channels: make(map[string]domain.NotificationChannel),
	}
}

// SetConfig replaces the notification settings; used on config reload
func (c *NotificationCenter) SetConfig(config domain.NotificationConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = config
}

// Notify implements domain.NotificationSurface
func (c *NotificationCenter) Notify(id domain.NotificationID, n domain.Notification) error {
	n.ID = id
	if n.PostedAt.IsZero() {
		n.PostedAt = time.Now()
	}

	c.mu.Lock()
	if _, ok := c.channels[n.ChannelID]; !ok && n.ChannelID != "" {
		c.mu.Unlock()
		return fmt.Errorf("notification channel %q does not exist", n.ChannelID)
	}
	c.tray[id] = n
	c.stopTimerLocked(id)
	if n.TimeoutAfter > 0 {
		c.timers[id] = time.AfterFunc(n.TimeoutAfter, func() { c.expire(id, n.PostedAt) })
	}
	config := c.config
	c.mu.Unlock()

	c.logger.Debug("Notification posted",
		zap.Int64("id", int64(id)),
		zap.String("title", n.Title),
		zap.String("text", n.Text))

	if n.AutoCancel && !n.Ongoing {
		c.send(config, n.Title, n.Text)
	}
	return nil
}

// Cancel implements domain.NotificationSurface
func (c *NotificationCenter) Cancel(id domain.NotificationID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked(id)
	delete(c.tray, id)
	return nil
}

// ChannelExists implements domain.NotificationSurface
func (c *NotificationCenter) ChannelExists(channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channelID]
	return ok
}

// CreateChannel implements domain.NotificationSurface
func (c *NotificationCenter) CreateChannel(channel domain.NotificationChannel) error {
	if channel.ID == "" {
		return fmt.Errorf("notification channel id is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel.ID] = channel
	c.logger.Info("Notification channel created",
		zap.String("channel_id", channel.ID),
		zap.String("name", channel.Name))
	return nil
}

// Get returns the notification currently shown at id
func (c *NotificationCenter) Get(id domain.NotificationID) (domain.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.tray[id]
	return n, ok
}

// List returns the notifications currently in the tray ordered by id
func (c *NotificationCenter) List() []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]domain.Notification, 0, len(c.tray))
	for _, n := range c.tray {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Channels returns the created channels
func (c *NotificationCenter) Channels() []domain.NotificationChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]domain.NotificationChannel, 0, len(c.channels))
	for _, ch := range c.channels {
		list = append(list, ch)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Close stops pending timeouts
func (c *NotificationCenter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.timers {
		c.stopTimerLocked(id)
	}
}

// expire removes the notification unless it was reposted since the timer was armed
func (c *NotificationCenter) expire(id domain.NotificationID, postedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.tray[id]; ok && n.PostedAt.Equal(postedAt) {
		delete(c.tray, id)
		delete(c.timers, id)
	}
}

func (c *NotificationCenter) stopTimerLocked(id domain.NotificationID) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

// send forwards a notification to the desktop
func (c *NotificationCenter) send(config domain.NotificationConfig, title, message string) {
	if !config.Enabled {
		return
	}

	var err error
	switch config.Method {
	case "", "none":
		return
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(message), escapeAppleScript(title))
		err = c.run("osascript", "-e", script)
	case "notify-send":
		err = c.run("notify-send", title, message)
	default:
		c.logger.Warn("Unknown notification method", zap.String("method", config.Method))
		return
	}

	if err != nil {
		c.logger.Error("Failed to send notification",
			zap.String("method", config.Method),
			zap.Error(err))
		return
	}
	c.logger.Debug("Notification sent",
		zap.String("method", config.Method),
		zap.String("title", title))
}

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
