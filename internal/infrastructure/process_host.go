package infrastructure

import (
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

// ProcessHost is the daemon process in the role of a foreground service.
// The foreground notification lives in the notification center like any other.
type ProcessHost struct {
	center       *NotificationCenter
	exitWhenIdle bool
	logger       *zap.Logger

	mu           sync.Mutex
	foreground   bool
	stopRequests int
	done         chan struct{}
	doneOnce     sync.Once
}

// NewProcessHost creates a host. With exitWhenIdle, StopSelf closes Done().
func NewProcessHost(center *NotificationCenter, exitWhenIdle bool, logger *zap.Logger) *ProcessHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessHost{
		center:       center,
		exitWhenIdle: exitWhenIdle,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// StartForeground implements domain.ServiceHost
func (h *ProcessHost) StartForeground(id domain.NotificationID, n domain.Notification) error {
	if h.center != nil {
		if err := h.center.Notify(id, n); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.foreground {
		h.logger.Info("Host entered foreground", zap.String("title", n.Title))
	}
	h.foreground = true
	return nil
}

// StopForeground implements domain.ServiceHost
func (h *ProcessHost) StopForeground() error {
	if h.center != nil {
		if err := h.center.Cancel(domain.ForegroundNotificationID); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.foreground {
		h.logger.Info("Host left foreground")
	}
	h.foreground = false
	return nil
}

// StopSelf implements domain.ServiceHost
func (h *ProcessHost) StopSelf() {
	h.mu.Lock()
	h.stopRequests++
	exit := h.exitWhenIdle
	h.mu.Unlock()

	if !exit {
		h.logger.Debug("Host idle, staying up")
		return
	}
	h.doneOnce.Do(func() {
		h.logger.Info("Host idle, shutting down")
		close(h.done)
	})
}

// SetExitWhenIdle changes whether StopSelf ends the process
func (h *ProcessHost) SetExitWhenIdle(exit bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitWhenIdle = exit
}

// Done is closed once the host has been asked to stop
func (h *ProcessHost) Done() <-chan struct{} {
	return h.done
}

// IsForeground reports whether the host is in foreground mode
func (h *ProcessHost) IsForeground() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.foreground
}

// StopRequests returns how many times StopSelf was called
func (h *ProcessHost) StopRequests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopRequests
}
