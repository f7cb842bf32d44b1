package domain

import (
	"fmt"
	"math"
	"time"
)

const (
	// CompletedNotificationOffset separates the completed slot of an operation from its live slot
	CompletedNotificationOffset = 33

	// ForegroundNotificationID is reserved for the host's foreground notification.
	// Engine ids are 32-bit, so no base/completed/stale slot can reach it.
	ForegroundNotificationID NotificationID = math.MaxInt32 + 1<<16

	// DefaultCompletedTimeout bounds how long a completed notification stays in the tray
	DefaultCompletedTimeout = 10 * time.Second

	ActionOpenDownload = "open_download"
)

// NotificationID identifies a slot on the notification surface
type NotificationID int64

// OperationNotificationID is the per-operation view of a notification id.
// All arithmetic on the completed offset lives here.
type OperationNotificationID struct {
	base NotificationID
}

// NewOperationNotificationID returns the notification ids for an operation.
// The foreground id is never handed out as a per-operation slot.
func NewOperationNotificationID(operationID int64) (OperationNotificationID, error) {
	if operationID < math.MinInt32 || operationID > math.MaxInt32 {
		return OperationNotificationID{}, fmt.Errorf("%w: operation %d outside engine id range", ErrReservedNotificationID, operationID)
	}
	return OperationNotificationID{base: NotificationID(operationID)}, nil
}

// Base is the live progress slot
func (n OperationNotificationID) Base() NotificationID {
	return n.base
}

// Completed is the slot used for the completed notification
func (n OperationNotificationID) Completed() NotificationID {
	return n.base + CompletedNotificationOffset
}

// StaleCompleted is the slot an earlier code path computed in the other direction
func (n OperationNotificationID) StaleCompleted() NotificationID {
	return n.base - CompletedNotificationOffset
}

// NotificationImportance mirrors channel importance levels
type NotificationImportance int

const (
	ImportanceLow NotificationImportance = iota
	ImportanceDefault
	ImportanceHigh
)

// NotificationChannel describes the channel notifications are posted to
type NotificationChannel struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Importance  NotificationImportance `json:"importance"`
	Sound       bool                   `json:"sound"`
	Vibration   bool                   `json:"vibration"`
}

// NotificationIntent is the action triggered when the notification is tapped
type NotificationIntent struct {
	Action string            `json:"action"`
	Extras map[string]string `json:"extras,omitempty"`
}

// Notification is an immutable snapshot posted to the surface
type Notification struct {
	ID            NotificationID      `json:"id"`
	ChannelID     string              `json:"channel_id"`
	Title         string              `json:"title"`
	Text          string              `json:"text"`
	Progress      int                 `json:"progress"`
	ProgressMax   int                 `json:"progress_max"`
	Indeterminate bool                `json:"indeterminate"`
	Ongoing       bool                `json:"ongoing"`
	AutoCancel    bool                `json:"auto_cancel"`
	OnlyAlertOnce bool                `json:"only_alert_once"`
	Silent        bool                `json:"silent"`
	Group         string              `json:"group,omitempty"`
	GroupSummary  bool                `json:"group_summary"`
	TimeoutAfter  time.Duration       `json:"timeout_after"`
	Intent        *NotificationIntent `json:"intent,omitempty"`
	PostedAt      time.Time           `json:"posted_at"`
}

// NotificationSurface is the OS-level notification tray
type NotificationSurface interface {
	// Notify posts or replaces the notification at id
	Notify(id NotificationID, n Notification) error

	// Cancel removes the notification at id; no-op if absent
	Cancel(id NotificationID) error

	// ChannelExists reports whether the channel has been created
	ChannelExists(channelID string) bool

	// CreateChannel registers a channel
	CreateChannel(channel NotificationChannel) error
}

// ServiceHost is the process hosting the coordinator
type ServiceHost interface {
	// StartForeground promotes the host and shows n at id
	StartForeground(id NotificationID, n Notification) error

	// StopForeground leaves foreground mode and removes its notification
	StopForeground() error

	// StopSelf asks the host to terminate. Must not block.
	StopSelf()
}
