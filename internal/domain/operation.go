package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// OperationStatus represents the engine-reported state of an operation
type OperationStatus string

const (
	StatusNone             OperationStatus = "none"
	StatusQueued           OperationStatus = "queued"
	StatusAdded            OperationStatus = "added"
	StatusDownloading      OperationStatus = "downloading"
	StatusPaused           OperationStatus = "paused"
	StatusCompleted        OperationStatus = "completed"
	StatusError            OperationStatus = "error"
	StatusCancelled        OperationStatus = "cancelled"
	StatusRemoved          OperationStatus = "removed"
	StatusWaitingOnNetwork OperationStatus = "waiting_on_network"
)

// ActiveStatuses is the status set that keeps the host in foreground mode
var ActiveStatuses = []OperationStatus{
	StatusNone,
	StatusAdded,
	StatusQueued,
	StatusDownloading,
	StatusPaused,
}

// IsActive reports whether the status belongs to ActiveStatuses
func (s OperationStatus) IsActive() bool {
	for _, active := range ActiveStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the engine will not move the operation further
func (s OperationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled || s == StatusRemoved
}

// ValidateStatus checks if a status is one the engine can report
func ValidateStatus(s OperationStatus) bool {
	switch s {
	case StatusNone, StatusQueued, StatusAdded, StatusDownloading, StatusPaused,
		StatusCompleted, StatusError, StatusCancelled, StatusRemoved, StatusWaitingOnNetwork:
		return true
	}
	return false
}

// Operation is one tracked download or hosted-file transfer
type Operation struct {
	ID              int64           `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Status          OperationStatus `json:"status" gorm:"not null;index"`
	Title           string          `json:"title,omitempty"`
	FileRef         string          `json:"file_ref,omitempty"`
	FileName        string          `json:"file_name,omitempty" gorm:"index"` // normalized title lookup key
	Progress        int             `json:"progress" gorm:"default:0"`
	DownloadedBytes int64           `json:"downloaded_bytes" gorm:"default:0"`
	TotalBytes      int64           `json:"total_bytes" gorm:"default:0"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (Operation) TableName() string {
	return "operations"
}

// Clone returns a copy that shares no pointers with the receiver
func (o *Operation) Clone() *Operation {
	c := *o
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Normalize clamps progress and fills the lookup key from the file reference
func (o *Operation) Normalize() {
	if o.Progress < 0 {
		o.Progress = 0
	}
	if o.Progress > 100 {
		o.Progress = 100
	}
	if o.FileName == "" {
		o.FileName = TitleKey(o)
	}
	if o.Status == StatusCompleted {
		o.Progress = 100
		o.ErrorMessage = ""
	}
}

// Merge fills fields the engine left empty from the stored record.
// Engine payloads may carry only the id, so a zero value means "not reported".
func (o *Operation) Merge(stored *Operation) {
	if stored == nil || stored.ID != o.ID {
		return
	}
	if o.Title == "" {
		o.Title = stored.Title
	}
	if o.FileRef == "" {
		o.FileRef = stored.FileRef
	}
	if o.FileName == "" {
		o.FileName = stored.FileName
	}
	if o.Progress == 0 {
		o.Progress = stored.Progress
	}
	if o.DownloadedBytes == 0 {
		o.DownloadedBytes = stored.DownloadedBytes
	}
	if o.TotalBytes == 0 {
		o.TotalBytes = stored.TotalBytes
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = stored.CreatedAt
	}
	if o.Status == stored.Status && o.Status.IsTerminal() {
		if o.ErrorMessage == "" {
			o.ErrorMessage = stored.ErrorMessage
		}
		if stored.CompletedAt != nil {
			t := *stored.CompletedAt
			o.CompletedAt = &t
		}
	}
}

// MarkCompleted marks the operation as completed
func (o *Operation) MarkCompleted() {
	o.Status = StatusCompleted
	o.Progress = 100
	o.ErrorMessage = ""
	now := time.Now()
	o.CompletedAt = &now
	o.UpdatedAt = now
}

// MarkFailed marks the operation as failed
func (o *Operation) MarkFailed(err error) {
	o.Status = StatusError
	if err != nil {
		o.ErrorMessage = err.Error()
	}
	o.UpdatedAt = time.Now()
}

// SameState reports whether two records carry the same engine-visible state
func (o *Operation) SameState(other *Operation) bool {
	return o.Status == other.Status &&
		o.Progress == other.Progress &&
		o.Title == other.Title &&
		o.FileRef == other.FileRef &&
		o.FileName == other.FileName &&
		o.DownloadedBytes == other.DownloadedBytes &&
		o.TotalBytes == other.TotalBytes &&
		o.ErrorMessage == other.ErrorMessage
}

// DisplayTitle returns title, file name, or the raw file reference in order of preference
func (o *Operation) DisplayTitle() string {
	if o.Title != "" {
		return o.Title
	}
	if o.FileRef != "" {
		return filepath.Base(o.FileRef)
	}
	return o.FileName
}

// TitleKey derives the normalized lookup key used to resolve a stored title.
// "/sdcard/Kiwix/wikipedia_en_all.zim.part" -> "wikipedia_en_all"
func TitleKey(o *Operation) string {
	name := o.FileRef
	if name == "" {
		name = o.Title
	}
	if name == "" {
		return ""
	}
	name = filepath.Base(filepath.ToSlash(name))
	for _, ext := range []string{".part", ".tmp", ".zim"} {
		name = strings.TrimSuffix(name, ext)
	}
	return strings.ToLower(strings.TrimSpace(name))
}
