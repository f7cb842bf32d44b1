package domain

// OperationRepository defines the interface for operation persistence
type OperationRepository interface {
	// Upsert inserts the operation if its id is unknown, else updates it in place.
	// changed is false when the stored record already carried the same state.
	Upsert(op *Operation) (changed bool, err error)

	// Remove deletes the record; no-op if absent
	Remove(id int64) error

	// FindByID returns nil, nil when no record exists
	FindByID(id int64) (*Operation, error)

	// FindByFileName finds a record by its normalized title lookup key.
	// Returns nil, nil when no record exists.
	FindByFileName(name string) (*Operation, error)

	// ListActive returns all records whose status is in ActiveStatuses
	ListActive() ([]*Operation, error)

	// FindAll finds all operations with optional equality filters
	FindAll(filters map[string]interface{}) ([]*Operation, error)

	// GetStats returns per-status counts
	GetStats() (*OperationStats, error)

	// Close releases the underlying connection
	Close() error
}

// OperationStats represents operation statistics
type OperationStats struct {
	Total            int64 `json:"total"`
	Active           int64 `json:"active"`
	Queued           int64 `json:"queued"`
	Downloading      int64 `json:"downloading"`
	Paused           int64 `json:"paused"`
	WaitingOnNetwork int64 `json:"waiting_on_network"`
	Completed        int64 `json:"completed"`
	Failed           int64 `json:"failed"`
}

// Count adds one record of the given status to the stats
func (s *OperationStats) Count(status OperationStatus, n int64) {
	s.Total += n
	if status.IsActive() {
		s.Active += n
	}
	switch status {
	case StatusQueued, StatusAdded, StatusNone:
		s.Queued += n
	case StatusDownloading:
		s.Downloading += n
	case StatusPaused:
		s.Paused += n
	case StatusWaitingOnNetwork:
		s.WaitingOnNetwork += n
	case StatusCompleted:
		s.Completed += n
	case StatusError:
		s.Failed += n
	}
}

// AllowedFilterColumns lists the columns FindAll accepts as filter keys
var AllowedFilterColumns = map[string]bool{
	"status":    true,
	"file_name": true,
}
