package infrastructure

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

// NewOperationRepository builds the store selected by config.
// A postgres:// DSN selects PostgreSQL regardless of the configured driver.
func NewOperationRepository(config domain.StoreConfig) (domain.OperationRepository, error) {
	dsn := strings.TrimSpace(config.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("store dsn is empty")
	}

	driver := strings.ToLower(strings.TrimSpace(config.Driver))
	if parsed, err := url.Parse(dsn); err == nil {
		switch strings.ToLower(parsed.Scheme) {
		case "postgres", "postgresql":
			driver = "postgres"
		case "file":
			dsn = strings.TrimPrefix(dsn, "file://")
		}
	}

	switch driver {
	case "", "gorm-sqlite":
		return NewSQLiteOperationRepository(dsn)
	case "sqlite":
		return NewSQLiteSQLOperationRepository(dsn)
	case "postgres", "postgresql":
		return NewPostgresOperationRepository(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", config.Driver)
	}
}
