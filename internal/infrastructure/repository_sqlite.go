package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteOperationRepository implements OperationRepository using SQLite through gorm
type SQLiteOperationRepository struct {
	db *gorm.DB
}

// NewSQLiteOperationRepository creates a new SQLite repository
func NewSQLiteOperationRepository(dbPath string) (*SQLiteOperationRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; SQLite serializes anyway and this avoids SQLITE_BUSY under load
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&domain.Operation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteOperationRepository{db: db}, nil
}

// Upsert inserts or updates an operation by id
func (r *SQLiteOperationRepository) Upsert(op *domain.Operation) (bool, error) {
	changed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing domain.Operation
		err := tx.First(&existing, "id = ?", op.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			changed = true
			return tx.Create(op).Error
		}
		if err != nil {
			return err
		}
		if existing.SameState(op) {
			return nil
		}

		changed = true
		op.CreatedAt = existing.CreatedAt
		if op.CompletedAt == nil {
			op.CompletedAt = existing.CompletedAt
		}
		return tx.Save(op).Error
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// Remove deletes an operation by id
func (r *SQLiteOperationRepository) Remove(id int64) error {
	return r.db.Delete(&domain.Operation{}, "id = ?", id).Error
}

// FindByID finds an operation by id
func (r *SQLiteOperationRepository) FindByID(id int64) (*domain.Operation, error) {
	var op domain.Operation
	err := r.db.First(&op, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

// FindByFileName finds the most recently updated operation with the given lookup key
func (r *SQLiteOperationRepository) FindByFileName(name string) (*domain.Operation, error) {
	var op domain.Operation
	err := r.db.Where("file_name = ?", name).Order("updated_at DESC").First(&op).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

// ListActive returns all operations whose status is in the active set
func (r *SQLiteOperationRepository) ListActive() ([]*domain.Operation, error) {
	var ops []*domain.Operation
	err := r.db.Where("status IN ?", domain.ActiveStatuses).
		Order("created_at ASC").
		Find(&ops).Error
	return ops, err
}

// FindAll finds all operations with optional filters
func (r *SQLiteOperationRepository) FindAll(filters map[string]interface{}) ([]*domain.Operation, error) {
	var ops []*domain.Operation
	query := r.db

	for key, value := range filters {
		if !domain.AllowedFilterColumns[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("updated_at DESC").Find(&ops).Error
	return ops, err
}

// GetStats returns operation statistics
func (r *SQLiteOperationRepository) GetStats() (*domain.OperationStats, error) {
	stats := &domain.OperationStats{}

	statusCounts := []struct {
		Status domain.OperationStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.Operation{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		stats.Count(sc.Status, sc.Count)
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteOperationRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
