package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

const sqlOperationTimeout = 5 * time.Second

// sqlDialect captures the differences between the database/sql backends
type sqlDialect struct {
	driver      string
	numbered    bool // $1 placeholders instead of ?
	integerType string
}

var (
	sqliteDialect   = sqlDialect{driver: "sqlite", integerType: "INTEGER"}
	postgresDialect = sqlDialect{driver: "postgres", numbered: true, integerType: "BIGINT"}
)

// rebind rewrites ? placeholders for dialects that number them
func (d sqlDialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const operationColumns = "id, status, title, file_ref, file_name, progress, downloaded_bytes, total_bytes, error_message, created_at, updated_at, completed_at"

// SQLOperationRepository implements OperationRepository on database/sql.
// Used with the pure-Go sqlite driver and with PostgreSQL.
type SQLOperationRepository struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewSQLiteSQLOperationRepository opens a sqlite database through modernc.org/sqlite
func NewSQLiteSQLOperationRepository(path string) (*SQLOperationRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return newSQLOperationRepository(db, sqliteDialect)
}

// NewPostgresOperationRepository opens a PostgreSQL database through lib/pq
func NewPostgresOperationRepository(dsn string) (*SQLOperationRepository, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}

	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	return newSQLOperationRepository(db, postgresDialect)
}

func newSQLOperationRepository(db *sql.DB, dialect sqlDialect) (*SQLOperationRepository, error) {
	r := &SQLOperationRepository{db: db, dialect: dialect}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLOperationRepository) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	it := r.dialect.integerType
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS operations (
			id %[1]s PRIMARY KEY,
			status TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			file_ref TEXT NOT NULL DEFAULT '',
			file_name TEXT NOT NULL DEFAULT '',
			progress %[1]s NOT NULL DEFAULT 0,
			downloaded_bytes %[1]s NOT NULL DEFAULT 0,
			total_bytes %[1]s NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			created_at %[1]s NOT NULL,
			updated_at %[1]s NOT NULL,
			completed_at %[1]s
		)`, it),
		`CREATE INDEX IF NOT EXISTS idx_operations_status ON operations (status)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_file_name ON operations (file_name)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}

// Upsert inserts or updates an operation by id
func (r *SQLOperationRepository) Upsert(op *domain.Operation) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	existing, err := r.scanOne(tx.QueryRowContext(ctx,
		r.dialect.rebind("SELECT "+operationColumns+" FROM operations WHERE id = ?"), op.ID))
	if err != nil {
		return false, err
	}
	if existing != nil && existing.SameState(op) {
		return false, nil
	}

	now := time.Now()
	op.UpdatedAt = now
	if existing != nil {
		op.CreatedAt = existing.CreatedAt
		if op.CompletedAt == nil {
			op.CompletedAt = existing.CompletedAt
		}
	} else if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}

	query := `INSERT INTO operations (` + operationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			title = EXCLUDED.title,
			file_ref = EXCLUDED.file_ref,
			file_name = EXCLUDED.file_name,
			progress = EXCLUDED.progress,
			downloaded_bytes = EXCLUDED.downloaded_bytes,
			total_bytes = EXCLUDED.total_bytes,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at`
	_, err = tx.ExecContext(ctx, r.dialect.rebind(query),
		op.ID, string(op.Status), op.Title, op.FileRef, op.FileName, op.Progress,
		op.DownloadedBytes, op.TotalBytes, op.ErrorMessage,
		op.CreatedAt.UnixNano(), op.UpdatedAt.UnixNano(), nullableTime(op.CompletedAt))
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes an operation by id
func (r *SQLOperationRepository) Remove(id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, r.dialect.rebind("DELETE FROM operations WHERE id = ?"), id)
	return err
}

// FindByID finds an operation by id
func (r *SQLOperationRepository) FindByID(id int64) (*domain.Operation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()
	return r.scanOne(r.db.QueryRowContext(ctx,
		r.dialect.rebind("SELECT "+operationColumns+" FROM operations WHERE id = ?"), id))
}

// FindByFileName finds the most recently updated operation with the given lookup key
func (r *SQLOperationRepository) FindByFileName(name string) (*domain.Operation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()
	return r.scanOne(r.db.QueryRowContext(ctx,
		r.dialect.rebind("SELECT "+operationColumns+" FROM operations WHERE file_name = ? ORDER BY updated_at DESC LIMIT 1"), name))
}

// ListActive returns all operations whose status is in the active set
func (r *SQLOperationRepository) ListActive() ([]*domain.Operation, error) {
	placeholders := make([]string, len(domain.ActiveStatuses))
	args := make([]interface{}, len(domain.ActiveStatuses))
	for i, s := range domain.ActiveStatuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}
	query := "SELECT " + operationColumns + " FROM operations WHERE status IN (" +
		strings.Join(placeholders, ", ") + ") ORDER BY created_at ASC"
	return r.query(query, args...)
}

// FindAll finds all operations with optional filters
func (r *SQLOperationRepository) FindAll(filters map[string]interface{}) ([]*domain.Operation, error) {
	keys := make([]string, 0, len(filters))
	for key := range filters {
		if !domain.AllowedFilterColumns[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	query := "SELECT " + operationColumns + " FROM operations"
	args := make([]interface{}, 0, len(keys))
	for i, key := range keys {
		if i == 0 {
			query += " WHERE "
		} else {
			query += " AND "
		}
		query += key + " = ?"
		args = append(args, fmt.Sprint(filters[key]))
	}
	query += " ORDER BY updated_at DESC"
	return r.query(query, args...)
}

// GetStats returns operation statistics
func (r *SQLOperationRepository) GetStats() (*domain.OperationStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM operations GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.OperationStats{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.Count(domain.OperationStatus(status), count)
	}
	return stats, rows.Err()
}

// Close closes the database connection
func (r *SQLOperationRepository) Close() error {
	return r.db.Close()
}

func (r *SQLOperationRepository) query(query string, args ...interface{}) ([]*domain.Operation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqlOperationTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []*domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

func (r *SQLOperationRepository) scanOne(row *sql.Row) (*domain.Operation, error) {
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return op, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*domain.Operation, error) {
	var (
		op                   domain.Operation
		status               string
		createdAt, updatedAt int64
		completedAt          sql.NullInt64
	)
	err := row.Scan(&op.ID, &status, &op.Title, &op.FileRef, &op.FileName, &op.Progress,
		&op.DownloadedBytes, &op.TotalBytes, &op.ErrorMessage, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	op.Status = domain.OperationStatus(status)
	op.CreatedAt = time.Unix(0, createdAt)
	op.UpdatedAt = time.Unix(0, updatedAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		op.CompletedAt = &t
	}
	return &op, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
