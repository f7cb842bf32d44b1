package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory names one categorized log file
type LogCategory string

const (
	CategorySession LogCategory = "session" // coordinator lifecycle events
	CategoryError   LogCategory = "error"   // application errors
)

// Categories lists every category MultiLogger writes
var Categories = []LogCategory{CategorySession, CategoryError}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // minimum level for the session category
	LogsDir string
}

// MultiLogger writes one JSON file per category and day: <logs_dir>/<category>-YYYYMMDD.log
type MultiLogger struct {
	config  MultiLoggerConfig
	loggers map[LogCategory]*zap.Logger
	files   map[LogCategory]*dailyFile
}

// NewMultiLogger creates the category loggers
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	sessionLevel, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		sessionLevel = zapcore.InfoLevel
	}
	levels := map[LogCategory]zapcore.Level{
		CategorySession: sessionLevel,
		CategoryError:   zapcore.ErrorLevel,
	}

	ml := &MultiLogger{
		config:  config,
		loggers: make(map[LogCategory]*zap.Logger, len(Categories)),
		files:   make(map[LogCategory]*dailyFile, len(Categories)),
	}
	for _, category := range Categories {
		file := &dailyFile{dir: config.LogsDir, category: category, now: time.Now}
		if _, err := file.current(); err != nil {
			ml.Close()
			return nil, fmt.Errorf("failed to open %s log: %w", category, err)
		}
		ml.files[category] = file
		ml.loggers[category] = zap.New(zapcore.NewCore(categoryEncoder(), file, levels[category]))
	}
	return ml, nil
}

func categoryEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.MessageKey = "msg"
	ec.LevelKey = "level"
	ec.CallerKey = ""
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(ec)
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the logger for category, falling back to the error logger
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	if logger, ok := ml.loggers[category]; ok {
		return logger
	}
	return ml.loggers[CategoryError]
}

// Session returns the session lifecycle logger
func (ml *MultiLogger) Session() *zap.Logger {
	return ml.GetLogger(CategorySession)
}

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogSessionEvent logs a coordinator lifecycle event with structured data
func (ml *MultiLogger) LogSessionEvent(event string, fields ...zap.Field) {
	ml.Session().Info(event, fields...)
}

// Sync flushes all category files
func (ml *MultiLogger) Sync() error {
	var errs []error
	for _, file := range ml.files {
		errs = append(errs, file.Sync())
	}
	return errors.Join(errs...)
}

// Close flushes and closes all category files
func (ml *MultiLogger) Close() error {
	var errs []error
	for _, file := range ml.files {
		errs = append(errs, file.Close())
	}
	return errors.Join(errs...)
}

// dailyFile is a zapcore.WriteSyncer that switches to a new file when the day changes
type dailyFile struct {
	dir      string
	category LogCategory
	now      func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func (d *dailyFile) path(day string) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s-%s.log", d.category, day))
}

// current returns the file for today, rotating if needed. Caller must not hold mu.
func (d *dailyFile) current() (*os.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentLocked()
}

func (d *dailyFile) currentLocked() (*os.File, error) {
	day := d.now().Format("20060102")
	if d.file != nil && d.day == day {
		return d.file, nil
	}
	file, err := os.OpenFile(d.path(day), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	if d.file != nil {
		d.file.Close()
	}
	d.file, d.day = file, day
	return file, nil
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	file, err := d.currentLocked()
	if err != nil {
		return 0, err
	}
	return file.Write(p)
}

func (d *dailyFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	return d.file.Sync()
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
