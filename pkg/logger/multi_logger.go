package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryFetch LogCategory = "fetch" // Raw resolver process output (plain text)
	CategoryQueue LogCategory = "queue" // Queue lifecycle events (JSON)
	CategoryError LogCategory = "error" // Application errors (JSON)
)

// Categories lists every category the log endpoints may read
var Categories = []LogCategory{CategoryFetch, CategoryQueue, CategoryError}

// ValidCategory reports whether c is a known category
func ValidCategory(c LogCategory) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// DatedLogPath returns <dir>/<category>-YYYYMMDD.log for the given day
func DatedLogPath(dir string, category LogCategory, date time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", category, date.Format("20060102")))
}

// MultiLogger writes JSON lines into one dated file per category.
// The fetch category is written directly by the resolver, not through zap.
type MultiLogger struct {
	dir    string
	levels map[LogCategory]zapcore.Level
	sinks  map[LogCategory]*categorySink
	day    string // YYYYMMDD of the open files
	closed bool
	now    func() time.Time
	mu     sync.Mutex
}

type categorySink struct {
	logger *zap.Logger
	file   *os.File
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string
}

// jsonLineEncoder produces the entries LogReader.parseEntry understands
func jsonLineEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.CallerKey = zapcore.OmitKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// NewMultiLogger opens today's queue and error files under config.LogsDir.
// An unparsable level falls back to info; the error file always records
// error and above.
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	ml := &MultiLogger{
		dir: config.LogsDir,
		levels: map[LogCategory]zapcore.Level{
			CategoryQueue: level,
			CategoryError: zapcore.ErrorLevel,
		},
		now: time.Now,
	}
	if err := ml.openDay(ml.now()); err != nil {
		return nil, err
	}
	return ml, nil
}

// openDay opens every category file for date. On failure the files opened
// so far are closed and the current sinks stay untouched.
func (ml *MultiLogger) openDay(date time.Time) error {
	sinks := make(map[LogCategory]*categorySink, len(ml.levels))
	for category, lvl := range ml.levels {
		sink, err := openCategorySink(DatedLogPath(ml.dir, category, date), category, lvl)
		if err != nil {
			for _, opened := range sinks {
				opened.file.Close()
			}
			return fmt.Errorf("failed to open %s log: %w", category, err)
		}
		sinks[category] = sink
	}

	old := ml.sinks
	ml.sinks = sinks
	ml.day = date.Format("20060102")
	for _, sink := range old {
		_ = sink.logger.Sync()
		sink.file.Close()
	}
	return nil
}

func openCategorySink(path string, category LogCategory, level zapcore.Level) (*categorySink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(jsonLineEncoder(), zapcore.Lock(f), level)
	return &categorySink{
		logger: zap.New(core).With(zap.String("category", string(category))),
		file:   f,
	}, nil
}

// GetLogger returns the logger for a category. Unknown categories, and
// the fetch category which has no zap sink, land in the error log. The
// files move to the new day's names the first time a logger is requested
// after midnight, so callers should not hold on to the returned logger.
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if now := ml.now(); !ml.closed && now.Format("20060102") != ml.day {
		// Keep writing to yesterday's files if today's cannot be opened
		_ = ml.openDay(now)
	}

	sink, ok := ml.sinks[category]
	if !ok {
		sink, ok = ml.sinks[CategoryError]
	}
	if !ok {
		return zap.NewNop()
	}
	return sink.logger
}

// Queue returns the queue logger
func (ml *MultiLogger) Queue() *zap.Logger { return ml.GetLogger(CategoryQueue) }

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger { return ml.GetLogger(CategoryError) }

// LogAppError logs an application-level error
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogQueueEvent logs a queue lifecycle event
func (ml *MultiLogger) LogQueueEvent(event string, fields ...zap.Field) {
	ml.Queue().Info(event, fields...)
}

// Sync flushes every category
func (ml *MultiLogger) Sync() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var firstErr error
	for _, sink := range ml.sinks {
		if err := sink.logger.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes and closes every category file. The logger hands out a
// no-op logger afterwards.
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var firstErr error
	for category, sink := range ml.sinks {
		_ = sink.logger.Sync()
		if err := sink.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(ml.sinks, category)
	}
	ml.closed = true
	return firstErr
}
