package infrastructure

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/yourusername/clipfetch/pkg/logger"
)

// FetchLog appends raw resolver output to the dated fetch log, framed by
// start and end markers so one fetch can be read back in isolation.
type FetchLog struct {
	file io.WriteCloser
}

// OpenFetchLog opens today's fetch log in logsDir, creating the directory if needed
func OpenFetchLog(logsDir string) (*FetchLog, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	path := logger.DatedLogPath(logsDir, logger.CategoryFetch, time.Now())
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FetchLog{file: file}, nil
}

// Header writes the start marker and the command that is about to run
func (l *FetchLog) Header(fetchID, cmdLine string) {
	fmt.Fprintf(l.file, "\n=== [%s] Fetch: %s ===\n", timestamp(), fetchID)
	fmt.Fprintf(l.file, "$ %s\n", cmdLine)
}

// Line copies one line of process output
func (l *FetchLog) Line(line string) {
	fmt.Fprintln(l.file, line)
}

// Footer writes the end marker
func (l *FetchLog) Footer(success bool, message string) {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(l.file, "[%s] %s: %s\n", timestamp(), status, message)
	fmt.Fprint(l.file, "=== END ===\n\n")
}

// Close closes the underlying file
func (l *FetchLog) Close() error {
	return l.file.Close()
}

func timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}
