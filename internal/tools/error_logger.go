package tools

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLogRetentionDays is how long tool error entries are kept
const DefaultLogRetentionDays = 60

// ToolErrorLogEntry is one JSON line in the tool error log
type ToolErrorLogEntry struct {
	Timestamp string         `json:"timestamp"`
	ToolName  string         `json:"tool_name"`
	Category  string         `json:"category"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Error     string         `json:"error"`
	Transport string         `json:"transport,omitempty"`
}

// ToolErrorLogger appends failed tool calls to a JSONL file.
// A nil *ToolErrorLogger is valid and logs nothing.
type ToolErrorLogger struct {
	logger   *logrus.Logger
	mu       sync.Mutex
	logFile  *os.File
	filePath string
	now      func() time.Time
}

// NewToolErrorLogger opens (or creates) tool-errors.log inside logDir and drops
// entries older than the retention period.
func NewToolErrorLogger(logger *logrus.Logger, logDir string) (*ToolErrorLogger, error) {
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &ToolErrorLogger{
		logger:   logger,
		filePath: filepath.Join(logDir, "tool-errors.log"),
		now:      time.Now,
	}

	if err := l.rotateOldLogs(); err != nil {
		return nil, err
	}

	logger.WithField("path", l.filePath).Info("Tool error logging enabled")
	return l, nil
}

// LogToolError appends an entry for a failed tool call
func (l *ToolErrorLogger) LogToolError(toolName string, args map[string]any, err error, transport string) {
	if l == nil || err == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return
	}

	entry := ToolErrorLogEntry{
		Timestamp: l.now().Format(time.RFC3339),
		ToolName:  toolName,
		Category:  ErrorCategory(err),
		Arguments: args,
		Error:     err.Error(),
		Transport: transport,
	}

	line, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		l.logger.WithError(marshalErr).Error("Failed to marshal tool error log entry")
		return
	}

	if _, writeErr := l.logFile.Write(append(line, '\n')); writeErr != nil {
		l.logger.WithError(writeErr).Error("Failed to write tool error log entry")
	}
}

// Path returns the log file location
func (l *ToolErrorLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// Close closes the underlying file
func (l *ToolErrorLogger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile == nil {
		return nil
	}
	err := l.logFile.Close()
	l.logFile = nil
	return err
}

// rotateOldLogs rewrites the log without expired entries and reopens it for appending.
// Malformed lines and lines with unparseable timestamps are kept.
func (l *ToolErrorLogger) rotateOldLogs() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		_ = l.logFile.Close()
		l.logFile = nil
	}

	kept, err := l.readRetainedLines()
	if err != nil {
		return err
	}

	if kept != nil {
		tmpPath := l.filePath + ".tmp"
		content := ""
		if len(kept) > 0 {
			content = strings.Join(kept, "\n") + "\n"
		}
		if err := os.WriteFile(tmpPath, []byte(content), 0o600); err != nil {
			return fmt.Errorf("failed to write rotated tool error log: %w", err)
		}
		if err := os.Rename(tmpPath, l.filePath); err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("failed to replace tool error log: %w", err)
		}
	}

	logFile, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open tool error log file: %w", err)
	}
	l.logFile = logFile
	return nil
}

// readRetainedLines returns nil when there is no existing log
func (l *ToolErrorLogger) readRetainedLines() ([]string, error) {
	file, err := os.Open(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open tool error log for rotation: %w", err)
	}
	defer func() { _ = file.Close() }()

	cutoff := l.now().AddDate(0, 0, -DefaultLogRetentionDays)
	kept := []string{}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry ToolErrorLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			kept = append(kept, line)
			continue
		}
		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil || ts.After(cutoff) {
			kept = append(kept, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading tool error log during rotation: %w", err)
	}

	return kept, nil
}
