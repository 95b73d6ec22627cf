package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunLogger is the shared contract CSVLogger and JSONLogger both
// satisfy, so a CLI action can write rows without caring which format
// the operator selected.
type RunLogger interface {
	WriteHeader(columns []string) error
	WriteRow(row []string) error
	ShouldWriteHeader() (bool, error)
	Close() error
}

var (
	_ RunLogger = (*CSVLogger)(nil)
	_ RunLogger = (*JSONLogger)(nil)
)

// JSONLogger writes one JSON object per line (JSON Lines), the
// row-oriented counterpart to CSVLogger for operators who want to pipe
// the run log into a log aggregator instead of a spreadsheet.
type JSONLogger struct {
	file       *os.File
	columns    []string
	rowCount   int
	lastFlush  time.Time
	flushEvery int
}

// NewJSONLogger creates a new JSON Lines logger for the specified tool
// and action, using the same filename pattern as CSVLogger but with a
// .jsonl suffix: %TEMP%/_{toolName}_{action}_{date}.jsonl
func NewJSONLogger(toolName, action string) (*JSONLogger, error) {
	tempDir := os.TempDir()
	dateStr := time.Now().Format("2006-01-02")
	fileName := fmt.Sprintf("_%s_%s_%s.jsonl", toolName, action, dateStr)
	filePath := filepath.Join(tempDir, fileName)

	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("could not create JSON log file: %w", err)
	}

	fmt.Printf("Logging to: %s\n\n", filePath)
	return &JSONLogger{
		file:       file,
		lastFlush:  time.Now(),
		flushEvery: 10,
	}, nil
}

// WriteHeader records the column names for later rows. Unlike CSV, a
// JSON Lines file has no header row on the wire; WriteHeader just
// remembers the column-to-value mapping WriteRow will use.
func (l *JSONLogger) WriteHeader(columns []string) error {
	l.columns = append([]string{}, columns...)
	return nil
}

// WriteRow writes one JSON object for this row, keyed by the column
// names given to WriteHeader plus a "timestamp" field.
func (l *JSONLogger) WriteRow(row []string) error {
	if l.columns == nil {
		return fmt.Errorf("WriteHeader must be called before WriteRow")
	}
	if len(row) != len(l.columns) {
		return fmt.Errorf("row has %d values, want %d to match header", len(row), len(l.columns))
	}

	obj := make(map[string]string, len(l.columns)+1)
	obj["timestamp"] = time.Now().Format("2006-01-02 15:04:05")
	for i, col := range l.columns {
		obj[col] = row[i]
	}

	line, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON row: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write JSON row: %w", err)
	}

	l.rowCount++
	if l.rowCount%l.flushEvery == 0 || time.Since(l.lastFlush) > 5*time.Second {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("failed to flush JSON log: %w", err)
		}
		l.lastFlush = time.Now()
	}
	return nil
}

// ShouldWriteHeader reports whether the file is new (empty), mirroring
// CSVLogger.ShouldWriteHeader even though JSON Lines carries no literal
// header row; a caller uses this to decide whether to call WriteHeader
// at all versus reuse a previous run's column order.
func (l *JSONLogger) ShouldWriteHeader() (bool, error) {
	info, err := l.file.Stat()
	if err != nil {
		return false, fmt.Errorf("could not stat JSON log file: %w", err)
	}
	return info.Size() == 0, nil
}

// Close flushes and closes the underlying file.
func (l *JSONLogger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("error flushing JSON log on close: %w", err)
	}
	return l.file.Close()
}
