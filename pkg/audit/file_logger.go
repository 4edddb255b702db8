package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	currentLogName   = "audit.log"
	rotatedLogPrefix = "audit-"
	rotatedStamp     = "20060102T150405.000000"
)

// ErrLoggerClosed is returned by Log after Close
var ErrLoggerClosed = errors.New("audit log is closed")

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string
	Rotate   bool
	MaxSize  int64 // bytes, default 100MB
	MaxFiles int   // rotated files kept, default 10
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/modgraph/audit",
		Rotate:   true,
		MaxSize:  100 << 20,
		MaxFiles: 10,
	}
}

// FileLogger appends audit events to audit.log as JSON lines. With rotation
// enabled a full file is renamed to audit-<utc stamp>.log and only the newest
// MaxFiles rotated files are kept.
type FileLogger struct {
	cfg  FileLoggerConfig
	mu   sync.Mutex
	file *os.File
	size int64
	now  func() time.Time
}

// NewFileLogger creates the log directory and opens the current file
func NewFileLogger(cfg FileLoggerConfig) (*FileLogger, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 100 << 20
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	l := &FileLogger{cfg: cfg, now: time.Now}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) currentPath() string {
	return filepath.Join(l.cfg.BasePath, currentLogName)
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.currentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit log file: %w", err)
	}
	l.file = file
	l.size = info.Size()
	return nil
}

// rotateIfFull swaps in a fresh current file once the size limit is reached
func (l *FileLogger) rotateIfFull() error {
	if !l.cfg.Rotate || l.size < l.cfg.MaxSize {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil

	rotated := filepath.Join(l.cfg.BasePath, rotatedLogPrefix+l.now().UTC().Format(rotatedStamp)+".log")
	if err := os.Rename(l.currentPath(), rotated); err != nil {
		return err
	}
	l.prune()
	return l.open()
}

// prune drops the oldest rotated files beyond MaxFiles. Failures only leave
// extra files behind.
func (l *FileLogger) prune() {
	rotated, err := l.rotatedFiles()
	if err != nil || len(rotated) <= l.cfg.MaxFiles {
		return
	}
	for _, path := range rotated[:len(rotated)-l.cfg.MaxFiles] {
		os.Remove(path)
	}
}

// rotatedFiles lists rotated logs oldest first; the stamp sorts lexically
func (l *FileLogger) rotatedFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.cfg.BasePath, rotatedLogPrefix+"*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Log appends an audit event to the current file
func (l *FileLogger) Log(_ context.Context, event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrLoggerClosed
	}
	if err := l.rotateIfFull(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	n, err := l.file.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Close closes the current file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadFilter selects events when reading the log back
type ReadFilter struct {
	// Module matches events whose resource id is the module key or starts
	// with "<key>@" or "<key>->"
	Module    string
	EventType EventType
	Since     time.Time
	// Limit caps the result; <= 0 reads everything
	Limit int
}

func (f ReadFilter) matches(e *Event) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if f.Module != "" {
		id := e.ResourceID
		if id != f.Module && !strings.HasPrefix(id, f.Module+"@") && !strings.HasPrefix(id, f.Module+"->") {
			return false
		}
	}
	return true
}

// Read returns matching events oldest first, across rotated files and the
// current file
func (l *FileLogger) Read(filter ReadFilter) ([]*Event, error) {
	l.mu.Lock()
	rotated, err := l.rotatedFiles()
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	events := make([]*Event, 0)
	for _, path := range append(rotated, l.currentPath()) {
		done, err := readEvents(path, filter, &events)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}
	return events, nil
}

func readEvents(path string, filter ReadFilter, out *[]*Event) (bool, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return false, fmt.Errorf("failed to decode audit log entry in %s: %w", filepath.Base(path), err)
		}
		if !filter.matches(&event) {
			continue
		}
		*out = append(*out, &event)
		if filter.Limit > 0 && len(*out) >= filter.Limit {
			return true, nil
		}
	}
	return false, scanner.Err()
}
