package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// QueryLog represents a single optimized-query log entry
type QueryLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Entity     string    `json:"entity"`
	Operation  string    `json:"operation"`
	CacheKey   string    `json:"cache_key,omitempty"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int64     `json:"total"`
	DurationMs int64     `json:"duration_ms"`
	FromCache  bool      `json:"from_cache,omitempty"`
	Slow       bool      `json:"slow,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// QueryLogger handles per-query logging
type QueryLogger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultQueryLogger = &QueryLogger{enabled: true}

// Queries returns the default query logger
func Queries() *QueryLogger {
	return defaultQueryLogger
}

// SetOutput sets the log output file
func (l *QueryLogger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables console output
func (l *QueryLogger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a query log entry
func (l *QueryLogger) Log(entry *QueryLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	// Console output (human-readable)
	if l.console {
		status := "✓"
		if entry.Error != "" {
			status = "✗"
		}
		cache := ""
		if entry.FromCache {
			cache = " [cached]"
		}
		slow := ""
		if entry.Slow {
			slow = " [slow]"
		}
		fmt.Printf("[query] %s %s.%s p%d/%d %dms%s%s\n",
			status, entry.Entity, entry.Operation, entry.Page, entry.Limit,
			entry.DurationMs, cache, slow)
		if entry.Error != "" {
			fmt.Printf("[query]   error: %s\n", entry.Error)
		}
	}

	// File output (JSON)
	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file
func (l *QueryLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
