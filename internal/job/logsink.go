package job

import (
	"fmt"
	"sync"
	"time"
)

// LogSink is a per-job append-only log buffer. Append and Snapshot are
// safe from any goroutine: the pipeline slot, subprocess readers and
// concurrent HTTP readers all share one sink. Lines are timestamped,
// never reordered and never removed, so repeated snapshots observe a
// growing prefix-stable sequence.
type LogSink struct {
	mu    sync.Mutex
	lines []string
}

// NewLogSink creates an empty sink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) append(level, msg string) {
	line := fmt.Sprintf("%s [%s] %s", time.Now().UTC().Format(time.RFC3339), level, msg)
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

// Info appends a single informational line.
func (s *LogSink) Info(msg string) {
	s.append("INFO", msg)
}

// Infof appends a formatted informational line.
func (s *LogSink) Infof(format string, args ...any) {
	s.append("INFO", fmt.Sprintf(format, args...))
}

// Warnf appends a formatted warning line.
func (s *LogSink) Warnf(format string, args ...any) {
	s.append("WARN", fmt.Sprintf(format, args...))
}

// Errorf appends a formatted error line.
func (s *LogSink) Errorf(format string, args ...any) {
	s.append("ERROR", fmt.Sprintf(format, args...))
}

// Snapshot returns a consistent copy of all lines appended so far.
func (s *LogSink) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Len returns the number of lines appended so far.
func (s *LogSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}
