// Package logger is the console log of the index and ask pipelines.
//
// Warnings and info lines always reach the output. Debug lines and stage
// banners are written only in verbose mode, which the --verbose flag turns on.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level orders log lines by importance.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// sink is the process-wide destination. Writes are serialized so lines
// from concurrent indexing workers never interleave.
type sink struct {
	mu      sync.Mutex
	verbose bool
	out     io.Writer
}

var std = &sink{out: os.Stderr}

// SetVerbose turns debug lines and stage banners on or off.
func SetVerbose(v bool) {
	std.mu.Lock()
	std.verbose = v
	std.mu.Unlock()
}

func IsVerbose() bool {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.verbose
}

// SetOutput redirects every line to w. The default is os.Stderr.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.out = w
	std.mu.Unlock()
}

func (s *sink) write(l Level, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l < LevelInfo && !s.verbose {
		return
	}
	fmt.Fprintf(s.out, "[%s] %s\n", l, line)
}

func Debug(format string, args ...any) { std.write(LevelDebug, fmt.Sprintf(format, args...)) }

func Info(format string, args ...any) { std.write(LevelInfo, fmt.Sprintf(format, args...)) }

func Warn(format string, args ...any) { std.write(LevelWarn, fmt.Sprintf(format, args...)) }

// Stage prints a banner for a pipeline stage such as "Indexing" and returns
// a func that logs the stage's elapsed time. Both are verbose-only:
//
//	defer logger.Stage("Indexing")()
func Stage(name string) func() {
	start := time.Now()
	std.mu.Lock()
	if std.verbose {
		fmt.Fprintf(std.out, "\n=== %s ===\n", name)
	}
	std.mu.Unlock()
	return func() {
		Debug("%s took %s", name, time.Since(start).Round(time.Millisecond))
	}
}
