// Package log provides the small logging facade used throughout
// thrifty-builder so that core packages depend on an interface rather
// than a concrete logging backend.
package log

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"k8s.io/klog/v2"
)

// Logger is a simple interface that is roughly equivalent to klog.
type Logger interface {
	Is(level int32) bool
	V(level int32) VerboseLogger
	Infof(format string, args ...interface{})
	Info(args ...interface{})
	Warningf(format string, args ...interface{})
	Warning(args ...interface{})
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
}

// VerboseLogger is roughly equivalent to klog's Verbose.
type VerboseLogger interface {
	Infof(format string, args ...interface{})
	Info(args ...interface{})
}

// ToFile creates a logger that will log any items at level or below to
// file, and defer any other output to klog (no matter what the level is).
func ToFile(x io.Writer, level int32) Logger {
	return &FileLogger{
		mutex: &sync.Mutex{},
		w:     bufio.NewWriter(x),
		level: level,
	}
}

var (
	// None implements the Logger interface but does nothing with the log output.
	None Logger = discard{}
	// StderrLog implements the Logger interface for stderr.
	StderrLog = ToFile(os.Stderr, 2)
)

// discard is a Logger that outputs nothing.
type discard struct{}

// Is returns whether the current logging level is greater than or equal to the parameter.
func (discard) Is(level int32) bool { return false }

// V returns a logger which discards output if the specified level is greater than the current logging level.
func (discarding discard) V(level int32) VerboseLogger { return discarding }

func (discard) Infof(string, ...interface{})    {}
func (discard) Info(...interface{})             {}
func (discard) Errorf(string, ...interface{})   {}
func (discard) Error(...interface{})            {}
func (discard) Warningf(string, ...interface{}) {}
func (discard) Warning(...interface{})          {}

// FileLogger logs the provided messages at level or below to the writer,
// or delegates to klog once the global verbosity has been raised past it.
type FileLogger struct {
	mutex *sync.Mutex
	w     *bufio.Writer
	level int32
}

// Is returns whether the current logging level is greater than or equal to the parameter.
func (f *FileLogger) Is(level int32) bool {
	return level <= f.level
}

// V returns a logger which discards output if the specified level is greater than the current logging level.
func (f *FileLogger) V(level int32) VerboseLogger {
	if klog.V(klog.Level(level)).Enabled() {
		return f
	}
	return None
}

type severity int32

const (
	infoLog severity = iota
	warningLog
	errorLog
)

type severityDetail struct {
	prefix     string
	delegateFn func(int, ...interface{})
}

var severities = []severityDetail{
	infoLog:    {"", klog.InfoDepth},
	warningLog: {"WARNING: ", klog.WarningDepth},
	errorLog:   {"ERROR: ", klog.ErrorDepth},
}

func (f *FileLogger) writeln(sev severity, line string) {
	detail := severities[sev]

	// Once the global verbosity has been raised above this logger's own
	// level, delegate everything to klog so the caller gets its
	// file/line/timestamp prefix.
	if klog.V(klog.Level(f.level + 1)).Enabled() {
		detail.delegateFn(3, line)
		return
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.w.WriteString(detail.prefix)
	f.w.WriteString(line)
	if !strings.HasSuffix(line, "\n") {
		f.w.WriteByte('\n')
	}
	f.w.Flush()
}

func (f *FileLogger) outputf(sev severity, format string, args ...interface{}) {
	f.writeln(sev, fmt.Sprintf(format, args...))
}

func (f *FileLogger) output(sev severity, args ...interface{}) {
	f.writeln(sev, fmt.Sprint(args...))
}

// Infof records an info log entry.
func (f *FileLogger) Infof(format string, args ...interface{}) { f.outputf(infoLog, format, args...) }

// Info records an info log entry.
func (f *FileLogger) Info(args ...interface{}) { f.output(infoLog, args...) }

// Warningf records a warning log entry.
func (f *FileLogger) Warningf(format string, args ...interface{}) {
	f.outputf(warningLog, format, args...)
}

// Warning records a warning log entry.
func (f *FileLogger) Warning(args ...interface{}) { f.output(warningLog, args...) }

// Errorf records an error log entry.
func (f *FileLogger) Errorf(format string, args ...interface{}) {
	f.outputf(errorLog, format, args...)
}

// Error records an error log entry.
func (f *FileLogger) Error(args ...interface{}) { f.output(errorLog, args...) }
