// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log implements a library for logging.
//
// Messages go to a logrus logger whose formatter is chosen by SetTarget. The
// package-level functions log to the global logger, which writes text to
// stderr at Info until configured otherwise.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Level is the log level.
type Level uint32

// The following levels are fixed, and can never be changed. Since some
// control RPCs allow for changing the level as an integer, it is only
// possible to add additional levels, and the existing one cannot be removed.
const (
	// Warning indicates that output should always be emitted.
	Warning Level = iota

	// Info indicates that output should normally be emitted.
	Info

	// Debug indicates that output should not normally be emitted.
	Debug
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return fmt.Sprintf("Invalid level: %d", l)
	}
}

// ParseLevel parses a level name as returned by Level.String.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "warning":
		return Warning, nil
	case "info":
		return Info, nil
	case "debug":
		return Debug, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case Warning:
		return logrus.WarnLevel
	case Info:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// Logger is a high-level logging interface. It is in fact, not used within
// the log package. Rather it is provided for others to provide contextual
// loggers that may append some addition information to log statement.
// BasicLogger satisfies this interface, and may be passed around as a Logger.
type Logger interface {
	// Debugf logs a debug statement.
	Debugf(format string, v ...any)

	// Infof logs at an info level.
	Infof(format string, v ...any)

	// Warningf logs at a warning level.
	Warningf(format string, v ...any)

	// IsLogging returns true iff this level is being logged. This may be
	// used to short-circuit expensive operations for debugging calls.
	IsLogging(level Level) bool
}

// BasicLogger is the default implementation of Logger.
type BasicLogger struct {
	*logrus.Logger
}

// NewBasicLogger returns a logger writing to w in the given format. See
// Formats for the accepted names.
func NewBasicLogger(format string, w io.Writer) (*BasicLogger, error) {
	f, err := formatter(format)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.Out = &Writer{Next: w}
	l.Formatter = f
	l.Level = logrus.InfoLevel
	return &BasicLogger{Logger: l}, nil
}

// IsLogging implements Logger.IsLogging.
func (l *BasicLogger) IsLogging(level Level) bool {
	return l.Logger.IsLevelEnabled(level.logrus())
}

// SetLevel sets the logging level.
func (l *BasicLogger) SetLevel(level Level) {
	l.Logger.SetLevel(level.logrus())
}

// Formats lists the names accepted by SetTarget and NewBasicLogger.
var Formats = []string{"text", "json", "json-k8s", "glog"}

func formatter(format string) (logrus.Formatter, error) {
	switch format {
	case "text":
		return &logrus.TextFormatter{FullTimestamp: true, DisableColors: true}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	case "json-k8s":
		return &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{logrus.FieldKeyMsg: "log"},
		}, nil
	case "glog":
		return glogFormatter{}, nil
	default:
		return nil, fmt.Errorf("invalid log format %q, must be one of %v", format, Formats)
	}
}

// Writer writes the output to the given writer. If a write fails, the
// message is dropped and counted; the next successful write is preceded by
// a note saying how many were lost.
type Writer struct {
	// Next is where output is written.
	Next io.Writer

	// mu protects fields below.
	mu sync.Mutex

	// dropped is the number of messages that failed to be written.
	dropped int
}

// Write implements io.Writer.Write.
func (l *Writer) Write(data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dropped > 0 {
		msg := fmt.Sprintf("\n*** Dropped %d log messages ***\n", l.dropped)
		if _, err := l.Next.Write([]byte(msg)); err != nil {
			l.dropped++
			return 0, err
		}
		l.dropped = 0
	}
	n, err := l.Next.Write(data)
	if err != nil {
		l.dropped++
	}
	return n, err
}

// log is the default logger.
var log atomic.Pointer[BasicLogger]

func init() {
	l, err := NewBasicLogger("text", os.Stderr)
	if err != nil {
		panic(err)
	}
	log.Store(l)
}

// Log retrieves the global logger.
func Log() *BasicLogger {
	return log.Load()
}

// SetTarget replaces the global logger with one writing to w in the given
// format. The current level is kept.
func SetTarget(format string, w io.Writer) error {
	l, err := NewBasicLogger(format, w)
	if err != nil {
		return err
	}
	l.Logger.SetLevel(Log().Logger.GetLevel())
	log.Store(l)
	return nil
}

// SetLevel sets the level of the global logger.
func SetLevel(level Level) {
	Log().SetLevel(level)
}

// IsLogging returns whether the global logger is logging at level.
func IsLogging(level Level) bool {
	return Log().IsLogging(level)
}

// Debugf logs to the global logger.
func Debugf(format string, v ...any) {
	Log().Debugf(format, v...)
}

// Infof logs to the global logger.
func Infof(format string, v ...any) {
	Log().Infof(format, v...)
}

// Warningf logs to the global logger.
func Warningf(format string, v ...any) {
	Log().Warningf(format, v...)
}

// WithFields returns an entry of the global logger carrying fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log().WithFields(fields)
}

// WithError returns an entry of the global logger carrying err.
func WithError(err error) *logrus.Entry {
	return Log().WithError(err)
}
