// Package log provides the category-aware logger used across modloader.
package log

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger writes leveled log entries tagged with a category.
// Entries whose category does not match the category filter are dropped.
type Logger struct {
	*logrus.Logger

	mu             sync.RWMutex
	categoryFilter *regexp.Regexp
	colorize       func(a ...interface{}) string
}

// New wraps logger. A nil logger gets a fresh logrus instance writing to stderr.
func New(logger *logrus.Logger, categoryFilter *regexp.Regexp) *Logger {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
	}
	return &Logger{
		Logger:         logger,
		categoryFilter: categoryFilter,
		colorize:       color.New(color.FgMagenta).SprintFunc(),
	}
}

// NewNullLogger returns a logger that discards everything.
func NewNullLogger() *Logger {
	return New(NullLogger(), nil)
}

// NullLogger returns a logrus logger with its output discarded.
func NullLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// Tracef logs a trace message.
func (l *Logger) Tracef(category string, msg string, args ...interface{}) {
	l.Logf(logrus.TraceLevel, category, msg, args...)
}

// Debugf logs a debug message.
func (l *Logger) Debugf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.DebugLevel, category, msg, args...)
}

// Errorf logs an error message.
func (l *Logger) Errorf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.ErrorLevel, category, msg, args...)
}

// Infof logs an info message.
func (l *Logger) Infof(category string, msg string, args ...interface{}) {
	l.Logf(logrus.InfoLevel, category, msg, args...)
}

// Warnf logs an warning message.
func (l *Logger) Warnf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.WarnLevel, category, msg, args...)
}

// Logf logs a message with the given level and category.
func (l *Logger) Logf(level logrus.Level, category string, msg string, args ...interface{}) {
	if l == nil || l.Logger == nil {
		return
	}
	if !l.IsLevelEnabled(level) {
		return
	}

	l.mu.RLock()
	filter := l.categoryFilter
	l.mu.RUnlock()
	if filter != nil && !filter.MatchString(category) {
		return
	}

	cat := category
	if l.DebugMode() && isTerminal(l.Out) {
		cat = l.colorize(category)
	}
	l.WithField("category", cat).Logf(level, msg, args...)
}

// SetLevel sets the logger level from a level string.
// Accepted values are the logrus level names: panic, fatal, error,
// warn(ing), info, debug and trace.
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", level, err)
	}
	l.Logger.SetLevel(pl)
	return nil
}

// SetCategoryFilter sets the category filter. An empty expression clears it.
func (l *Logger) SetCategoryFilter(expr string) error {
	var re *regexp.Regexp
	if expr != "" {
		var err error
		if re, err = regexp.Compile(expr); err != nil {
			return fmt.Errorf("compiling log category filter %q: %w", expr, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.categoryFilter = re

	return nil
}

// DebugMode returns true if the logger level is set to Debug or higher.
func (l *Logger) DebugMode() bool {
	return l.GetLevel() >= logrus.DebugLevel
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
