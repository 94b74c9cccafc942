// Package log provides the namespaced, level-colored logger used across
// respkit's internal packages. It is a direct descendant of a Socket.IO
// client's pkg/log: one Log per subsystem, built on the standard
// log.Logger, with github.com/gookit/color for level tagging and a
// DEBUG environment variable that filters debug output by namespace
// glob.
package log

import (
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/gookit/color"
)

var (
	// DEBUG globally enables Debug-level output; still filtered per
	// logger by the DEBUG environment variable's namespace glob.
	DEBUG  = false
	Output io.Writer = os.Stderr
	Flags  int       = log.LstdFlags
)

// Log is a namespaced logger instance.
type Log struct {
	*log.Logger

	prefix          atomic.Pointer[string]
	namespaceRegexp *regexp.Regexp
}

// New creates a Log for the given namespace, e.g. "resp:codec".
func New(namespace string) *Log {
	l := &Log{Logger: log.New(Output, "", Flags)}
	l.SetPrefix(namespace)

	if debug := os.Getenv("DEBUG"); debug != "" {
		pattern := "^" + strings.ReplaceAll(regexp.QuoteMeta(strings.TrimSpace(debug)), `\*`, `.*`) + "$"
		l.namespaceRegexp = regexp.MustCompile(pattern)
	}

	return l
}

func (l *Log) checkNamespace() bool {
	if l.namespaceRegexp == nil {
		return false
	}
	return l.namespaceRegexp.MatchString(l.Prefix())
}

func (l *Log) Prefix() string {
	if v := l.prefix.Load(); v != nil {
		return *v
	}
	return ""
}

func (l *Log) SetPrefix(prefix string) {
	l.prefix.Store(&prefix)
	l.Logger.SetPrefix(prefix + " ")
}

func (l *Log) Debugf(format string, args ...any) {
	if !DEBUG {
		return
	}
	if l.namespaceRegexp != nil && !l.checkNamespace() {
		return
	}
	l.Logger.Println(color.Debug.Sprintf(format, args...))
}

func (l *Log) Debug(msg string, args ...any) { l.Debugf(msg, args...) }

func (l *Log) Infof(format string, args ...any) {
	l.Logger.Println(color.Info.Sprintf(format, args...))
}
func (l *Log) Info(msg string, args ...any) { l.Infof(msg, args...) }

func (l *Log) Warningf(format string, args ...any) {
	l.Logger.Println(color.Warn.Sprintf(format, args...))
}
func (l *Log) Warning(msg string, args ...any) { l.Warningf(msg, args...) }

func (l *Log) Errorf(format string, args ...any) {
	l.Logger.Println(color.Danger.Sprintf(format, args...))
}
func (l *Log) Error(msg string, args ...any) { l.Errorf(msg, args...) }

func (l *Log) Successf(format string, args ...any) {
	l.Logger.Println(color.Success.Sprintf(format, args...))
}
func (l *Log) Success(msg string, args ...any) { l.Successf(msg, args...) }
