// Package logging builds the process logger. There is no package-level
// logger; the result is passed to every component that logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates a text logger writing to out at the given level.
// A nil out writes to stderr.
func New(level logrus.Level, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	return &logrus.Logger{
		Out: out,
		Formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		},
		Hooks:    make(logrus.LevelHooks),
		Level:    level,
		ExitFunc: os.Exit,
	}
}

// ParseLevel reads a level name such as "debug" or "warn".
func ParseLevel(name string) (logrus.Level, error) {
	l, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("unknown level %q (want trace, debug, info, warn or error)", name)
	}
	return l, nil
}
