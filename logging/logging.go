// Package logging provides logrus loggers with a common format for all
// bpms daemons and tools.
package logging

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogArgs gives a go-arg struct the standard log level flag when
// embedded.
type LogArgs struct {
	LogLevel string `arg:"-l,--log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

type formatter struct{}

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

// NewLogger returns a logger set to the given level. Unknown levels fall
// back to info.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(new(formatter))
	SetLogLevel(log, level)
	return log
}

// SetLogLevel changes the level of an existing logger.
func SetLogLevel(log *logrus.Logger, level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}
