// Package logger is a thin wrapper around logrus, kept to the call shape
// of the teacher's hand-rolled logger (Init/Debug/Info/Error) so existing
// call sites read the same, while backing it with the corpus's dominant
// logging library instead of a hand-rolled log.Printf level gate.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)
}

// Init sets the log level from a --log-level flag value (DEBUG/INFO/ERROR,
// case-insensitive; unrecognized values fall back to INFO).
func Init(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		log.SetLevel(logrus.DebugLevel)
	case "ERROR":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
}

// Debug logs at debug level.
func Debug(format string, v ...interface{}) { log.Debugf(format, v...) }

// Info logs at info level.
func Info(format string, v ...interface{}) { log.Infof(format, v...) }

// Error logs at error level.
func Error(format string, v ...interface{}) { log.Errorf(format, v...) }

// Fields is a structured-logging convenience matching logrus.Fields, for
// attaching fields such as docId/sid/version to a single log line
// (SPEC_FULL EXPANSION A.1). The packages in this module log through the
// formatted Debug/Info/Error helpers and do not call WithFields.
type Fields = logrus.Fields

// WithFields returns a logrus entry pre-populated with fields, for call
// sites that want structured context on a single line.
func WithFields(fields Fields) *logrus.Entry {
	return log.WithFields(fields)
}
