package config

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Verbose enables debug output when true
var Verbose bool

// Log is the shared logger. Library packages only log at debug level.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetVerbose toggles debug output on the shared logger.
func SetVerbose(v bool) {
	Verbose = v
	if v {
		Log.SetLevel(logrus.DebugLevel)
	} else {
		Log.SetLevel(logrus.InfoLevel)
	}
}

// Debugf prints debug messages when Verbose is true
func Debugf(format string, args ...any) {
	if Verbose {
		Log.Debugf(format, args...)
	}
}

// Infof prints an informational message.
func Infof(format string, args ...any) {
	Log.Infof(format, args...)
}

// Warnf prints a warning.
func Warnf(format string, args ...any) {
	Log.Warnf(format, args...)
}

// Transfer holds the tunables of a fragmented write.
type Transfer struct {
	PacketSize       int
	InterPacketDelay time.Duration
	PerPacketTimeout time.Duration
	MaxTryCount      int
}

// DefaultTransfer matches a default 23-byte ATT MTU.
var DefaultTransfer = Transfer{
	PacketSize:       20,
	InterPacketDelay: 10 * time.Millisecond,
	PerPacketTimeout: time.Second,
	MaxTryCount:      3,
}
