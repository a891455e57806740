// Package log provides a thin wrapper around zerolog with a process-wide
// logger and structured key/value helpers.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

var (
	logger zerolog.Logger
	mu     sync.RWMutex
)

func init() {
	// Always have a usable logger, even before Init is called.
	Init(LevelInfo, "stderr")
}

// Init configures the global logger. Output is "stdout", "stderr" or a file
// path.
func Init(level, output string) {
	var out *os.File
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			out = os.Stderr
		} else {
			out = f
		}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	writer := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	l := zerolog.New(writer).Level(lvl).With().Timestamp().Logger()

	mu.Lock()
	logger = l
	mu.Unlock()
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func withFields(ev *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		ev = ev.Interface(key, keyvals[i+1])
	}
	return ev
}

// Debugw logs a message at debug level with alternating key/value pairs.
func Debugw(msg string, keyvals ...interface{}) {
	l := Logger()
	withFields(l.Debug(), keyvals).Msg(msg)
}

// Infow logs a message at info level with alternating key/value pairs.
func Infow(msg string, keyvals ...interface{}) {
	l := Logger()
	withFields(l.Info(), keyvals).Msg(msg)
}

// Warnw logs a message at warn level with alternating key/value pairs.
func Warnw(msg string, keyvals ...interface{}) {
	l := Logger()
	withFields(l.Warn(), keyvals).Msg(msg)
}

// Errorw logs a message at error level with alternating key/value pairs.
func Errorw(msg string, keyvals ...interface{}) {
	l := Logger()
	withFields(l.Error(), keyvals).Msg(msg)
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, args...)
}

// Fatalf logs a formatted message and exits.
func Fatalf(format string, args ...interface{}) {
	l := Logger()
	l.Fatal().Msgf(format, args...)
}
