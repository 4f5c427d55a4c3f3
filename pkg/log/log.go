package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/levenlabs/go-lflag"
	"gopkg.in/natefinch/lumberjack.v2"
)

const redacted = "[redacted]"

var (
	defaultLogLevel slog.LevelVar
	defaultLogger   = New(os.Stdout)
)

func init() {
	defaultLogLevel.Set(slog.LevelInfo)
}

type contextKey struct{}

var loggerKey = contextKey{}

// New returns a JSON logger writing to w that follows the default level and
// redacts credentials.
func New(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource:   true,
		Level:       &defaultLogLevel,
		ReplaceAttr: redact,
	}))
}

func redact(groups []string, a slog.Attr) slog.Attr {
	switch strings.ToLower(a.Key) {
	case "password", "secret", "token":
		return slog.String(a.Key, redacted)
	}
	return a
}

// Ctx returns the logger from the context. If no logger is found, it returns the default logger.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// With returns a new context with the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Default returns the logger used when the context carries none.
func Default() *slog.Logger {
	return defaultLogger
}

func SetDefaultLogLevel(level slog.Level) {
	defaultLogLevel.Set(level)
}

// Output is the destination configured through flags.
type Output struct {
	mu sync.Mutex
	lj *lumberjack.Logger
}

// Close flushes and closes the log file, if any.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lj == nil {
		return nil
	}
	err := o.lj.Close()
	o.lj = nil
	return err
}

// Configured registers the log output flags. When log-file is set the default
// logger writes to a rotated file instead of stdout.
func Configured() *Output {
	file := lflag.String("log-file", "", "Write logs to this file instead of stdout")
	maxSize := 100
	lflag.JSON(&maxSize, "log-max-size-mb", maxSize, "Max size in MB of the log file before it is rotated")
	maxBackups := 3
	lflag.JSON(&maxBackups, "log-max-backups", maxBackups, "Max number of rotated log files to keep")

	o := &Output{}

	lflag.Do(func() {
		if *file == "" {
			return
		}
		if err := os.MkdirAll(filepath.Dir(*file), 0755); err != nil {
			panic(fmt.Sprintf("failed to create log directory: %v", err))
		}
		o.lj = &lumberjack.Logger{
			Filename:   *file,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			LocalTime:  true,
		}
		defaultLogger = New(o.lj)
	})

	return o
}
