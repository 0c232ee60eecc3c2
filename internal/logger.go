package internal

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the JSON logger. When a log file is configured, records
// are also written to it with size-based rotation.
func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, io.Closer) {
	if out == nil {
		out = os.Stdout
	}
	var closer io.Closer = nopCloser{}
	if cfg.LogFile.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel})), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
