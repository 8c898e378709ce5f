package app

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/clawdesk/clawdesk/internal/security"
)

// Log file rotation limits.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// NewLogger builds the process logger. Lines go to console and, when
// logPath is set, to a rotating file. Every record passes the redactor
// first. The returned closer releases the file.
func NewLogger(console io.Writer, logPath string, level slog.Level, redactor *security.Redactor) (*slog.Logger, io.Closer) {
	out := console
	var closer io.Closer = nopCloser{}

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err == nil {
			rotator := &lumberjack.Logger{
				Filename:   logPath,
				MaxSize:    logMaxSizeMB,
				MaxBackups: logMaxBackups,
				MaxAge:     logMaxAgeDays,
				Compress:   true,
			}
			out = io.MultiWriter(console, rotator)
			closer = rotator
		}
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(security.NewRedactingHandler(handler, redactor)), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
