package notify

import (
	"context"
	"log/slog"
)

// Log is the fallback alerter when no Telegram credentials are configured.
// Alerts still land in the logs at ERROR level where log shipping can catch
// them.
type Log struct{}

func NewLog() *Log { return &Log{} }

func (l *Log) Alert(_ context.Context, subject, detail string) error {
	slog.Error("ALERT: "+subject, "detail", detail)
	return nil
}
