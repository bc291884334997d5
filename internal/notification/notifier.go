package notification

import (
	"context"
	"log/slog"
)

type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
)

// Message is a push notification addressed to a member.
type Message struct {
	Title       string
	Body        string
	Severity    Severity
	BeehiveID   int64
	DiagnosisID int64
	Status      string
}

type Notifier interface {
	Notify(ctx context.Context, memberID int64, msg Message) error
}

// LogNotifier writes notifications to the log. It stands in for push
// delivery when Firebase is not configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, memberID int64, msg Message) error {
	n.logger.InfoContext(ctx, "notification",
		"member_id", memberID,
		"title", msg.Title,
		"body", msg.Body,
		"severity", msg.Severity,
		"beehive_id", msg.BeehiveID,
		"diagnosis_id", msg.DiagnosisID,
	)
	return nil
}
