package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"firebase.google.com/go/v4/messaging"
)

var ErrNoDelivery = errors.New("notification was not delivered to any device")

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// TokenStore resolves the push tokens of a member's devices.
type TokenStore interface {
	DeviceTokens(ctx context.Context, memberID int64) ([]string, error)
	RemoveDeviceTokens(ctx context.Context, tokens []string) error
}

// FCMNotifier delivers notifications through Firebase Cloud Messaging to
// every registered device of a member.
type FCMNotifier struct {
	sender multicastSender
	tokens TokenStore
	logger *slog.Logger
}

func NewFCMNotifier(client *messaging.Client, tokens TokenStore, logger *slog.Logger) *FCMNotifier {
	return &FCMNotifier{sender: client, tokens: tokens, logger: logger}
}

func (n *FCMNotifier) Notify(ctx context.Context, memberID int64, msg Message) error {
	tokens, err := n.tokens.DeviceTokens(ctx, memberID)
	if err != nil {
		return fmt.Errorf("load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		n.logger.InfoContext(ctx, "member has no registered devices", "member_id", memberID)
		return nil
	}

	resp, err := n.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: map[string]string{
			"beehiveId":   strconv.FormatInt(msg.BeehiveID, 10),
			"diagnosisId": strconv.FormatInt(msg.DiagnosisID, 10),
			"message":     msg.Body,
			"status":      msg.Status,
			"severity":    string(msg.Severity),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
	if err != nil {
		return fmt.Errorf("send fcm multicast: %w", err)
	}

	var stale []string
	for i, r := range resp.Responses {
		if r.Success || i >= len(tokens) {
			continue
		}
		if messaging.IsUnregistered(r.Error) || messaging.IsInvalidArgument(r.Error) {
			stale = append(stale, tokens[i])
			continue
		}
		n.logger.WarnContext(ctx, "fcm delivery failed", "member_id", memberID, "error", r.Error)
	}

	if len(stale) > 0 {
		if err := n.tokens.RemoveDeviceTokens(ctx, stale); err != nil {
			n.logger.WarnContext(ctx, "failed to remove stale device tokens", "count", len(stale), "error", err)
		}
	}

	if resp.SuccessCount == 0 {
		return fmt.Errorf("%w: %d failures", ErrNoDelivery, resp.FailureCount)
	}
	return nil
}
