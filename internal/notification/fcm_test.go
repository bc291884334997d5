package notification

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldbeesion/beecareful-backend/internal/logging"
)

type fakeSender struct {
	sent *messaging.MulticastMessage
	resp *messaging.BatchResponse
	err  error
}

func (f *fakeSender) SendEachForMulticast(_ context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	f.sent = m
	return f.resp, f.err
}

type fakeTokens struct {
	tokens  []string
	removed []string
}

func (f *fakeTokens) DeviceTokens(context.Context, int64) ([]string, error) { return f.tokens, nil }

func (f *fakeTokens) RemoveDeviceTokens(_ context.Context, tokens []string) error {
	f.removed = append(f.removed, tokens...)
	return nil
}

func TestFCMNotifier_Notify(t *testing.T) {
	msg := Message{Title: "Diagnosis complete", Body: "done", Severity: SeverityWarning, BeehiveID: 5, DiagnosisID: 9, Status: "SUCCESS"}

	t.Run("sends data payload to every device", func(t *testing.T) {
		sender := &fakeSender{resp: &messaging.BatchResponse{
			SuccessCount: 2,
			Responses:    []*messaging.SendResponse{{Success: true}, {Success: true}},
		}}
		tokens := &fakeTokens{tokens: []string{"t1", "t2"}}
		n := &FCMNotifier{sender: sender, tokens: tokens, logger: logging.Discard()}

		require.NoError(t, n.Notify(context.Background(), 1, msg))
		require.NotNil(t, sender.sent)
		assert.Equal(t, []string{"t1", "t2"}, sender.sent.Tokens)
		assert.Equal(t, "5", sender.sent.Data["beehiveId"])
		assert.Equal(t, "9", sender.sent.Data["diagnosisId"])
		assert.Equal(t, "SUCCESS", sender.sent.Data["status"])
		assert.Equal(t, "Diagnosis complete", sender.sent.Notification.Title)
	})

	t.Run("no devices is not an error", func(t *testing.T) {
		sender := &fakeSender{}
		n := &FCMNotifier{sender: sender, tokens: &fakeTokens{}, logger: logging.Discard()}
		require.NoError(t, n.Notify(context.Background(), 1, msg))
		assert.Nil(t, sender.sent)
	})

	t.Run("send failure is returned", func(t *testing.T) {
		boom := errors.New("unavailable")
		n := &FCMNotifier{sender: &fakeSender{err: boom}, tokens: &fakeTokens{tokens: []string{"t1"}}, logger: logging.Discard()}
		assert.ErrorIs(t, n.Notify(context.Background(), 1, msg), boom)
	})

	t.Run("zero deliveries is an error", func(t *testing.T) {
		sender := &fakeSender{resp: &messaging.BatchResponse{
			FailureCount: 1,
			Responses:    []*messaging.SendResponse{{Success: false, Error: errors.New("internal")}},
		}}
		n := &FCMNotifier{sender: sender, tokens: &fakeTokens{tokens: []string{"t1"}}, logger: logging.Discard()}
		assert.ErrorIs(t, n.Notify(context.Background(), 1, msg), ErrNoDelivery)
	})
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(logging.Discard()).Notify(context.Background(), 1, Message{Title: "x"}))
}
