package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/worldbeesion/beecareful-backend/config"
)

var enabled bool

// InitSentry configures error reporting. An empty DSN leaves reporting disabled
// and every Capture call becomes a no-op.
func InitSentry(cfg config.TelemetryConfig, version string) error {
	if cfg.SentryDSN == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          fmt.Sprintf("beecareful-backend@%s", version),
		SampleRate:       1.0,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	enabled = true
	return nil
}

// CaptureCritical reports an error that left persisted state inconsistent.
func CaptureCritical(err error, component string, tags map[string]string) {
	if !enabled || err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTag("component", component)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits for buffered events to be delivered.
func Flush(timeout time.Duration) {
	if !enabled {
		return
	}
	sentry.Flush(timeout)
}
