package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldbeesion/beecareful-backend/config"
)

func TestInitSentry_DisabledWithoutDSN(t *testing.T) {
	require.NoError(t, InitSentry(config.TelemetryConfig{}, "test"))
	assert.False(t, enabled)

	assert.NotPanics(t, func() {
		CaptureCritical(errors.New("boom"), "worker", map[string]string{"photo_id": "1"})
		Flush(10 * time.Millisecond)
	})
}
