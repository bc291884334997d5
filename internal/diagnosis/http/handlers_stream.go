package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/worldbeesion/beecareful-backend/internal/auth"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
)

const keepAliveInterval = 15 * time.Second

// StreamStatus streams status events of a diagnosis using Server-Sent Events
// (SSE). The stream ends after the finalized event.
func (h *Handler) StreamStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()

	// Verifies the diagnosis exists and belongs to the member.
	st, err := h.diagnoses.GetStatus(ctx, auth.MemberID(c), id)
	if err != nil {
		h.writeError(c, err, "get diagnosis status")
		return
	}

	sub := h.events.Subscribe(ctx, id)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		h.writeError(c, err, "subscribe to diagnosis events")
		return
	}
	messages := sub.Channel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // nginx: disable buffering
	c.Status(http.StatusOK)

	c.SSEvent("initial", gin.H{"diagnosisId": st.DiagnosisID, "status": int(st.State), "finalized": st.Finalized})
	c.Writer.Flush()
	if st.Finalized {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			c.Writer.Flush()

		case msg, ok := <-messages:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: status\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()
			if isFinalized(msg.Payload) {
				return
			}
		}
	}
}

func isFinalized(payload string) bool {
	var evt domain.StatusEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return false
	}
	return evt.Type == domain.EventFinalized
}
