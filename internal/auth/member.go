package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/worldbeesion/beecareful-backend/internal/members"
)

type memberEnsurer interface {
	EnsureMember(ctx context.Context, m members.UpsertMember) (int64, error)
}

// WithMember resolves the authenticated Firebase user to a member row and
// stores its id under CtxMemberID. It must run after an authenticating
// middleware.
func WithMember(repo memberEnsurer) gin.HandlerFunc {
	return func(c *gin.Context) {
		fuid := UserFirebaseUID(c)
		if fuid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authenticated user"})
			return
		}

		id, err := repo.EnsureMember(c.Request.Context(), members.UpsertMember{
			FirebaseUID: fuid,
			Email:       c.GetString(CtxEmail),
			DisplayName: c.GetString(CtxDisplayName),
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve member"})
			return
		}

		c.Set(CtxMemberID, id)
		c.Next()
	}
}

// DevUser sets a Firebase uid from X-User-Id without verifying anything.
// If the header is missing it falls back to "demo-user".
// Use this ONLY for development/testing.
func DevUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader("X-User-Id"))
		if uid == "" {
			uid = "demo-user"
		}
		c.Set(CtxFirebaseUID, uid)
		if email := strings.TrimSpace(c.GetHeader("X-User-Email")); email != "" {
			c.Set(CtxEmail, email)
		}
		if name := strings.TrimSpace(c.GetHeader("X-User-Name")); name != "" {
			c.Set(CtxDisplayName, name)
		}
		c.Next()
	}
}
