package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxFirebaseUID = "firebase_uid"
	CtxEmail       = "email"
	CtxDisplayName = "display_name"
	CtxMemberID    = "member_id"
)

// UserFirebaseUID extracts the Firebase UID from the Gin context
// This is set by FirebaseAuthMiddleware
func UserFirebaseUID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxFirebaseUID))
}

// MemberID returns the member id set by WithMember, 0 when absent.
func MemberID(c *gin.Context) int64 {
	return c.GetInt64(CtxMemberID)
}
