package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"

	authctx "github.com/worldbeesion/beecareful-backend/internal/auth"
)

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseAuthMiddleware verifies the bearer ID token and stores the uid,
// email and display name of the caller in the Gin context.
func FirebaseAuthMiddleware(verifier tokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			return
		}

		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(authctx.CtxFirebaseUID, token.UID)
		if email, ok := token.Claims["email"].(string); ok {
			c.Set(authctx.CtxEmail, email)
		}
		if name, ok := token.Claims["name"].(string); ok {
			c.Set(authctx.CtxDisplayName, name)
		}

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}
