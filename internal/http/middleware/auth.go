package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-viewer/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-viewer/internal/platform/jwtauth"
	"github.com/yungbote/neurobridge-viewer/internal/platform/logger"
)

const authErrorKey = "auth_error"

// AuthMiddleware verifies the caller's access token. Only a verified token
// is forwarded to the archive source, and only its subject becomes the
// viewer key.
type AuthMiddleware struct {
	log      *logger.Logger
	verifier *jwtauth.Verifier
}

func NewAuthMiddleware(log *logger.Logger, verifier *jwtauth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), verifier: verifier}
}

// AttachBearer verifies any presented token and records the outcome; it
// never rejects on its own.
func (am *AuthMiddleware) AttachBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractTokenFromAll(c)
		if tokenString == "" {
			c.Next()
			return
		}
		if am.verifier == nil {
			c.Set(authErrorKey, jwtauth.ErrInvalidToken)
			c.Next()
			return
		}
		sub, err := am.verifier.Subject(tokenString)
		if err != nil {
			am.log.Debug("Rejected bearer token", "path", c.FullPath(), "error", err)
			c.Set(authErrorKey, err)
			c.Next()
			return
		}
		ctx := ctxutil.WithBearerToken(c.Request.Context(), tokenString)
		ctx = ctxutil.WithViewerKey(ctx, sub)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireViewer rejects requests without a verified viewer identity.
func (am *AuthMiddleware) RequireViewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ctxutil.GetViewerKey(c.Request.Context()) != "" {
			c.Next()
			return
		}
		code, msg, relogin := "unauthorized", "missing or invalid token", false
		if v, ok := c.Get(authErrorKey); ok {
			if err, _ := v.(error); errors.Is(err, jwtauth.ErrExpiredToken) {
				code, msg, relogin = "session_expired", "please log in again", true
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"message": msg, "code": code, "relogin": relogin},
		})
	}
}

func extractTokenFromAll(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	// Asset requests issued by a model loader cannot set headers.
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	return ""
}
