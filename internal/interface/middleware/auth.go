package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/okisetiawan/authflow/internal/application"
	"github.com/okisetiawan/authflow/pkg/helpers"
	"github.com/okisetiawan/authflow/pkg/response"
)

const (
	CtxUserIDKey = "userID"
	CtxUserKey   = "user"
)

// RequireAuth reads the session cookie, verifies the token and loads the
// user's profile into the Gin context. Every failure mode answers the same
// generic 401.
func RequireAuth(svc *application.Service, sessions *helpers.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(helpers.SessionCookieName)
		if err != nil || token == "" {
			response.Error[any](c, http.StatusUnauthorized, "auth token missing", nil)
			c.Abort()
			return
		}
		claims, err := sessions.Parse(token)
		if err != nil {
			response.Error[any](c, http.StatusUnauthorized, "invalid or expired token", nil)
			c.Abort()
			return
		}

		profile, err := svc.GetProfile(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error[any](c, http.StatusUnauthorized, "invalid or expired token", nil)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, profile.ID)
		c.Set(CtxUserKey, profile)
		c.Next()
	}
}
