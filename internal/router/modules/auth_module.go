package modules

import (
	"github.com/gin-gonic/gin"

	"github.com/okisetiawan/authflow/internal/application"
	handlers "github.com/okisetiawan/authflow/internal/interface/http"
	"github.com/okisetiawan/authflow/internal/interface/middleware"
	"github.com/okisetiawan/authflow/pkg/helpers"
)

// AuthModule wires the authentication handlers and cookie-auth middleware.
// Public: register, verify-otp, resend-otp, login, logout, password flows.
// Protected: GET /me.
type AuthModule struct {
	Handler  *handlers.AuthHandler
	Svc      *application.Service
	Sessions *helpers.SessionManager
}

func NewAuthModule(h *handlers.AuthHandler, svc *application.Service, sessions *helpers.SessionManager) *AuthModule {
	return &AuthModule{Handler: h, Svc: svc, Sessions: sessions}
}

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	grp := rg.Group("/auth")

	grp.POST("/register", m.Handler.Register)
	grp.POST("/verify-otp", m.Handler.VerifyOTP)
	grp.POST("/resend-otp", m.Handler.ResendOTP)
	grp.POST("/login", m.Handler.Login)
	// Public on purpose; it only clears the cookie if present.
	grp.POST("/logout", m.Handler.Logout)
	grp.POST("/password/request-otp", m.Handler.RequestPasswordReset)
	grp.POST("/password/reset", m.Handler.ResetPassword)

	auth := grp.Group("/")
	auth.Use(middleware.RequireAuth(m.Svc, m.Sessions))
	{
		auth.GET("/me", m.Handler.Me)
	}
}
