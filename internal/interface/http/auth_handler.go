package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/okisetiawan/authflow/internal/application"
	"github.com/okisetiawan/authflow/internal/interface/middleware"
	"github.com/okisetiawan/authflow/pkg/helpers"
	"github.com/okisetiawan/authflow/pkg/response"
	"github.com/okisetiawan/authflow/pkg/validation"
)

// AuthHandler exposes the authentication flows over HTTP. Error detail never
// leaves the process: unexpected faults are logged and answered with a
// generic 500.
type AuthHandler struct {
	Svc     *application.Service
	Logger  *logrus.Logger
	Cookies *helpers.CookieManager
}

func NewAuthHandler(svc *application.Service, logger *logrus.Logger, cookies *helpers.CookieManager) *AuthHandler {
	return &AuthHandler{Svc: svc, Logger: logger, Cookies: cookies}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required,otp"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OTP         string `json:"otp" binding:"required,otp"`
	NewPassword string `json:"new_password" binding:"required"`
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	u, err := h.Svc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, application.ErrEmailTaken) {
			response.Error[any](c, http.StatusBadRequest, "user already exists", nil)
			return
		}
		h.serverError(c, "register", err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"user_id": u.ID}, "user registered, OTP sent to your email", nil)
}

// VerifyOTP POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	if err := h.Svc.VerifyOTP(c.Request.Context(), req.Email, req.OTP); err != nil {
		switch {
		case errors.Is(err, application.ErrInvalidUser):
			response.Error[any](c, http.StatusBadRequest, "invalid user", nil)
		case errors.Is(err, application.ErrInvalidOTP):
			response.Error[any](c, http.StatusBadRequest, "invalid or expired OTP", nil)
		default:
			h.serverError(c, "verify otp", err)
		}
		return
	}

	response.Success[any](c, http.StatusOK, nil, "account verified successfully", nil)
}

// ResendOTP POST /api/auth/resend-otp
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	if err := h.Svc.ResendOTP(c.Request.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, application.ErrUserNotFound):
			response.Error[any](c, http.StatusBadRequest, "user not found", nil)
		case errors.Is(err, application.ErrAlreadyVerified):
			response.Error[any](c, http.StatusBadRequest, "account is already verified", nil)
		default:
			h.serverError(c, "resend otp", err)
		}
		return
	}

	response.Success[any](c, http.StatusOK, nil, "a new OTP has been sent to your email", nil)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	profile, token, exp, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrEmailNotVerified):
			response.Error[any](c, http.StatusForbidden, "please verify your email first", nil)
		case errors.Is(err, application.ErrInvalidCredentials):
			if h.Logger != nil {
				h.Logger.WithFields(logrus.Fields{
					"email":     req.Email,
					"client_ip": middleware.ClientIP(c),
				}).Warn("failed login attempt")
			}
			response.Error[any](c, http.StatusBadRequest, "invalid credentials", nil)
		default:
			h.serverError(c, "login", err)
		}
		return
	}

	h.Cookies.SetSession(c, token, exp)
	response.Success(c, http.StatusOK, gin.H{"user": profile}, "logged in successfully", map[string]any{"expires_at": exp})
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	h.Cookies.Clear(c)
	response.Success[any](c, http.StatusOK, nil, "logged out successfully", nil)
}

// RequestPasswordReset POST /api/auth/password/request-otp
// The response is identical whether or not the email exists.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	if err := h.Svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.serverError(c, "request password reset", err)
		return
	}

	response.Success[any](c, http.StatusOK, nil, "if that email exists, an OTP has been sent", nil)
}

// ResetPassword POST /api/auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	if err := h.Svc.ResetPassword(c.Request.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, application.ErrInvalidReset):
			response.Error[any](c, http.StatusBadRequest, "invalid reset attempt", nil)
		case errors.Is(err, application.ErrInvalidOTP):
			response.Error[any](c, http.StatusBadRequest, "invalid or expired OTP", nil)
		default:
			h.serverError(c, "reset password", err)
		}
		return
	}

	response.Success[any](c, http.StatusOK, nil, "password has been reset successfully", nil)
}

// Me GET /api/auth/me (auth required)
func (h *AuthHandler) Me(c *gin.Context) {
	v, ok := c.Get(middleware.CtxUserKey)
	profile, typed := v.(application.Profile)
	if !ok || !typed {
		response.Error[any](c, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"user": profile}, "profile", nil)
}

func (h *AuthHandler) serverError(c *gin.Context, op string, err error) {
	if h.Logger != nil {
		h.Logger.WithError(err).WithFields(logrus.Fields{
			"op":        op,
			"client_ip": middleware.ClientIP(c),
		}).Error("auth operation failed")
	}
	response.Error[any](c, http.StatusInternalServerError, "server error", nil)
}
