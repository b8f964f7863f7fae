package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"authsvc/internal/service"
)

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger           *zap.Logger
	authServ         *service.AuthService
	resetRedirectURL string
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, authServ *service.AuthService, resetRedirectURL string) *AuthHandler {
	if resetRedirectURL == "" {
		resetRedirectURL = "/reset_password.html"
	}
	return &AuthHandler{
		logger:           logger,
		authServ:         authServ,
		resetRedirectURL: resetRedirectURL,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register maneja POST /api/v1/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	user, err := h.authServ.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateEmail):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Email already registered"})
		case errors.Is(err, service.ErrDuplicateUsername):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Username already registered"})
		default:
			h.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not register user"})
		}
		return
	}

	c.JSON(http.StatusCreated, user)
}

// Login maneja POST /api/v1/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	result, err := h.authServ.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "Incorrect username or password"})
		case errors.Is(err, service.ErrInactiveUser):
			c.JSON(http.StatusBadRequest, gin.H{"detail": "User is inactive"})
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not login"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// RequestPasswordReset maneja POST /api/v1/password/reset.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid password reset request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	if err := h.authServ.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		switch {
		case errors.Is(err, service.ErrEmailNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "Email not found"})
		case errors.Is(err, service.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"detail": "Too many requests"})
		default:
			h.logger.Error("password reset request failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not request password reset"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset email sent"})
}

// ConfirmPasswordReset maneja GET /api/v1/password/reset/:token.
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	token := c.Param("token")

	if _, err := h.authServ.ConfirmPasswordReset(c.Request.Context(), token); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			c.JSON(http.StatusNotFound, gin.H{"detail": "Invalid token"})
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
		default:
			h.logger.Error("password reset confirm failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not confirm password reset"})
		}
		return
	}

	c.Redirect(http.StatusFound, h.resetRedirectURL)
}

// CompletePasswordReset maneja POST /api/v1/password/reset/:token.
// El cuerpo reutiliza el esquema de registro; solo email y password importan.
func (h *AuthHandler) CompletePasswordReset(c *gin.Context) {
	token := c.Param("token")

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid password reset completion", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	if err := h.authServ.CompletePasswordReset(c.Request.Context(), token, req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			c.JSON(http.StatusNotFound, gin.H{"detail": "Invalid token"})
		case errors.Is(err, service.ErrEmailNotFound):
			c.JSON(http.StatusNotFound, gin.H{"detail": "Email not found"})
		default:
			h.logger.Error("password reset completion failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not reset password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

// Me maneja GET /api/v1/users/me.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := GetAuthUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Missing token"})
		return
	}

	user, err := h.authServ.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "User not found"})
			return
		}
		h.logger.Error("get current user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not load user"})
		return
	}

	c.JSON(http.StatusOK, user)
}
