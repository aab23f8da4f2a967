package handler

import (
	"net/http"
	"time"

	"github.com/Baaaki/component-review/internal/middleware"
	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/internal/service"
	"github.com/Baaaki/component-review/pkg/logger"
	"github.com/Baaaki/component-review/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService   *service.AuthService
	secureCookies bool
	tokenTTL      time.Duration
}

func NewAuthHandler(authService *service.AuthService, secureCookies bool, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		secureCookies: secureCookies,
		tokenTTL:      tokenTTL,
	}
}

type RegisterRequest struct {
	Username  string `json:"username" binding:"required,min=3,max=50"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name" binding:"max=150"`
	LastName  string `json:"last_name" binding:"max=150"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Registration request parsing failed",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		response.BindError(c, err)
		return
	}

	user, token, err := h.authService.Register(requestMeta(c), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setTokenCookie(c, token)
	c.JSON(http.StatusCreated, authPayload(user, token))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Log.Warn("Login request parsing failed",
			zap.String("ip", c.ClientIP()),
			zap.Error(err),
		)
		response.BindError(c, err)
		return
	}

	user, token, err := h.authService.Login(requestMeta(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setTokenCookie(c, token)
	c.JSON(http.StatusOK, authPayload(user, token))
}

func (h *AuthHandler) Logout(c *gin.Context) {
	h.authService.Logout(requestMeta(c), middleware.CurrentUser(c))

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, userResponse(middleware.CurrentUser(c)))
}

func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	h.authService.RequestPasswordReset(c.Request.Context(), requestMeta(c), req.Email)
	c.JSON(http.StatusOK, gin.H{"message": service.PasswordResetMessage})
}

func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	if err := h.authService.ResetPassword(requestMeta(c), req.Token, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
}

// setTokenCookie mirrors the bearer token into an HTTP-only cookie
func (h *AuthHandler) setTokenCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		middleware.TokenCookie,
		token,
		int(h.tokenTTL.Seconds()),
		"/",
		"",
		h.secureCookies,
		true,
	)
}

func authPayload(user *models.User, token string) gin.H {
	return gin.H{
		"access": token,
		"user":   userResponse(user),
	}
}
