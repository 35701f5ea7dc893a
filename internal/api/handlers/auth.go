package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Essu-man/Minuty/internal/config"
	"github.com/Essu-man/Minuty/internal/db/models"
	"github.com/Essu-man/Minuty/internal/services"
)

type AuthHandler struct {
	authService *services.AuthService
	security    config.SecurityConfig
	logger      *zap.Logger
}

type credentials struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

func NewAuthHandler(authService *services.AuthService, security config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		security:    security,
		logger:      logger.With(zap.String("handler", "auth")),
	}
}

func (ah *AuthHandler) SignUp(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, err, "Email and password are required")
		return
	}
	user, token, err := ah.authService.SignUp(c.Request.Context(), req.Email, req.Password, req.DisplayName, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		respondError(c, ah.logger, err)
		return
	}
	ah.startSession(c, http.StatusCreated, user, token)
}

func (ah *AuthHandler) SignIn(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectBody(c, err, "Email and password are required")
		return
	}
	user, token, err := ah.authService.SignIn(c.Request.Context(), req.Email, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		ah.logger.Warn("Sign-in failed", zap.String("client_ip", c.ClientIP()))
		respondError(c, ah.logger, err)
		return
	}
	ah.startSession(c, http.StatusOK, user, token)
}

func (ah *AuthHandler) startSession(c *gin.Context, status int, user *models.User, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ah.security.SessionCookie, token, int(ah.security.SessionTimeout.Seconds()), "/", "", ah.security.SecureCookies, true)
	c.JSON(status, gin.H{"user": user, "token": token})
}

func (ah *AuthHandler) Logout(c *gin.Context) {
	if token := c.GetString("sessionToken"); token != "" {
		ah.authService.Logout(token)
	}
	c.SetCookie(ah.security.SessionCookie, "", -1, "/", "", ah.security.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"status": "signed_out"})
}

func (ah *AuthHandler) Me(c *gin.Context) {
	user, _ := c.Get("user")
	c.JSON(http.StatusOK, gin.H{"user": user})
}
