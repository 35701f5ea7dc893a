package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Essu-man/Minuty/internal/services"
)

type AuthMiddleware struct {
	authService *services.AuthService
	cookieName  string
}

func NewAuthMiddleware(authService *services.AuthService, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		cookieName:  cookieName,
	}
}

// Token reads the session token from the cookie, then a bearer header.
func (am *AuthMiddleware) Token(c *gin.Context) string {
	if token, err := c.Cookie(am.cookieName); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// ExtractToken records whatever token the request carries as
// "sessionToken" without requiring it to be valid.
func (am *AuthMiddleware) ExtractToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := am.Token(c); token != "" {
			c.Set("sessionToken", token)
		}
		c.Next()
	}
}

// Identify sets "userID" when the request carries a valid session and
// lets anonymous requests through otherwise.
func (am *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := am.Token(c); token != "" {
			if user, err := am.authService.CurrentUser(c.Request.Context(), token); err == nil {
				c.Set("userID", user.ID)
				c.Set("user", user)
			}
		}
		c.Next()
	}
}

// RequireAuth resolves the current user once per request and stores it as
// "user" and "userID".
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := am.Token(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please sign in to continue."})
			return
		}

		user, err := am.authService.CurrentUser(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Please sign in to continue."})
			return
		}

		c.Set("userID", user.ID)
		c.Set("user", user)
		c.Set("sessionToken", token)
		c.Next()
	}
}
