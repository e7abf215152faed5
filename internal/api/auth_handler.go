package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fleetgrid-io/fleetgrid-ce/internal/auth"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/guard"
	"github.com/fleetgrid-io/fleetgrid-ce/internal/models"
)

// AuthHandler serves login and logout.
type AuthHandler struct {
	service    *auth.AuthService
	cookieName string
	secure     bool
}

func NewAuthHandler(service *auth.AuthService, cookieName string, secure bool) *AuthHandler {
	return &AuthHandler{service: service, cookieName: cookieName, secure: secure}
}

// Login authenticates a dashboard user. A denial from the admission gate is
// surfaced as 429 with Retry-After; invalid credentials are always the same
// 401 regardless of whether the account exists.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.writeLoginError(c, err)
		return
	}

	if h.cookieName != "" {
		maxAge := int(time.Until(resp.ExpiresAt).Seconds())
		c.SetCookie(h.cookieName, resp.Token, maxAge, "/", "", h.secure, true)
	}
	c.JSON(http.StatusOK, resp)
}

// Logout clears the session cookie. Tokens are stateless, so there is
// nothing to revoke server-side.
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.cookieName != "" {
		c.SetCookie(h.cookieName, "", -1, "/", "", h.secure, true)
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) writeLoginError(c *gin.Context, err error) {
	var rl *auth.RateLimitError
	switch {
	case errors.As(err, &rl):
		d := rl.Decision
		c.Header("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
		body := gin.H{
			"error":       "too many attempts",
			"retry_after": d.RetryAfterSeconds,
		}
		if d.RequiresCaptcha {
			body["requires_captcha"] = true
		}
		c.JSON(http.StatusTooManyRequests, body)
	case errors.Is(err, guard.ErrMissingIdentity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and source address are required"})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserInactive):
		// Inactive accounts get the same answer as bad passwords so the
		// login endpoint doesn't leak account state.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
