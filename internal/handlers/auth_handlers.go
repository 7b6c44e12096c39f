package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"storefront_app/internal/apperr"
	authMiddleware "storefront_app/internal/middleware"
)

const sessionTTL = 5 * 24 * time.Hour

// SessionIssuer is the part of the Firebase auth client used to exchange an ID token for a session cookie
type SessionIssuer interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
}

// AuthHandler handles store owner sessions
type AuthHandler struct {
	issuer       SessionIssuer
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler; secureCookie should be set when served over https
func NewAuthHandler(issuer SessionIssuer, secureCookie bool) *AuthHandler {
	return &AuthHandler{issuer: issuer, secureCookie: secureCookie}
}

// HandleLogin verifies the Firebase ID token and creates a session cookie
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	if h.issuer == nil {
		return apperr.Unavailable("authentication is not configured")
	}

	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader {
		return apperr.Unauthorized("missing bearer token")
	}

	ctx := c.Request().Context()
	if _, err := h.issuer.VerifyIDToken(ctx, tokenString); err != nil {
		return apperr.Unauthorized("invalid token")
	}

	cookieValue, err := h.issuer.SessionCookie(ctx, tokenString, sessionTTL)
	if err != nil {
		return apperr.Internal(err)
	}

	c.SetCookie(&http.Cookie{
		Name:     authMiddleware.SessionCookie,
		Value:    cookieValue,
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, map[string]string{
		"status": "success",
	})
}

// HandleLogout clears the session cookie
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     authMiddleware.SessionCookie,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	})

	return c.JSON(http.StatusOK, map[string]string{
		"status": "logged out",
	})
}
