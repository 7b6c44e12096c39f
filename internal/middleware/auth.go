package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"storefront_app/internal/apperr"
)

const (
	SessionCookie    = "session"
	ContextUserUID   = "userUID"
	ContextUserEmail = "userEmail"
)

// TokenVerifier is the part of the Firebase auth client used to authenticate store owners
type TokenVerifier interface {
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*auth.Token, error)
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// RequireAuth accepts a Firebase session cookie or an "Authorization: Bearer <id token>" header
func RequireAuth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return apperr.Unavailable("authentication is not configured")
			}

			ctx := c.Request().Context()
			var (
				token *auth.Token
				err   error
			)

			if bearer := bearerToken(c.Request()); bearer != "" {
				token, err = verifier.VerifyIDToken(ctx, bearer)
			} else if cookie, cerr := c.Cookie(SessionCookie); cerr == nil && cookie.Value != "" {
				token, err = verifier.VerifySessionCookie(ctx, cookie.Value)
				if err != nil {
					c.SetCookie(&http.Cookie{
						Name:     SessionCookie,
						Value:    "",
						MaxAge:   -1,
						HttpOnly: true,
						Path:     "/",
					})
				}
			} else {
				return apperr.Unauthorized("please log in to continue")
			}
			if err != nil || token == nil || token.UID == "" {
				return apperr.Unauthorized("your session has expired, please log in again")
			}

			c.Set(ContextUserUID, token.UID)
			if email, ok := token.Claims["email"].(string); ok {
				c.Set(ContextUserEmail, email)
			}

			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// UserUID returns the authenticated owner's uid, or "" outside RequireAuth
func UserUID(c echo.Context) string {
	uid, _ := c.Get(ContextUserUID).(string)
	return uid
}
