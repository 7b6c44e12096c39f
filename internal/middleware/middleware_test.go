package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront_app/internal/apperr"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeVerifier struct {
	cookies map[string]string
	tokens  map[string]string
}

func (v *fakeVerifier) VerifySessionCookie(_ context.Context, cookie string) (*auth.Token, error) {
	if uid, ok := v.cookies[cookie]; ok {
		return &auth.Token{UID: uid, Claims: map[string]interface{}{"email": uid + "@example.com"}}, nil
	}
	return nil, errors.New("invalid session cookie")
}

func (v *fakeVerifier) VerifyIDToken(_ context.Context, token string) (*auth.Token, error) {
	if uid, ok := v.tokens[token]; ok {
		return &auth.Token{UID: uid}, nil
	}
	return nil, errors.New("invalid id token")
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(discardLogger)
	return e
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequireAuth(t *testing.T) {
	verifier := &fakeVerifier{
		cookies: map[string]string{"good-cookie": "owner-1"},
		tokens:  map[string]string{"good-token": "owner-2"},
	}

	e := newTestEcho()
	e.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, UserUID(c))
	}, RequireAuth(verifier))

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		wantCode int
		wantBody string
	}{
		{"no credentials", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"session cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good-cookie"})
		}, http.StatusOK, "owner-1"},
		{"bearer token", func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer good-token")
		}, http.StatusOK, "owner-2"},
		{"bad cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale"})
		}, http.StatusUnauthorized, ""},
		{"bad token", func(r *http.Request) {
			r.Header.Set(echo.HeaderAuthorization, "Bearer nope")
		}, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				body := decodeError(t, rec)
				assert.False(t, body.Success)
				assert.NotEmpty(t, body.Message)
			}
		})
	}
}

func TestRequireAuthWithoutVerifier(t *testing.T) {
	e := newTestEcho()
	e.GET("/me", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RequireAuth(nil))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantMsg    string
		wantFields map[string]string
	}{
		{"validation", apperr.ValidationFields("invalid request", map[string]string{"amount": "is required"}), http.StatusBadRequest, "invalid request", map[string]string{"amount": "is required"}},
		{"configuration", apperr.Configuration(errors.New("no keys")), http.StatusBadRequest, apperr.MsgPaymentNotConfigured, nil},
		{"authenticity", apperr.Authenticity(errors.New("bad sig")), http.StatusBadRequest, apperr.MsgVerificationFailed, nil},
		{"not found", apperr.NotFound("store not found"), http.StatusNotFound, "store not found", nil},
		{"upstream", apperr.Upstream("payment gateway is unavailable", errors.New("dial tcp: refused")), http.StatusBadGateway, "payment gateway is unavailable", nil},
		{"internal", errors.New("pq: relation does not exist"), http.StatusInternalServerError, apperr.MsgInternal, nil},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed"), http.StatusMethodNotAllowed, "method not allowed", nil},
		{"echo default", echo.ErrNotFound, http.StatusNotFound, "Not Found", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			e.GET("/x", func(c echo.Context) error { return tt.err })

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			body := decodeError(t, rec)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMsg, body.Message)
			assert.Equal(t, tt.wantFields, body.Fields)
			assert.NotContains(t, rec.Body.String(), "dial tcp")
			assert.NotContains(t, rec.Body.String(), "pq:")
		})
	}
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name     string
		limiter  *stubLimiter
		wantCode int
	}{
		{"allowed", &stubLimiter{allow: true}, http.StatusOK},
		{"throttled", &stubLimiter{allow: false}, http.StatusTooManyRequests},
		{"limiter down", &stubLimiter{err: errors.New("redis: connection refused")}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			e.POST("/pay", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RateLimit(tt.limiter, "checkout", discardLogger))

			req := httptest.NewRequest(http.MethodPost, "/pay", nil)
			req.Header.Set(echo.HeaderXRealIP, "203.0.113.7")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, []string{"checkout:203.0.113.7"}, tt.limiter.keys)
		})
	}
}

// onceLimiter admits each key a single time
type onceLimiter struct {
	seen map[string]bool
}

func (l *onceLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.seen[key] {
		return false, nil
	}
	l.seen[key] = true
	return true, nil
}

func TestRateLimitIgnoresSpoofedForwardingHeaders(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		wantCodes  []int
		wantKeys   []string
	}{
		{
			name:       "no trusted proxies",
			remoteAddr: "203.0.113.7:51000",
			wantCodes:  []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests},
			wantKeys:   []string{"checkout:203.0.113.7"},
		},
		{
			name:       "peer outside trusted range",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "203.0.113.7:51000",
			wantCodes:  []int{http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests},
			wantKeys:   []string{"checkout:203.0.113.7"},
		},
		{
			name:       "behind trusted proxy",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.1.2.3:443",
			wantCodes:  []int{http.StatusOK, http.StatusOK, http.StatusOK},
			wantKeys:   []string{"checkout:198.51.100.0", "checkout:198.51.100.1", "checkout:198.51.100.2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor, err := IPExtractor(tt.trusted)
			require.NoError(t, err)

			limiter := &onceLimiter{seen: map[string]bool{}}
			e := newTestEcho()
			e.IPExtractor = extractor
			e.POST("/pay", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, RateLimit(limiter, "checkout", discardLogger))

			for i, want := range tt.wantCodes {
				req := httptest.NewRequest(http.MethodPost, "/pay", nil)
				req.RemoteAddr = tt.remoteAddr
				req.Header.Set(echo.HeaderXForwardedFor, fmt.Sprintf("198.51.100.%d", i))
				req.Header.Set(echo.HeaderXRealIP, fmt.Sprintf("192.0.2.%d", i))
				rec := httptest.NewRecorder()
				e.ServeHTTP(rec, req)
				assert.Equal(t, want, rec.Code, "request %d", i)
			}

			var keys []string
			for k := range limiter.seen {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.wantKeys, keys)
		})
	}
}

func TestIPExtractorRejectsBadRange(t *testing.T) {
	_, err := IPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})
	assert.Error(t, err)
}
