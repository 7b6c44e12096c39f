package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/labstack/echo/v4"

	"storefront_app/internal/apperr"
)

// Limiter decides whether a caller identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimit throttles a route group per client IP. A limiter failure lets the request through.
func RateLimit(limiter Limiter, scope string, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limiter == nil {
				return next(c)
			}

			key := scope + ":" + c.RealIP()
			ok, err := limiter.Allow(c.Request().Context(), key)
			if err != nil {
				logger.WarnContext(c.Request().Context(), "rate limiter unavailable, allowing request", "scope", scope, "err", err)
				return next(c)
			}
			if !ok {
				return apperr.RateLimited()
			}
			return next(c)
		}
	}
}

// IPExtractor decides which address RealIP reports. Without trusted proxies the peer address
// is used and X-Forwarded-For is ignored; otherwise the header is honoured only for hops that
// arrive from one of the given CIDR ranges.
func IPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy range %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}
