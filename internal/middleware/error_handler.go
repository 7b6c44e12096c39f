package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront_app/internal/apperr"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// NewErrorHandler maps application errors onto status codes and safe messages. Internal
// details are logged, never returned.
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := ErrorResponse{Message: apperr.MsgInternal}

		var he *echo.HTTPError
		if appErr, ok := apperr.As(err); ok {
			code = apperr.HTTPStatus(appErr.Kind)
			body.Message = apperr.PublicMessage(appErr)
			body.Fields = appErr.Fields
		} else if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok && msg != "" {
				body.Message = msg
			} else {
				body.Message = http.StatusText(code)
			}
		}

		req := c.Request()
		attrs := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", code,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"err", err,
		}
		if code >= http.StatusInternalServerError {
			logger.ErrorContext(req.Context(), "request failed", attrs...)
		} else {
			logger.InfoContext(req.Context(), "request rejected", attrs...)
		}

		if req.Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.ErrorContext(req.Context(), "failed to write error response", "err", err)
		}
	}
}
