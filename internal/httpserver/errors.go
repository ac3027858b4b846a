package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nkarpova/market_auth/internal/middleware"
	"github.com/nkarpova/market_auth/internal/repo"
	"github.com/nkarpova/market_auth/internal/service"
	"github.com/nkarpova/market_auth/pkg/logging"
	"github.com/nkarpova/market_auth/pkg/tokens"
)

const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenRevoked       = "TOKEN_REVOKED"
	CodeMissingToken       = "MISSING_TOKEN"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeInternal           = "INTERNAL"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// translate maps operational errors onto the stable wire shape. Anything it
// does not recognize is a programming bug and comes back opaque.
func translate(err error) (int, errorBody, bool) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Message: "invalid username or password", Code: CodeInvalidCredentials}, true
	case errors.Is(err, tokens.ErrExpired):
		return http.StatusUnauthorized, errorBody{Message: "token expired", Code: CodeTokenExpired}, true
	case errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, errorBody{Message: "token revoked", Code: CodeTokenRevoked}, true
	case errors.Is(err, tokens.ErrInvalid):
		return http.StatusUnauthorized, errorBody{Message: "invalid token", Code: CodeInvalidToken}, true
	case errors.Is(err, middleware.ErrMissingToken):
		return http.StatusUnauthorized, errorBody{Message: "missing bearer token", Code: CodeMissingToken}, true
	case errors.Is(err, middleware.ErrAccessDenied):
		return http.StatusForbidden, errorBody{Message: "access denied", Code: CodeAccessDenied}, true
	case errors.Is(err, service.ErrNotFound):
		// Account missing or inactive behind a live token: the session is
		// gone, so the client re-authenticates.
		return http.StatusUnauthorized, errorBody{Message: "account not found or inactive", Code: CodeNotFound}, true
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, errorBody{Message: "account not found", Code: CodeNotFound}, true
	case errors.Is(err, service.ErrValidation):
		body := errorBody{Message: "validation failed", Code: CodeValidation}
		var fe *service.FieldError
		if errors.As(err, &fe) {
			body.Details = map[string]string{fe.Field: fe.Reason}
		}
		return http.StatusBadRequest, body, true
	}
	return 0, errorBody{}, false
}

// NewHTTPErrorHandler renders every error in the {message, code, details}
// shape. Unexpected errors are logged in full and returned opaque.
func NewHTTPErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body, ok := translate(err)
		if !ok {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
				body = errorBody{Message: he.Error(), Code: CodeInternal}
				if msg, isStr := he.Message.(string); isStr {
					body.Message = msg
				}
				if status == http.StatusBadRequest {
					body.Code = CodeValidation
				}
				if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
					body.Code = CodeNotFound
				}
			} else {
				l := logging.FromContext(c.Request().Context())
				l.Error("unexpected_error", "error", err)
				status = http.StatusInternalServerError
				body = errorBody{Message: "internal error", Code: CodeInternal}
			}
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logging.FromContext(c.Request().Context()).Error("error_write_failed", "error", writeErr)
		}
	}
}
