package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/farebox/internal/audit/domain"
	"github.com/smallbiznis/farebox/internal/authorization"
	companydomain "github.com/smallbiznis/farebox/internal/company/domain"
	gatewaydomain "github.com/smallbiznis/farebox/internal/gateway/domain"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	paymentcodedomain "github.com/smallbiznis/farebox/internal/paymentcode/domain"
	routedomain "github.com/smallbiznis/farebox/internal/route/domain"
	"github.com/smallbiznis/farebox/internal/tenantguard"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
	validationdomain "github.com/smallbiznis/farebox/internal/validation/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// mapError collapses domain errors into the wire taxonomy. Tenant denials
// and redemption failures stay generic on purpose: the response must not
// reveal whether the target exists in another company.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err.Error()),
					Code:    err.Error(),
					Message: "invalid value",
				},
			},
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, operatordomain.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, companydomain.ErrSuspended),
		errors.Is(err, operatordomain.ErrSuspended):
		return http.StatusForbidden, errorPayload{
			Type:    "account_suspended",
			Message: "account suspended",
		}
	case errors.Is(err, validationdomain.ErrRouteNotAssigned):
		// Unlike tenant denials this one is actionable for the operator, so
		// it gets its own type instead of the opaque forbidden.
		return http.StatusForbidden, errorPayload{
			Type:    "route_not_assigned",
			Message: "route not assigned to operator",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, tenantguard.ErrDenied),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ticketdomain.ErrInvalidOrUsed):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_or_used_code",
			Message: "invalid or already used code",
		}
	case errors.Is(err, paymentcodedomain.ErrCodeClosed):
		return http.StatusConflict, errorPayload{
			Type:    "code_exhausted_or_closed",
			Message: "payment code exhausted or closed",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, gatewaydomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentcodedomain.ErrInvalidQuantity),
		errors.Is(err, paymentcodedomain.ErrInvalidRoute),
		errors.Is(err, paymentcodedomain.ErrInvalidPageToken),
		errors.Is(err, routedomain.ErrInactive),
		errors.Is(err, routedomain.ErrInvalidFare),
		errors.Is(err, validationdomain.ErrInvalidCode),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, paymentcodedomain.ErrNotFound),
		errors.Is(err, routedomain.ErrNotFound),
		errors.Is(err, companydomain.ErrNotFound),
		errors.Is(err, operatordomain.ErrNotFound),
		errors.Is(err, ticketdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

// classifyErrorForLog labels request log lines without leaking detail into
// the response path.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "server_error", payload.Type
	case status >= 400:
		return "client_error", payload.Type
	default:
		return "none", payload.Type
	}
}
