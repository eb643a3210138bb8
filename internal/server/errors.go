package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/copybill/internal/billing/domain"
	billingperioddomain "github.com/smallbiznis/copybill/internal/billingperiod/domain"
	consumptiondomain "github.com/smallbiznis/copybill/internal/consumption/domain"
	devicedomain "github.com/smallbiznis/copybill/internal/device/domain"
	pricingdomain "github.com/smallbiznis/copybill/internal/pricing/domain"
	readingdomain "github.com/smallbiznis/copybill/internal/reading/domain"
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
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, readingdomain.ErrDataUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "reading data unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on the request log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return payload.Type, "unexpected"
	}
	return payload.Type, code
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
		errors.Is(err, billingdomain.ErrInvalidClient),
		errors.Is(err, billingdomain.ErrInvalidGranularity),
		errors.Is(err, billingdomain.ErrInvalidForecast),
		errors.Is(err, billingperioddomain.ErrInvalidPeriod),
		errors.Is(err, billingperioddomain.ErrInvalidPeriodCount),
		errors.Is(err, billingperioddomain.ErrInvalidOrder),
		errors.Is(err, consumptiondomain.ErrInvalidConvention),
		errors.Is(err, pricingdomain.ErrInvalidRuleSet),
		errors.Is(err, readingdomain.ErrInvalidDeviceID):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, devicedomain.ErrClientNotFound),
		errors.Is(err, billingdomain.ErrDeviceNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, billingdomain.ErrInvalidClient):
		return billingdomain.ErrInvalidClient.Error()
	case errors.Is(err, billingdomain.ErrInvalidGranularity):
		return billingdomain.ErrInvalidGranularity.Error()
	case errors.Is(err, billingdomain.ErrInvalidForecast):
		return billingdomain.ErrInvalidForecast.Error()
	case errors.Is(err, billingperioddomain.ErrInvalidPeriodCount):
		return billingperioddomain.ErrInvalidPeriodCount.Error()
	case errors.Is(err, billingperioddomain.ErrInvalidPeriod):
		return billingperioddomain.ErrInvalidPeriod.Error()
	case errors.Is(err, billingperioddomain.ErrInvalidOrder):
		return billingperioddomain.ErrInvalidOrder.Error()
	case errors.Is(err, consumptiondomain.ErrInvalidConvention):
		return consumptiondomain.ErrInvalidConvention.Error()
	case errors.Is(err, pricingdomain.ErrInvalidRuleSet):
		return pricingdomain.ErrInvalidRuleSet.Error()
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
