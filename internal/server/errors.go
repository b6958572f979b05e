package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/auth/token"
	"github.com/monstrox/monstro/internal/authorization"
	classdomain "github.com/monstrox/monstro/internal/class/domain"
	"github.com/monstrox/monstro/internal/email"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	paymentdomain "github.com/monstrox/monstro/internal/payment/domain"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/ratelimit"
	"github.com/monstrox/monstro/internal/realtime"
	socialdomain "github.com/monstrox/monstro/internal/social/domain"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	supportdomain "github.com/monstrox/monstro/internal/support/domain"
	"github.com/monstrox/monstro/pkg/db"
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
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// retryAfterError carries how long a rate limited caller should wait.
type retryAfterError struct {
	wait time.Duration
}

func (e *retryAfterError) Error() string        { return ErrRateLimited.Error() }
func (e *retryAfterError) Is(target error) bool { return target == ErrRateLimited }

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
		if status == http.StatusTooManyRequests {
			c.Header("Retry-After", retryAfterSeconds(lastErr.Err))
		}
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
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
			Code:    domainCode(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
			Code:    domainCode(err),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Code:    domainCode(err),
		}
	case errors.Is(err, paymentdomain.ErrChargeDeclined),
		errors.Is(err, paymentdomain.ErrActionRequired):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_failed",
			Message: "payment failed",
			Code:    domainCode(err),
		}
	case isRateLimitError(err):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, realtime.ErrHubUnavailable),
		errors.Is(err, paymentdomain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger's error_type and error_code fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if code == "" {
		code = strconv.Itoa(status)
	}
	return payload.Type, code
}

func retryAfterSeconds(err error) string {
	var wait time.Duration
	var limited *supportdomain.RateLimitError
	var retry *retryAfterError
	switch {
	case errors.As(err, &limited):
		wait = limited.RetryAfter
	case errors.As(err, &retry):
		wait = retry.wait
	}
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func domainCode(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ":"); idx > 0 {
		msg = msg[:idx]
	}
	if strings.ContainsAny(msg, " ") {
		return ""
	}
	return msg
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrors = []error{
	ErrInvalidRequest,
	authdomain.ErrInvalidEmail,
	authdomain.ErrWeakPassword,
	authdomain.ErrInvalidName,
	authorization.ErrInvalidLocation,
	locationdomain.ErrInvalidID,
	locationdomain.ErrInvalidName,
	locationdomain.ErrInvalidEmail,
	locationdomain.ErrInvalidTimezone,
	locationdomain.ErrInvalidCurrency,
	locationdomain.ErrInvalidStatus,
	locationdomain.ErrInvalidRole,
	memberdomain.ErrInvalidID,
	memberdomain.ErrInvalidName,
	memberdomain.ErrInvalidEmail,
	memberdomain.ErrInvalidStatus,
	memberdomain.ErrInvalidPushToken,
	memberdomain.ErrInvalidPlatform,
	plandomain.ErrInvalidID,
	plandomain.ErrInvalidName,
	plandomain.ErrInvalidPrice,
	plandomain.ErrInvalidInterval,
	plandomain.ErrInvalidIntervalCount,
	plandomain.ErrInvalidClassLimit,
	plandomain.ErrInvalidStatus,
	subscriptiondomain.ErrInvalidID,
	subscriptiondomain.ErrInvalidStatus,
	invoicedomain.ErrInvalidID,
	invoicedomain.ErrInvalidItems,
	invoicedomain.ErrInvalidQuantity,
	invoicedomain.ErrInvalidAmount,
	invoicedomain.ErrInvalidCurrency,
	invoicedomain.ErrInvalidStatus,
	paymentdomain.ErrInvalidID,
	paymentdomain.ErrInvalidSignature,
	paymentdomain.ErrInvalidPayload,
	classdomain.ErrInvalidID,
	classdomain.ErrInvalidName,
	classdomain.ErrInvalidTimeRange,
	classdomain.ErrInvalidCapacity,
	achievementdomain.ErrInvalidID,
	achievementdomain.ErrInvalidName,
	achievementdomain.ErrInvalidTrigger,
	achievementdomain.ErrInvalidRequirement,
	achievementdomain.ErrInvalidPoints,
	achievementdomain.ErrInvalidStatus,
	socialdomain.ErrInvalidID,
	socialdomain.ErrInvalidKind,
	socialdomain.ErrInvalidMembers,
	socialdomain.ErrInvalidContent,
	socialdomain.ErrInvalidName,
	socialdomain.ErrInvalidTarget,
	socialdomain.ErrInvalidEmoji,
	supportdomain.ErrInvalidID,
	supportdomain.ErrInvalidContent,
	supportdomain.ErrInvalidAssistant,
	supportdomain.ErrInvalidStatus,
	auditdomain.ErrInvalidLocation,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	email.ErrInvalidRecipient,
	email.ErrMissingField,
	realtime.ErrInvalidChannel,
	queue.ErrUnknownTaskType,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidToken),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrWrongType),
		errors.Is(err, authorization.ErrInvalidActor):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, memberdomain.ErrNotMember),
		errors.Is(err, socialdomain.ErrNotChatMember),
		errors.Is(err, socialdomain.ErrNotGroupMember),
		errors.Is(err, socialdomain.ErrNotLocationMember),
		errors.Is(err, socialdomain.ErrNotAuthor),
		errors.Is(err, supportdomain.ErrNotLocationMember):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, locationdomain.ErrNotFound),
		errors.Is(err, locationdomain.ErrStaffNotFound),
		errors.Is(err, memberdomain.ErrNotFound),
		errors.Is(err, plandomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, classdomain.ErrSessionNotFound),
		errors.Is(err, classdomain.ErrNotFound),
		errors.Is(err, achievementdomain.ErrNotFound),
		errors.Is(err, socialdomain.ErrChatNotFound),
		errors.Is(err, socialdomain.ErrMessageNotFound),
		errors.Is(err, socialdomain.ErrGroupNotFound),
		errors.Is(err, socialdomain.ErrMomentNotFound),
		errors.Is(err, supportdomain.ErrAssistantNotFound),
		errors.Is(err, supportdomain.ErrConversationNotFound),
		errors.Is(err, email.ErrUnknownTemplate),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, authdomain.ErrEmailTaken),
		errors.Is(err, locationdomain.ErrSlugTaken),
		errors.Is(err, locationdomain.ErrLastOwner),
		errors.Is(err, memberdomain.ErrAlreadyExists),
		errors.Is(err, memberdomain.ErrLocationInactive),
		errors.Is(err, plandomain.ErrArchived),
		errors.Is(err, subscriptiondomain.ErrAlreadySubscribed),
		errors.Is(err, subscriptiondomain.ErrInvalidTransition),
		errors.Is(err, subscriptiondomain.ErrPlanUnavailable),
		errors.Is(err, invoicedomain.ErrNotOpen),
		errors.Is(err, invoicedomain.ErrAlreadyPaid),
		errors.Is(err, paymentdomain.ErrInvoiceNotPayable),
		errors.Is(err, paymentdomain.ErrNoPaymentMethod),
		errors.Is(err, classdomain.ErrSessionCanceled),
		errors.Is(err, classdomain.ErrSessionStarted),
		errors.Is(err, classdomain.ErrSessionFull),
		errors.Is(err, classdomain.ErrAlreadyReserved),
		errors.Is(err, classdomain.ErrNotConfirmed),
		errors.Is(err, socialdomain.ErrOwnerCannotLeave),
		errors.Is(err, supportdomain.ErrConversationClosed),
		db.IsDuplicateKeyErr(err):
		return true
	default:
		return false
	}
}

func isRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ratelimit.ErrRateLimited) ||
		errors.Is(err, supportdomain.ErrRateLimited)
}

func validationErrorCode(err error) string {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if code == authdomain.ErrWeakPassword.Error() {
		return "password"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case authdomain.ErrWeakPassword.Error():
		return "password must be at least 8 characters"
	default:
		return "invalid value"
	}
}
