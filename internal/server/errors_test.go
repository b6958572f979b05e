package server

import (
	"fmt"
	"net/http"
	"testing"

	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/authorization"
	classdomain "github.com/monstrox/monstro/internal/class/domain"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	paymentdomain "github.com/monstrox/monstro/internal/payment/domain"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
	"github.com/monstrox/monstro/internal/ratelimit"
	"github.com/monstrox/monstro/internal/realtime"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		typ    string
		code   string
	}{
		{"validation", plandomain.ErrInvalidPrice, http.StatusBadRequest, "validation_error", ""},
		{"bad credentials", authdomain.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized", ""},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "forbidden", "forbidden"},
		{"not found", invoicedomain.ErrNotFound, http.StatusNotFound, "not_found", "invoice_not_found"},
		{"record not found", gorm.ErrRecordNotFound, http.StatusNotFound, "not_found", ""},
		{"wrapped conflict", fmt.Errorf("reserve: %w", classdomain.ErrSessionFull), http.StatusConflict, "conflict", ""},
		{"invalid transition", subscriptiondomain.ErrInvalidTransition, http.StatusConflict, "conflict", "invalid_transition"},
		{"declined", paymentdomain.ErrChargeDeclined, http.StatusPaymentRequired, "payment_failed", "charge_declined"},
		{"rate limited", ratelimit.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", ""},
		{"hub down", realtime.ErrHubUnavailable, http.StatusServiceUnavailable, "service_unavailable", ""},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, payload := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.typ, payload.Type)
			if tt.code != "" {
				assert.Equal(t, tt.code, payload.Code)
			}
		})
	}
}

func TestValidationPayloadNamesField(t *testing.T) {
	_, payload := mapError(newValidationError("plan_id", "invalid_plan_id", "invalid plan id"))
	if assert.Len(t, payload.Errors, 1) {
		assert.Equal(t, "plan_id", payload.Errors[0].Field)
		assert.Equal(t, "invalid_plan_id", payload.Errors[0].Code)
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(subscriptiondomain.ErrAlreadySubscribed)
	assert.Equal(t, "conflict", typ)
	assert.Equal(t, "already_subscribed", code)

	typ, code = classifyErrorForLog(fmt.Errorf("boom"))
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "500", code)
}
