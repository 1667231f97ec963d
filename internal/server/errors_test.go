package server

import (
	"net/http"
	"testing"

	"github.com/smallbiznis/farebox/internal/authorization"
	gatewaydomain "github.com/smallbiznis/farebox/internal/gateway/domain"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	paymentcodedomain "github.com/smallbiznis/farebox/internal/paymentcode/domain"
	"github.com/smallbiznis/farebox/internal/tenantguard"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
	validationdomain "github.com/smallbiznis/farebox/internal/validation/domain"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"unauthorized", operatordomain.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
		{"suspended", operatordomain.ErrSuspended, http.StatusForbidden, "account_suspended"},
		{"tenant denial stays opaque", &tenantguard.DeniedError{Reason: tenantguard.ReasonCompanyMismatch}, http.StatusForbidden, "forbidden"},
		{"rbac denial stays opaque", authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"route not assigned is actionable", validationdomain.ErrRouteNotAssigned, http.StatusForbidden, "route_not_assigned"},
		{"used or foreign ticket", ticketdomain.ErrInvalidOrUsed, http.StatusConflict, "invalid_or_used_code"},
		{"closed code", paymentcodedomain.ErrCodeClosed, http.StatusConflict, "code_exhausted_or_closed"},
		{"missing code", paymentcodedomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"gateway down", gatewaydomain.ErrGatewayUnavailable, http.StatusBadGateway, "gateway_error"},
		{"bad quantity", paymentcodedomain.ErrInvalidQuantity, http.StatusBadRequest, "validation_error"},
		{"unknown error", assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}
