package tenantguard

import (
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestAuthorizeSameCompany(t *testing.T) {
	actor := Actor{
		OperatorID: snowflake.ID(1),
		CompanyID:  snowflake.ID(10),
		RouteIDs:   []snowflake.ID{100, 101},
	}

	assert.NoError(t, Authorize(actor, 10, 100))
	assert.NoError(t, Authorize(actor, 10, 0))
}

func TestAuthorizeCrossCompany(t *testing.T) {
	actor := Actor{
		OperatorID: snowflake.ID(1),
		CompanyID:  snowflake.ID(10),
		RouteIDs:   []snowflake.ID{100},
	}

	err := Authorize(actor, 20, 100)
	assert.ErrorIs(t, err, ErrDenied)

	var denied *DeniedError
	assert.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonCompanyMismatch, denied.Reason)
}

func TestAuthorizeRouteOutsideAssignedSet(t *testing.T) {
	actor := Actor{
		OperatorID: snowflake.ID(1),
		CompanyID:  snowflake.ID(10),
		RouteIDs:   []snowflake.ID{100},
	}

	err := Authorize(actor, 10, 999)
	assert.ErrorIs(t, err, ErrDenied)

	var denied *DeniedError
	assert.True(t, errors.As(err, &denied))
	assert.Equal(t, ReasonRouteNotOwned, denied.Reason)
}

func TestAuthorizeManagerActsOnAnyCompanyRoute(t *testing.T) {
	actor := Actor{
		OperatorID: snowflake.ID(2),
		CompanyID:  snowflake.ID(10),
		AllRoutes:  true,
	}

	assert.NoError(t, Authorize(actor, 10, 999))
	assert.ErrorIs(t, Authorize(actor, 20, 999), ErrDenied)
}

func TestAuthorizeMissingActor(t *testing.T) {
	err := Authorize(Actor{}, 10, 0)
	assert.ErrorIs(t, err, ErrDenied)
}
