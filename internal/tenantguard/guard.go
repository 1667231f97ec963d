package tenantguard

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// ErrDenied is the sentinel all guard denials unwrap to.
var ErrDenied = errors.New("tenant_denied")

// Denial reasons, surfaced in logs only. The API maps every denial to a
// generic forbidden response.
const (
	ReasonMissingActor    = "missing_actor"
	ReasonMissingCompany  = "missing_company"
	ReasonCompanyMismatch = "company_mismatch"
	ReasonRouteNotOwned   = "route_not_owned"
)

// DeniedError carries the denial reason.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("tenant_denied: %s", e.Reason)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

func deny(reason string) error {
	return &DeniedError{Reason: reason}
}

// Actor is a snapshot of the authenticated operator, assembled by the caller
// from already-loaded records. The guard never touches storage.
type Actor struct {
	OperatorID snowflake.ID
	CompanyID  snowflake.ID
	RouteIDs   []snowflake.ID

	// AllRoutes is set for managers, who act on any route of their company.
	AllRoutes bool
}

// AssignedTo reports whether the actor may act on the given route.
func (a Actor) AssignedTo(routeID snowflake.ID) bool {
	if a.AllRoutes {
		return true
	}
	for _, id := range a.RouteIDs {
		if id == routeID {
			return true
		}
	}
	return false
}

// Authorize checks that the actor may act on a resource owned by
// targetCompany, and on targetRoute when non-zero. It is evaluated
// immediately before every mutating statement, not only at request entry,
// so the decision always reflects the rows the mutation will touch.
func Authorize(actor Actor, targetCompany snowflake.ID, targetRoute snowflake.ID) error {
	if actor.OperatorID == 0 || actor.CompanyID == 0 {
		return deny(ReasonMissingActor)
	}
	if targetCompany == 0 {
		return deny(ReasonMissingCompany)
	}
	if actor.CompanyID != targetCompany {
		return deny(ReasonCompanyMismatch)
	}
	if targetRoute != 0 && !actor.AssignedTo(targetRoute) {
		return deny(ReasonRouteNotOwned)
	}
	return nil
}
