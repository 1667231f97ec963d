package authorization

import (
	"context"
	"errors"
)

// Service answers "may this actor perform this action in this company".
// Role grants live in casbin; route-level scoping stays with the tenant
// guard, which runs regardless of what this service allows.
type Service interface {
	Authorize(ctx context.Context, actor string, companyID string, object string, action string) error
}

var (
	ErrInvalidActor   = errors.New("invalid_actor")
	ErrInvalidCompany = errors.New("invalid_company")
	ErrInvalidObject  = errors.New("invalid_object")
	ErrInvalidAction  = errors.New("invalid_action")
	ErrForbidden      = errors.New("forbidden")
)
