package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	"github.com/smallbiznis/farebox/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	RouteID snowflake.ID
	Status  string
	Cursor  *Cursor
	Limit   int
}

type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, code *PaymentCode) error
	FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*PaymentCode, error)
	// FindByCode resolves a gateway code without a tenant scope; webhook
	// ingestion derives the tenant from the code itself.
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PaymentCode, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListFilter) ([]*PaymentCode, error)
	// ConsumeUse atomically takes one unit of capacity from an active code,
	// flipping it to exhausted when the last unit goes. Returns false when
	// the code was closed or already full.
	ConsumeUse(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	// Transition flips status from one value to another. Returns false when
	// the code was not in the expected state.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to CodeStatus, now time.Time) (bool, error)
}

type IssueRequest struct {
	RouteID  snowflake.ID
	Quantity int
}

type ListRequest struct {
	pagination.Pagination
	RouteID string `form:"route_id"`
	Status  string `form:"status"`
}

type ListResponse struct {
	pagination.PageInfo
	PaymentCodes []PaymentCode `json:"payment_codes"`
}

// Service issues and manages payment codes on behalf of an operator.
type Service interface {
	Issue(ctx context.Context, operator *operatordomain.Operator, req IssueRequest) (*PaymentCode, error)
	Cancel(ctx context.Context, operator *operatordomain.Operator, id snowflake.ID) (*PaymentCode, error)
	Get(ctx context.Context, operator *operatordomain.Operator, id snowflake.ID) (*PaymentCode, error)
	List(ctx context.Context, operator *operatordomain.Operator, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidRoute     = errors.New("invalid_route")
	ErrNotFound         = errors.New("payment_code_not_found")
	ErrCodeClosed       = errors.New("payment_code_exhausted_or_closed")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
