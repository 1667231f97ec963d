package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*Operator, error)
	FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*Operator, error)
}

type Service interface {
	// Authenticate resolves a raw device token to the operator it belongs
	// to, including the assigned route set. Suspension is NOT checked here;
	// services check it at operation time, so a mid-session suspension takes
	// effect as soon as the auth cache entry expires.
	Authenticate(ctx context.Context, rawToken string) (*Operator, error)
	// GetByID loads an operator within the company boundary.
	GetByID(ctx context.Context, companyID, id snowflake.ID) (*Operator, error)
}

var (
	ErrInvalidToken = errors.New("invalid_operator_token")
	ErrNotFound     = errors.New("operator_not_found")
	ErrSuspended    = errors.New("operator_suspended")
)
