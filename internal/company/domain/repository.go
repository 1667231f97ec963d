package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
}

var (
	ErrNotFound  = errors.New("company_not_found")
	ErrSuspended = errors.New("company_suspended")
)
