package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*Route, error)
}

var (
	ErrNotFound    = errors.New("route_not_found")
	ErrInactive    = errors.New("route_inactive")
	ErrInvalidFare = errors.New("route_invalid_fare")
)
