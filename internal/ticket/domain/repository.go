package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ticket *Ticket) error
	// FindPendingByCode looks up a pending ticket by one-time code inside
	// the company boundary. A used, absent, or foreign ticket all resolve
	// to nil.
	FindPendingByCode(ctx context.Context, db *gorm.DB, companyID snowflake.ID, oneTimeCode string) (*Ticket, error)
	FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*Ticket, error)
	FindByCode(ctx context.Context, db *gorm.DB, companyID snowflake.ID, oneTimeCode string) (*Ticket, error)
	// MarkUsed flips pending to used, recording the validator and time.
	// Returns false when the ticket was no longer pending.
	MarkUsed(ctx context.Context, db *gorm.DB, companyID, id, validatedBy snowflake.ID, usedAt time.Time) (bool, error)
}

var (
	ErrInvalidOrUsed  = errors.New("ticket_invalid_or_used")
	ErrCodeGeneration = errors.New("ticket_code_generation_failed")
	ErrNotFound       = errors.New("ticket_not_found")
)
