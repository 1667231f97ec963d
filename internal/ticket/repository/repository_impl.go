package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/farebox/internal/ticket/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ticket *domain.Ticket) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tickets (
			id, company_id, route_id, payment_code_id, one_time_code,
			passenger_phone, status, validated_by, used_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID,
		ticket.CompanyID,
		ticket.RouteID,
		ticket.PaymentCodeID,
		ticket.OneTimeCode,
		ticket.PassengerPhone,
		ticket.Status,
		ticket.ValidatedBy,
		ticket.UsedAt,
		ticket.CreatedAt,
	).Error
}

func (r *repo) FindPendingByCode(ctx context.Context, db *gorm.DB, companyID snowflake.ID, oneTimeCode string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, route_id, payment_code_id, one_time_code,
			passenger_phone, status, validated_by, used_at, created_at
		 FROM tickets
		 WHERE company_id = ? AND one_time_code = ? AND status = ?
		 LIMIT 1`,
		companyID,
		oneTimeCode,
		domain.TicketStatusPending,
	).Scan(&ticket).Error
	if err != nil {
		return nil, err
	}
	if ticket.ID == 0 {
		return nil, nil
	}
	return &ticket, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, route_id, payment_code_id, one_time_code,
			passenger_phone, status, validated_by, used_at, created_at
		 FROM tickets WHERE company_id = ? AND id = ?`,
		companyID,
		id,
	).Scan(&ticket).Error
	if err != nil {
		return nil, err
	}
	if ticket.ID == 0 {
		return nil, nil
	}
	return &ticket, nil
}

// FindByCode returns the most recent ticket for the code regardless of
// status. Used for read-only ticket lookups, not redemption.
func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, companyID snowflake.ID, oneTimeCode string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, route_id, payment_code_id, one_time_code,
			passenger_phone, status, validated_by, used_at, created_at
		 FROM tickets
		 WHERE company_id = ? AND one_time_code = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		companyID,
		oneTimeCode,
	).Scan(&ticket).Error
	if err != nil {
		return nil, err
	}
	if ticket.ID == 0 {
		return nil, nil
	}
	return &ticket, nil
}

// MarkUsed is the single serialization point for redemption: the status
// predicate makes concurrent validations race on one conditional UPDATE.
func (r *repo) MarkUsed(ctx context.Context, db *gorm.DB, companyID, id, validatedBy snowflake.ID, usedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tickets
		 SET status = ?, validated_by = ?, used_at = ?
		 WHERE company_id = ? AND id = ? AND status = ?`,
		domain.TicketStatusUsed,
		validatedBy,
		usedAt,
		companyID,
		id,
		domain.TicketStatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
