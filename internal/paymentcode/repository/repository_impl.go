package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/farebox/internal/paymentcode/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, code *domain.PaymentCode) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_codes (
			id, code, company_id, route_id, operator_id,
			total_capacity, used_count, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.Code,
		code.CompanyID,
		code.RouteID,
		code.OperatorID,
		code.TotalCapacity,
		code.UsedCount,
		code.Status,
		code.CreatedAt,
		code.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.PaymentCode, error) {
	var code domain.PaymentCode
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, company_id, route_id, operator_id,
			total_capacity, used_count, status, created_at, updated_at
		 FROM payment_codes WHERE company_id = ? AND id = ?`,
		companyID,
		id,
	).Scan(&code).Error
	if err != nil {
		return nil, err
	}
	if code.ID == 0 {
		return nil, nil
	}
	return &code, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, rawCode string) (*domain.PaymentCode, error) {
	var code domain.PaymentCode
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, company_id, route_id, operator_id,
			total_capacity, used_count, status, created_at, updated_at
		 FROM payment_codes WHERE code = ?`,
		rawCode,
	).Scan(&code).Error
	if err != nil {
		return nil, err
	}
	if code.ID == 0 {
		return nil, nil
	}
	return &code, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListFilter) ([]*domain.PaymentCode, error) {
	query := `SELECT id, code, company_id, route_id, operator_id,
			total_capacity, used_count, status, created_at, updated_at
		 FROM payment_codes WHERE company_id = ?`
	args := []interface{}{companyID}

	if filter.RouteID != 0 {
		query += ` AND route_id = ?`
		args = append(args, filter.RouteID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Cursor != nil {
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var codes []*domain.PaymentCode
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// ConsumeUse is the capacity invariant in one statement: only an active code
// with headroom matches, and the row that takes the last unit flips to
// exhausted in the same write.
func (r *repo) ConsumeUse(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_codes
		 SET used_count = used_count + 1,
		     status = CASE WHEN used_count + 1 >= total_capacity THEN ? ELSE status END,
		     updated_at = ?
		 WHERE id = ? AND status = ? AND used_count < total_capacity`,
		domain.CodeStatusExhausted,
		now,
		id,
		domain.CodeStatusActive,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.CodeStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_codes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
