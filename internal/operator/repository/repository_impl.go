package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/farebox/internal/operator/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.Operator, error) {
	var operator domain.Operator
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, display_name, role, token_hash, status, created_at, updated_at
		 FROM operators WHERE token_hash = ?
		 LIMIT 1`,
		tokenHash,
	).Scan(&operator).Error
	if err != nil {
		return nil, err
	}
	if operator.ID == 0 {
		return nil, nil
	}
	if err := r.loadRouteIDs(ctx, db, &operator); err != nil {
		return nil, err
	}
	return &operator, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Operator, error) {
	var operator domain.Operator
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, display_name, role, token_hash, status, created_at, updated_at
		 FROM operators WHERE company_id = ? AND id = ?`,
		companyID,
		id,
	).Scan(&operator).Error
	if err != nil {
		return nil, err
	}
	if operator.ID == 0 {
		return nil, nil
	}
	if err := r.loadRouteIDs(ctx, db, &operator); err != nil {
		return nil, err
	}
	return &operator, nil
}

func (r *repo) loadRouteIDs(ctx context.Context, db *gorm.DB, operator *domain.Operator) error {
	var routeIDs []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT route_id FROM operator_routes WHERE operator_id = ?`,
		operator.ID,
	).Scan(&routeIDs).Error
	if err != nil {
		return err
	}
	operator.RouteIDs = routeIDs
	return nil
}
