package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/farebox/internal/route/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// FindByID is company-scoped so a foreign route resolves to not found.
func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Route, error) {
	var route domain.Route
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, name, fare, status, created_at, updated_at
		 FROM routes WHERE company_id = ? AND id = ?`,
		companyID,
		id,
	).Scan(&route).Error
	if err != nil {
		return nil, err
	}
	if route.ID == 0 {
		return nil, nil
	}
	return &route, nil
}
