package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	companydomain "github.com/smallbiznis/farebox/internal/company/domain"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	routedomain "github.com/smallbiznis/farebox/internal/route/domain"
	"gorm.io/gorm"
)

const (
	demoCompanyName = "Metro Transit"

	// Demo device tokens for local development only. Seeding is gated
	// behind SEED_DEMO_DATA and must stay off in production.
	demoManagerToken  = "demo-manager-token"
	demoOperatorToken = "demo-operator-token"
)

// EnsureDemoData seeds a demo company with two routes, a manager, and a
// driver assigned to the first route. Re-running is a no-op.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		company, err := ensureCompanyTx(ctx, tx, node, demoCompanyName)
		if err != nil {
			return err
		}

		downtown, err := ensureRouteTx(ctx, tx, node, company.ID, "Downtown Loop", 15000)
		if err != nil {
			return err
		}
		if _, err := ensureRouteTx(ctx, tx, node, company.ID, "Airport Express", 45000); err != nil {
			return err
		}

		if _, err := ensureOperatorTx(ctx, tx, node, company.ID, "Demo Manager", operatordomain.RoleManager, demoManagerToken, nil); err != nil {
			return err
		}
		if _, err := ensureOperatorTx(ctx, tx, node, company.ID, "Demo Driver", operatordomain.RoleOperator, demoOperatorToken, []snowflake.ID{downtown.ID}); err != nil {
			return err
		}
		return nil
	})
}

func ensureCompanyTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, name string) (companydomain.Company, error) {
	companySlug := slug.Make(name)

	var company companydomain.Company
	err := tx.WithContext(ctx).Where("slug = ?", companySlug).First(&company).Error
	if err == nil {
		return company, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return company, err
	}

	now := time.Now().UTC()
	company = companydomain.Company{
		ID:        node.Generate(),
		Name:      name,
		Slug:      companySlug,
		Status:    companydomain.CompanyStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&company).Error; err != nil {
		return company, err
	}
	return company, nil
}

func ensureRouteTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, companyID snowflake.ID, name string, fare int64) (routedomain.Route, error) {
	var route routedomain.Route
	err := tx.WithContext(ctx).
		Where("company_id = ? AND name = ?", companyID, name).
		First(&route).Error
	if err == nil {
		return route, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return route, err
	}

	now := time.Now().UTC()
	route = routedomain.Route{
		ID:        node.Generate(),
		CompanyID: companyID,
		Name:      name,
		Fare:      fare,
		Status:    routedomain.RouteStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&route).Error; err != nil {
		return route, err
	}
	return route, nil
}

func ensureOperatorTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, companyID snowflake.ID, name string, role operatordomain.OperatorRole, rawToken string, routeIDs []snowflake.ID) (operatordomain.Operator, error) {
	hash := operatordomain.HashToken(rawToken)

	var op operatordomain.Operator
	err := tx.WithContext(ctx).Where("token_hash = ?", hash).First(&op).Error
	if err == nil {
		return op, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return op, err
	}

	now := time.Now().UTC()
	op = operatordomain.Operator{
		ID:          node.Generate(),
		CompanyID:   companyID,
		DisplayName: name,
		Role:        role,
		TokenHash:   hash,
		Status:      operatordomain.OperatorStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&op).Error; err != nil {
		return op, err
	}

	for _, routeID := range routeIDs {
		err := tx.WithContext(ctx).Exec(
			`INSERT INTO operator_routes (operator_id, route_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			op.ID, routeID,
		).Error
		if err != nil {
			return op, err
		}
	}
	return op, nil
}
