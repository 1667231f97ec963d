package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/farebox/internal/cache"
	"github.com/smallbiznis/farebox/internal/operator/domain"
	"github.com/smallbiznis/farebox/internal/operator/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE operators (
			id BIGINT PRIMARY KEY,
			company_id BIGINT NOT NULL,
			display_name TEXT NOT NULL,
			role TEXT NOT NULL,
			token_hash TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_operators_token_hash ON operators(token_hash)`,
		`CREATE TABLE operator_routes (
			operator_id BIGINT NOT NULL,
			route_id BIGINT NOT NULL,
			PRIMARY KEY (operator_id, route_id)
		)`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedOperator(t *testing.T, db *gorm.DB, node *snowflake.Node, role domain.OperatorRole, status domain.OperatorStatus, rawToken string, routeIDs ...snowflake.ID) snowflake.ID {
	t.Helper()

	id := node.Generate()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO operators (id, company_id, display_name, role, token_hash, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, node.Generate(), "Test Operator", role, domain.HashToken(rawToken), status, now, now,
	).Error
	require.NoError(t, err)

	for _, routeID := range routeIDs {
		require.NoError(t, db.Exec(
			`INSERT INTO operator_routes (operator_id, route_id) VALUES (?, ?)`,
			id, routeID,
		).Error)
	}
	return id
}

func newService(t *testing.T, db *gorm.DB, operatorCache cache.OperatorCache) domain.Service {
	t.Helper()

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Cache: operatorCache,
	})
}

func TestAuthenticateResolvesOperatorWithRoutes(t *testing.T) {
	db := setupTestDB(t, "operator_auth")
	node, err := snowflake.NewNode(46)
	require.NoError(t, err)

	routeA := node.Generate()
	routeB := node.Generate()
	id := seedOperator(t, db, node, domain.RoleOperator, domain.OperatorStatusActive, "tok-driver-1", routeA, routeB)

	svc := newService(t, db, nil)

	op, err := svc.Authenticate(context.Background(), "tok-driver-1")
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, id, op.ID)
	assert.ElementsMatch(t, []snowflake.ID{routeA, routeB}, op.RouteIDs)
	assert.True(t, op.AssignedTo(routeA))
	assert.False(t, op.AssignedTo(node.Generate()))
}

func TestAuthenticateRejectsUnknownOrEmptyToken(t *testing.T) {
	db := setupTestDB(t, "operator_auth_reject")
	node, err := snowflake.NewNode(47)
	require.NoError(t, err)
	seedOperator(t, db, node, domain.RoleOperator, domain.OperatorStatusActive, "tok-driver-2")

	svc := newService(t, db, nil)

	_, err = svc.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = svc.Authenticate(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestAuthenticateSuspendedOperatorStillResolves(t *testing.T) {
	// Suspension is enforced at the operation boundary, not at token
	// resolution, so handlers can report account_suspended instead of a
	// generic auth failure.
	db := setupTestDB(t, "operator_auth_suspended")
	node, err := snowflake.NewNode(48)
	require.NoError(t, err)
	seedOperator(t, db, node, domain.RoleOperator, domain.OperatorStatusSuspended, "tok-suspended")

	svc := newService(t, db, nil)

	op, err := svc.Authenticate(context.Background(), "tok-suspended")
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.False(t, op.Active())
}

func TestAuthenticateServesFromCache(t *testing.T) {
	db := setupTestDB(t, "operator_auth_cache")
	node, err := snowflake.NewNode(49)
	require.NoError(t, err)
	id := seedOperator(t, db, node, domain.RoleManager, domain.OperatorStatusActive, "tok-manager-1")

	svc := newService(t, db, cache.NewOperatorCache())

	op, err := svc.Authenticate(context.Background(), "tok-manager-1")
	require.NoError(t, err)
	require.Equal(t, id, op.ID)

	// Remove the row; a cache hit must still resolve within the TTL.
	require.NoError(t, db.Exec(`DELETE FROM operators WHERE id = ?`, id).Error)

	op, err = svc.Authenticate(context.Background(), "tok-manager-1")
	require.NoError(t, err)
	assert.Equal(t, id, op.ID)
}

func TestGetByIDIsCompanyScoped(t *testing.T) {
	db := setupTestDB(t, "operator_get")
	node, err := snowflake.NewNode(50)
	require.NoError(t, err)
	id := seedOperator(t, db, node, domain.RoleOperator, domain.OperatorStatusActive, "tok-driver-3")

	var companyID snowflake.ID
	require.NoError(t, db.Raw(`SELECT company_id FROM operators WHERE id = ?`, id).Scan(&companyID).Error)

	svc := newService(t, db, nil)

	op, err := svc.GetByID(context.Background(), companyID, id)
	require.NoError(t, err)
	assert.Equal(t, id, op.ID)

	_, err = svc.GetByID(context.Background(), node.Generate(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
