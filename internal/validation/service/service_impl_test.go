package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditrepo "github.com/smallbiznis/farebox/internal/audit/repository"
	auditservice "github.com/smallbiznis/farebox/internal/audit/service"
	"github.com/smallbiznis/farebox/internal/clock"
	companyrepo "github.com/smallbiznis/farebox/internal/company/repository"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	routerepo "github.com/smallbiznis/farebox/internal/route/repository"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
	ticketrepo "github.com/smallbiznis/farebox/internal/ticket/repository"
	"github.com/smallbiznis/farebox/internal/validation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	svc       *Service
	companyID snowflake.ID
	routeID   snowflake.ID
}

func setupFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:validation_%d_%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", nodeID, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
		`CREATE TABLE companies (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE routes (
			id BIGINT PRIMARY KEY,
			company_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			fare BIGINT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE tickets (
			id BIGINT PRIMARY KEY,
			company_id BIGINT NOT NULL,
			route_id BIGINT NOT NULL,
			payment_code_id BIGINT NOT NULL,
			one_time_code TEXT NOT NULL,
			passenger_phone TEXT,
			status TEXT NOT NULL,
			validated_by BIGINT,
			used_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_tickets_company_pending_code ON tickets(company_id, one_time_code) WHERE status = 'pending'`,
		`CREATE TABLE audit_logs (
			id BIGINT PRIMARY KEY,
			company_id BIGINT,
			actor_type TEXT NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT,
			metadata TEXT,
			ip_address TEXT,
			user_agent TEXT,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(nodeID)
	require.NoError(t, err)

	companyID := node.Generate()
	routeID := node.Generate()
	now := time.Now().UTC()
	require.NoError(t, db.Exec(
		`INSERT INTO companies (id, name, slug, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		companyID, "Metro Transit", "metro-transit", "active", now, now,
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO routes (id, company_id, name, fare, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		routeID, companyID, "Route 7", 15000, "active", now, now,
	).Error)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewSystemClock(),
		TicketRepo:  ticketrepo.Provide(),
		CompanyRepo: companyrepo.Provide(),
		RouteRepo:   routerepo.Provide(),
		Audit:       auditSvc,
	}).(*Service)

	return &fixture{db: db, node: node, svc: svc, companyID: companyID, routeID: routeID}
}

func (f *fixture) seedTicket(t *testing.T, companyID, routeID snowflake.ID, oneTimeCode, status string) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO tickets (id, company_id, route_id, payment_code_id, one_time_code, passenger_phone, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, companyID, routeID, f.node.Generate(), oneTimeCode, "+255700000001", status, time.Now().UTC(),
	).Error)
	return id
}

func (f *fixture) operator(role operatordomain.OperatorRole, routes ...snowflake.ID) *operatordomain.Operator {
	return &operatordomain.Operator{
		ID:        f.node.Generate(),
		CompanyID: f.companyID,
		Role:      role,
		Status:    operatordomain.OperatorStatusActive,
		RouteIDs:  routes,
	}
}

func TestValidateRedeemsPendingTicket(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 40)

	f.seedTicket(t, f.companyID, f.routeID, "482916", "pending")
	operator := f.operator(operatordomain.RoleOperator, f.routeID)

	validated, err := f.svc.Validate(ctx, operator, "482916")
	require.NoError(t, err)
	assert.Equal(t, ticketdomain.TicketStatusUsed, validated.Ticket.Status)
	assert.Equal(t, "Route 7", validated.RouteName)
	assert.EqualValues(t, 15000, validated.Fare)
	require.NotNil(t, validated.Ticket.ValidatedBy)
	assert.Equal(t, operator.ID, *validated.Ticket.ValidatedBy)

	// Second scan of the same code fails like a bad code.
	_, err = f.svc.Validate(ctx, operator, "482916")
	assert.ErrorIs(t, err, ticketdomain.ErrInvalidOrUsed)

	var count int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM audit_logs WHERE action = 'ticket.validated'`).Scan(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestValidateExactlyOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 41)

	f.seedTicket(t, f.companyID, f.routeID, "713205", "pending")
	operator := f.operator(operatordomain.RoleOperator, f.routeID)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Validate(ctx, operator, "713205")
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, ticketdomain.ErrInvalidOrUsed)
		}
	}
	assert.Equal(t, 1, won)

	var used int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM tickets WHERE status = 'used'`).Scan(&used).Error)
	assert.EqualValues(t, 1, used)
}

func TestValidateForeignTicketLooksLikeBadCode(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 42)

	// Same one-time code exists at another company; the scan must neither
	// redeem it nor reveal it exists.
	foreignCompany := f.node.Generate()
	foreignRoute := f.node.Generate()
	f.seedTicket(t, foreignCompany, foreignRoute, "555123", "pending")

	operator := f.operator(operatordomain.RoleOperator, f.routeID)
	_, err := f.svc.Validate(ctx, operator, "555123")
	assert.ErrorIs(t, err, ticketdomain.ErrInvalidOrUsed)

	var status string
	require.NoError(t, f.db.Raw(`SELECT status FROM tickets WHERE one_time_code = '555123'`).Scan(&status).Error)
	assert.Equal(t, "pending", status)
}

func TestValidateRequiresRouteAssignment(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 43)

	f.seedTicket(t, f.companyID, f.routeID, "660042", "pending")

	// Assigned to a different route in the same company.
	otherRoute := f.node.Generate()
	operator := f.operator(operatordomain.RoleOperator, otherRoute)

	_, err := f.svc.Validate(ctx, operator, "660042")
	assert.ErrorIs(t, err, domain.ErrRouteNotAssigned)

	// A manager validates on any of the company's routes.
	manager := f.operator(operatordomain.RoleManager)
	validated, err := f.svc.Validate(ctx, manager, "660042")
	require.NoError(t, err)
	assert.Equal(t, ticketdomain.TicketStatusUsed, validated.Ticket.Status)
}

func TestValidateSuspendedOperator(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 44)

	f.seedTicket(t, f.companyID, f.routeID, "909090", "pending")
	operator := f.operator(operatordomain.RoleOperator, f.routeID)
	operator.Status = operatordomain.OperatorStatusSuspended

	_, err := f.svc.Validate(ctx, operator, "909090")
	assert.ErrorIs(t, err, operatordomain.ErrSuspended)

	var status string
	require.NoError(t, f.db.Raw(`SELECT status FROM tickets WHERE one_time_code = '909090'`).Scan(&status).Error)
	assert.Equal(t, "pending", status)
}

func TestGetTicketByCode(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, 45)

	id := f.seedTicket(t, f.companyID, f.routeID, "121212", "pending")
	operator := f.operator(operatordomain.RoleOperator, f.routeID)

	ticket, err := f.svc.GetTicketByCode(ctx, operator, "121212")
	require.NoError(t, err)
	assert.Equal(t, id, ticket.ID)
	assert.Equal(t, ticketdomain.TicketStatusPending, ticket.Status)

	_, err = f.svc.GetTicketByCode(ctx, operator, "000000")
	assert.ErrorIs(t, err, ticketdomain.ErrNotFound)
}
