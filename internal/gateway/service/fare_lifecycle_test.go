package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditrepo "github.com/smallbiznis/farebox/internal/audit/repository"
	auditservice "github.com/smallbiznis/farebox/internal/audit/service"
	"github.com/smallbiznis/farebox/internal/clock"
	companyrepo "github.com/smallbiznis/farebox/internal/company/repository"
	"github.com/smallbiznis/farebox/internal/config"
	"github.com/smallbiznis/farebox/internal/gateway/domain"
	gatewayrepo "github.com/smallbiznis/farebox/internal/gateway/repository"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	paymentcodedomain "github.com/smallbiznis/farebox/internal/paymentcode/domain"
	paymentcoderepo "github.com/smallbiznis/farebox/internal/paymentcode/repository"
	paymentcodeservice "github.com/smallbiznis/farebox/internal/paymentcode/service"
	routerepo "github.com/smallbiznis/farebox/internal/route/repository"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
	ticketrepo "github.com/smallbiznis/farebox/internal/ticket/repository"
	validationdomain "github.com/smallbiznis/farebox/internal/validation/domain"
	validationservice "github.com/smallbiznis/farebox/internal/validation/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// stubGatewayClient accepts every registration, like a sandbox gateway.
type stubGatewayClient struct {
	registered int
}

func (c *stubGatewayClient) RegisterCode(ctx context.Context, req domain.RegisterCodeRequest) (*domain.RegisterCodeResponse, error) {
	c.registered++
	return &domain.RegisterCodeResponse{Code: fmt.Sprintf("PAY-LIFE-%d", c.registered)}, nil
}

func (c *stubGatewayClient) CancelCode(ctx context.Context, code string) error {
	return nil
}

type lifecycleFixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clk       *clock.FakeClock
	codes     paymentcodedomain.Service
	ingestor  domain.Ingestor
	validator validationdomain.Service
	operator  *operatordomain.Operator
	routeID   snowflake.ID
}

func setupLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:lifecycle_%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", time.Now().UnixNano())
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
		`CREATE TABLE payment_codes (
			id BIGINT PRIMARY KEY,
			code TEXT NOT NULL,
			company_id BIGINT NOT NULL,
			route_id BIGINT NOT NULL,
			operator_id BIGINT NOT NULL,
			total_capacity INTEGER NOT NULL,
			used_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_lifecycle_payment_codes_code ON payment_codes(code)`,
		`CREATE TABLE gateway_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			event_id TEXT NOT NULL,
			payment_code_id BIGINT NOT NULL,
			company_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			payer_phone TEXT NOT NULL,
			payload TEXT NOT NULL,
			received_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX ux_lifecycle_gateway_events ON gateway_events(provider, event_id)`,
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
		`CREATE UNIQUE INDEX ux_lifecycle_tickets_pending ON tickets(company_id, one_time_code) WHERE status = 'pending'`,
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

	node, err := snowflake.NewNode(60)
	require.NoError(t, err)

	now := time.Now().UTC()
	companyID := node.Generate()
	routeID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO companies (id, name, slug, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		companyID, "Metro Transit", "metro-transit", "active", now, now,
	).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO routes (id, company_id, name, fare, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		routeID, companyID, "Downtown Loop", 15000, "active", now, now,
	).Error)

	operator := &operatordomain.Operator{
		ID:        node.Generate(),
		CompanyID: companyID,
		Role:      operatordomain.RoleOperator,
		Status:    operatordomain.OperatorStatusActive,
		RouteIDs:  []snowflake.ID{routeID},
	}

	clk := clock.NewFakeClock(now)
	policy := config.HolderFor(config.DefaultFarePolicy())
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})

	codes := paymentcodeservice.NewService(paymentcodeservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Policy:      policy,
		Repo:        paymentcoderepo.Provide(),
		CompanyRepo: companyrepo.Provide(),
		RouteRepo:   routerepo.Provide(),
		Gateway:     &stubGatewayClient{},
		Audit:       auditSvc,
	})

	ingestor := NewIngestor(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Policy:     policy,
		Repo:       gatewayrepo.Provide(),
		CodeRepo:   paymentcoderepo.Provide(),
		TicketRepo: ticketrepo.Provide(),
		Audit:      auditSvc,
	})

	validator := validationservice.NewService(validationservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		TicketRepo:  ticketrepo.Provide(),
		CompanyRepo: companyrepo.Provide(),
		RouteRepo:   routerepo.Provide(),
		Audit:       auditSvc,
	})

	return &lifecycleFixture{
		db:        db,
		node:      node,
		clk:       clk,
		codes:     codes,
		ingestor:  ingestor,
		validator: validator,
		operator:  operator,
		routeID:   routeID,
	}
}

// The full fare lifecycle: issue a three-ride code, confirm three payments,
// refuse the fourth, redeem a ticket at the gate exactly once.
func TestFareLifecycle(t *testing.T) {
	ctx := context.Background()
	f := setupLifecycleFixture(t)

	code, err := f.codes.Issue(ctx, f.operator, paymentcodedomain.IssueRequest{
		RouteID:  f.routeID,
		Quantity: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code.TotalCapacity)
	assert.Equal(t, paymentcodedomain.CodeStatusActive, code.Status)

	event := func(i int) *domain.ConfirmationEvent {
		return &domain.ConfirmationEvent{
			Provider:   "mpay",
			EventID:    fmt.Sprintf("life_evt_%d", i),
			Code:       code.Code,
			Amount:     15000,
			PayerPhone: "+255700000001",
			OccurredAt: f.clk.Now(),
		}
	}

	var tickets []*ticketdomain.Ticket
	for i := 1; i <= 3; i++ {
		result, err := f.ingestor.Ingest(ctx, event(i))
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeTicketCreated, result.Outcome)
		tickets = append(tickets, result.Ticket)
	}

	// Capacity spent: the fourth confirmation bounces and the code closes.
	_, err = f.ingestor.Ingest(ctx, event(4))
	assert.ErrorIs(t, err, paymentcodedomain.ErrCodeClosed)

	var status string
	require.NoError(t, f.db.Raw(
		`SELECT status FROM payment_codes WHERE id = ?`, code.ID,
	).Scan(&status).Error)
	assert.Equal(t, string(paymentcodedomain.CodeStatusExhausted), status)

	validated, err := f.validator.Validate(ctx, f.operator, tickets[0].OneTimeCode)
	require.NoError(t, err)
	assert.Equal(t, "Downtown Loop", validated.RouteName)
	assert.EqualValues(t, 15000, validated.Fare)
	assert.Equal(t, ticketdomain.TicketStatusUsed, validated.Ticket.Status)

	// A second scan of the same code is indistinguishable from a bad code.
	_, err = f.validator.Validate(ctx, f.operator, tickets[0].OneTimeCode)
	assert.ErrorIs(t, err, ticketdomain.ErrInvalidOrUsed)

	// The other two rides stay redeemable.
	var pending int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(*) FROM tickets WHERE payment_code_id = ? AND status = 'pending'`, code.ID,
	).Scan(&pending).Error)
	assert.EqualValues(t, 2, pending)
}
