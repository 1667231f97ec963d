package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/farebox/internal/audit/domain"
	auditrepo "github.com/smallbiznis/farebox/internal/audit/repository"
	auditservice "github.com/smallbiznis/farebox/internal/audit/service"
	"github.com/smallbiznis/farebox/internal/clock"
	"github.com/smallbiznis/farebox/internal/config"
	"github.com/smallbiznis/farebox/internal/gateway/domain"
	gatewayrepo "github.com/smallbiznis/farebox/internal/gateway/repository"
	paymentcodedomain "github.com/smallbiznis/farebox/internal/paymentcode/domain"
	paymentcoderepo "github.com/smallbiznis/farebox/internal/paymentcode/repository"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
	ticketrepo "github.com/smallbiznis/farebox/internal/ticket/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ingest_%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := []string{
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
		`CREATE UNIQUE INDEX ux_payment_codes_code ON payment_codes(code)`,
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
		`CREATE UNIQUE INDEX ux_gateway_events_provider_event_id ON gateway_events(provider, event_id)`,
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
	return db
}

func newIngestor(t *testing.T, db *gorm.DB, node *snowflake.Node, clk clock.Clock) *Ingestor {
	t.Helper()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	return NewIngestor(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Policy:     config.HolderFor(config.DefaultFarePolicy()),
		Repo:       gatewayrepo.Provide(),
		CodeRepo:   paymentcoderepo.Provide(),
		TicketRepo: ticketrepo.Provide(),
		Audit:      auditSvc,
	}).(*Ingestor)
}

func seedPaymentCode(t *testing.T, db *gorm.DB, node *snowflake.Node, capacity int, createdAt time.Time) *paymentcodedomain.PaymentCode {
	t.Helper()

	code := &paymentcodedomain.PaymentCode{
		ID:            node.Generate(),
		Code:          fmt.Sprintf("PAY-%s", node.Generate()),
		CompanyID:     node.Generate(),
		RouteID:       node.Generate(),
		OperatorID:    node.Generate(),
		TotalCapacity: capacity,
		Status:        paymentcodedomain.CodeStatusActive,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	require.NoError(t, db.Exec(
		`INSERT INTO payment_codes (id, code, company_id, route_id, operator_id, total_capacity, used_count, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID, code.Code, code.CompanyID, code.RouteID, code.OperatorID,
		code.TotalCapacity, 0, code.Status, code.CreatedAt, code.UpdatedAt,
	).Error)
	return code
}

func confirmation(code *paymentcodedomain.PaymentCode, eventID string, amount int64) *domain.ConfirmationEvent {
	return &domain.ConfirmationEvent{
		Provider:   "mpay",
		EventID:    eventID,
		Code:       code.Code,
		Amount:     amount,
		PayerPhone: "+255700000001",
		OccurredAt: time.Now().UTC(),
		RawPayload: []byte(`{"type":"payment.confirmed"}`),
	}
}

func TestIngestMintsTicketExactlyOncePerEvent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(30)
	require.NoError(t, err)

	now := time.Now().UTC()
	code := seedPaymentCode(t, db, node, 3, now)
	ingestor := newIngestor(t, db, node, clock.NewFakeClock(now))

	result, err := ingestor.Ingest(ctx, confirmation(code, "evt_1", 15000))
	require.NoError(t, err)
	require.NotNil(t, result.Ticket)
	assert.Equal(t, domain.OutcomeTicketCreated, result.Outcome)
	assert.Equal(t, ticketdomain.TicketStatusPending, result.Ticket.Status)
	assert.Equal(t, code.CompanyID, result.Ticket.CompanyID)
	assert.Equal(t, code.RouteID, result.Ticket.RouteID)
	assert.Len(t, result.Ticket.OneTimeCode, 6)

	// Redelivering the same event four more times mints nothing new.
	for i := 0; i < 4; i++ {
		_, err := ingestor.Ingest(ctx, confirmation(code, "evt_1", 15000))
		assert.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)
	}

	var ticketCount, usedCount int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM tickets`).Scan(&ticketCount).Error)
	require.NoError(t, db.Raw(`SELECT used_count FROM payment_codes WHERE id = ?`, code.ID).Scan(&usedCount).Error)
	assert.EqualValues(t, 1, ticketCount)
	assert.EqualValues(t, 1, usedCount)
}

func TestIngestExhaustsCapacityThenRefuses(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(31)
	require.NoError(t, err)

	now := time.Now().UTC()
	code := seedPaymentCode(t, db, node, 3, now)
	ingestor := newIngestor(t, db, node, clock.NewFakeClock(now))

	for i := 1; i <= 3; i++ {
		result, err := ingestor.Ingest(ctx, confirmation(code, fmt.Sprintf("evt_%d", i), 15000))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeTicketCreated, result.Outcome)
	}

	_, err = ingestor.Ingest(ctx, confirmation(code, "evt_4", 15000))
	assert.ErrorIs(t, err, paymentcodedomain.ErrCodeClosed)

	var status string
	var usedCount int64
	require.NoError(t, db.Raw(`SELECT status FROM payment_codes WHERE id = ?`, code.ID).Scan(&status).Error)
	require.NoError(t, db.Raw(`SELECT used_count FROM payment_codes WHERE id = ?`, code.ID).Scan(&usedCount).Error)
	assert.Equal(t, string(paymentcodedomain.CodeStatusExhausted), status)
	assert.EqualValues(t, 3, usedCount)

	// The refused confirmation is still recorded and marked processed, so a
	// redelivery does not spin.
	_, err = ingestor.Ingest(ctx, confirmation(code, "evt_4", 15000))
	assert.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)
}

func TestIngestUnknownCode(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(32)
	require.NoError(t, err)

	ingestor := newIngestor(t, db, node, clock.NewSystemClock())
	_, err = ingestor.Ingest(ctx, &domain.ConfirmationEvent{
		Provider: "mpay",
		EventID:  "evt_1",
		Code:     "PAY-NOPE",
		Amount:   5000,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownCode)
}

func TestIngestExpiresStaleCode(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(33)
	require.NoError(t, err)

	now := time.Now().UTC()
	code := seedPaymentCode(t, db, node, 3, now)

	clk := clock.NewFakeClock(now)
	clk.Advance(73 * time.Hour)
	ingestor := newIngestor(t, db, node, clk)

	_, err = ingestor.Ingest(ctx, confirmation(code, "evt_late", 15000))
	assert.ErrorIs(t, err, paymentcodedomain.ErrCodeClosed)

	var status string
	require.NoError(t, db.Raw(`SELECT status FROM payment_codes WHERE id = ?`, code.ID).Scan(&status).Error)
	assert.Equal(t, string(paymentcodedomain.CodeStatusExpired), status)

	var ticketCount int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM tickets`).Scan(&ticketCount).Error)
	assert.Zero(t, ticketCount)
}

func TestIngestResumesClaimedUnprocessedEvent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(34)
	require.NoError(t, err)

	now := time.Now().UTC()
	code := seedPaymentCode(t, db, node, 3, now)

	// A previous delivery claimed the event and crashed before processing.
	require.NoError(t, db.Exec(
		`INSERT INTO gateway_events (id, provider, event_id, payment_code_id, company_id, amount, payer_phone, payload, received_at, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		node.Generate(), "mpay", "evt_crashed", code.ID, code.CompanyID, 15000, "+255700000001", `{}`, now,
	).Error)

	ingestor := newIngestor(t, db, node, clock.NewFakeClock(now))
	result, err := ingestor.Ingest(ctx, confirmation(code, "evt_crashed", 15000))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTicketCreated, result.Outcome)

	var processed int64
	require.NoError(t, db.Raw(
		`SELECT COUNT(*) FROM gateway_events WHERE provider = ? AND event_id = ? AND processed_at IS NOT NULL`,
		"mpay", "evt_crashed",
	).Scan(&processed).Error)
	assert.EqualValues(t, 1, processed)

	// A redelivery arriving after the resume completed must lose the claim:
	// one event never spends capacity twice.
	_, err = ingestor.Ingest(ctx, confirmation(code, "evt_crashed", 15000))
	assert.ErrorIs(t, err, domain.ErrEventAlreadyProcessed)

	var tickets int64
	require.NoError(t, db.Raw(
		`SELECT COUNT(*) FROM tickets WHERE payment_code_id = ?`, code.ID,
	).Scan(&tickets).Error)
	assert.EqualValues(t, 1, tickets)

	var usedCount int
	require.NoError(t, db.Raw(
		`SELECT used_count FROM payment_codes WHERE id = ?`, code.ID,
	).Scan(&usedCount).Error)
	assert.Equal(t, 1, usedCount)
}

func TestIngestRejectsMalformedEvents(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(35)
	require.NoError(t, err)

	ingestor := newIngestor(t, db, node, clock.NewSystemClock())

	cases := []*domain.ConfirmationEvent{
		nil,
		{Provider: "", EventID: "evt", Code: "PAY-1", Amount: 100},
		{Provider: "mpay", EventID: "", Code: "PAY-1", Amount: 100},
		{Provider: "mpay", EventID: "evt", Code: "", Amount: 100},
		{Provider: "mpay", EventID: "evt", Code: "PAY-1", Amount: 0},
	}
	for _, event := range cases {
		_, err := ingestor.Ingest(ctx, event)
		assert.ErrorIs(t, err, domain.ErrInvalidEvent)
	}
}

func TestIngestWritesAuditEntry(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(36)
	require.NoError(t, err)

	now := time.Now().UTC()
	code := seedPaymentCode(t, db, node, 1, now)
	ingestor := newIngestor(t, db, node, clock.NewFakeClock(now))

	_, err = ingestor.Ingest(ctx, confirmation(code, "evt_audit", 15000))
	require.NoError(t, err)

	var entry auditdomain.AuditLog
	require.NoError(t, db.Raw(
		`SELECT id, company_id, actor_type, action, target_type FROM audit_logs WHERE action = ?`,
		"ticket.minted",
	).Scan(&entry).Error)
	require.NotZero(t, entry.ID)
	assert.Equal(t, string(auditdomain.ActorTypeGateway), entry.ActorType)
	assert.Equal(t, "ticket", entry.TargetType)
}
