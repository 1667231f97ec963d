package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/farebox/internal/audit/domain"
	"github.com/smallbiznis/farebox/internal/audit/repository"
	"github.com/smallbiznis/farebox/internal/companyctx"
	obscontext "github.com/smallbiznis/farebox/internal/observability/context"
	"github.com/smallbiznis/farebox/pkg/db/pagination"
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

	require.NoError(t, db.Exec(`CREATE TABLE audit_logs (
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
	)`).Error)
	return db
}

func newAuditService(t *testing.T, db *gorm.DB, nodeID int64) (domain.Service, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(nodeID)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
	return svc, node
}

func paginationWith(token string, size int) pagination.Pagination {
	return pagination.Pagination{PageToken: token, PageSize: size}
}

func TestAuditLogResolvesActorFromContext(t *testing.T) {
	db := setupTestDB(t, "audit_actor")
	svc, node := newAuditService(t, db, 51)

	companyID := node.Generate()
	ctx := companyctx.WithCompanyID(context.Background(), companyID)
	ctx = obscontext.WithActor(ctx, "operator", "12345")

	err := svc.AuditLog(ctx, nil, "", nil, "payment_code.issued", "payment_code", nil, map[string]any{
		"quantity": 3,
	})
	require.NoError(t, err)

	var entry domain.AuditLog
	require.NoError(t, db.Raw(`SELECT * FROM audit_logs LIMIT 1`).Scan(&entry).Error)
	require.NotNil(t, entry.CompanyID)
	assert.Equal(t, companyID, *entry.CompanyID)
	assert.Equal(t, "operator", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "12345", *entry.ActorID)
	assert.Equal(t, "payment_code.issued", entry.Action)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	db := setupTestDB(t, "audit_empty_action")
	svc, _ := newAuditService(t, db, 52)

	err := svc.AuditLog(context.Background(), nil, "system", nil, "  ", "ticket", nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM audit_logs`).Scan(&count).Error)
	assert.Zero(t, count)
}

func TestListIsCompanyScopedAndPaginated(t *testing.T) {
	db := setupTestDB(t, "audit_list")
	svc, node := newAuditService(t, db, 53)

	companyID := node.Generate()
	otherCompanyID := node.Generate()
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AuditLog(ctx, &companyID, "operator", nil, "ticket.validated", "ticket", nil, nil))
	}
	require.NoError(t, svc.AuditLog(ctx, &otherCompanyID, "operator", nil, "ticket.validated", "ticket", nil, nil))

	resp, err := svc.List(ctx, domain.ListAuditLogRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 5)
	for _, entry := range resp.AuditLogs {
		require.NotNil(t, entry.CompanyID)
		assert.Equal(t, companyID, *entry.CompanyID)
	}

	// Page through two at a time.
	first, err := svc.List(ctx, domain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 5)

	seen := 0
	token := ""
	for {
		page, err := svc.List(ctx, domain.ListAuditLogRequest{
			Pagination: paginationWith(token, 2),
		})
		require.NoError(t, err)
		seen += len(page.AuditLogs)
		if !page.HasMore {
			break
		}
		token = page.NextPageToken
	}
	assert.Equal(t, 5, seen)
}

func TestListRejectsInvalidInput(t *testing.T) {
	db := setupTestDB(t, "audit_list_invalid")
	svc, node := newAuditService(t, db, 54)

	ctx := companyctx.WithCompanyID(context.Background(), node.Generate())

	_, err := svc.List(context.Background(), domain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidCompany)

	_, err = svc.List(ctx, domain.ListAuditLogRequest{Pagination: paginationWith("!!not-a-token!!", 10)})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)

	start := time.Now().UTC()
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, domain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
}

func TestListFiltersByAction(t *testing.T) {
	db := setupTestDB(t, "audit_list_filter")
	svc, node := newAuditService(t, db, 55)

	companyID := node.Generate()
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	require.NoError(t, svc.AuditLog(ctx, &companyID, "operator", nil, "ticket.validated", "ticket", nil, nil))
	require.NoError(t, svc.AuditLog(ctx, &companyID, "gateway", nil, "ticket.minted", "ticket", nil, nil))

	resp, err := svc.List(ctx, domain.ListAuditLogRequest{Action: "ticket.minted"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "gateway", resp.AuditLogs[0].ActorType)
}
