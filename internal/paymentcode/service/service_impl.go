package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/farebox/internal/audit/domain"
	"github.com/smallbiznis/farebox/internal/clock"
	companydomain "github.com/smallbiznis/farebox/internal/company/domain"
	"github.com/smallbiznis/farebox/internal/config"
	gatewaydomain "github.com/smallbiznis/farebox/internal/gateway/domain"
	"github.com/smallbiznis/farebox/internal/observability/logger"
	"github.com/smallbiznis/farebox/internal/observability/metrics"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	"github.com/smallbiznis/farebox/internal/paymentcode/domain"
	routedomain "github.com/smallbiznis/farebox/internal/route/domain"
	"github.com/smallbiznis/farebox/internal/tenantguard"
	"github.com/smallbiznis/farebox/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.FarePolicyHolder
	Repo        domain.Repository
	CompanyRepo companydomain.Repository
	RouteRepo   routedomain.Repository
	Gateway     gatewaydomain.Client
	Audit       auditdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.FarePolicyHolder
	repo        domain.Repository
	companyRepo companydomain.Repository
	routeRepo   routedomain.Repository
	gateway     gatewaydomain.Client
	audit       auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("paymentcode.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		repo:        p.Repo,
		companyRepo: p.CompanyRepo,
		routeRepo:   p.RouteRepo,
		gateway:     p.Gateway,
		audit:       p.Audit,
		metrics:     p.Metrics,
	}
}

// Issue registers a code with the gateway and persists it. The two steps are
// all-or-nothing: a persisted code without a gateway registration can never
// receive payments, so a failed insert cancels the registration.
func (s *Service) Issue(ctx context.Context, operator *operatordomain.Operator, req domain.IssueRequest) (*domain.PaymentCode, error) {
	if operator == nil {
		return nil, &tenantguard.DeniedError{Reason: tenantguard.ReasonMissingActor}
	}
	if !operator.Active() {
		return nil, operatordomain.ErrSuspended
	}

	policy := s.policy.Get()
	if req.Quantity < 1 || req.Quantity > policy.MaxCodeCapacity {
		return nil, domain.ErrInvalidQuantity
	}
	if req.RouteID == 0 {
		return nil, domain.ErrInvalidRoute
	}

	company, err := s.companyRepo.FindByID(ctx, s.db, operator.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, companydomain.ErrNotFound
	}
	if !company.Active() {
		return nil, companydomain.ErrSuspended
	}

	route, err := s.routeRepo.FindByID(ctx, s.db, operator.CompanyID, req.RouteID)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, routedomain.ErrNotFound
	}
	if !route.Active() {
		return nil, routedomain.ErrInactive
	}
	if route.Fare <= 0 {
		return nil, routedomain.ErrInvalidFare
	}

	if err := tenantguard.Authorize(operator.Actor(), route.CompanyID, route.ID); err != nil {
		return nil, err
	}

	id := s.genID.Generate()
	registered, err := s.gateway.RegisterCode(ctx, gatewaydomain.RegisterCodeRequest{
		Reference: id.String(),
		Amount:    route.Fare,
		MaxUses:   req.Quantity,
	})
	if err != nil {
		s.log.Warn("gateway code registration failed",
			zap.String("route_id", route.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", gatewaydomain.ErrGatewayUnavailable, err)
	}

	// Re-check right before the write: assignments or suspensions may have
	// changed while the gateway round-trip was in flight.
	if err := tenantguard.Authorize(operator.Actor(), route.CompanyID, route.ID); err != nil {
		s.cancelRegistration(ctx, registered.Code)
		return nil, err
	}

	now := s.clock.Now()
	code := &domain.PaymentCode{
		ID:            id,
		Code:          registered.Code,
		CompanyID:     operator.CompanyID,
		RouteID:       route.ID,
		OperatorID:    operator.ID,
		TotalCapacity: req.Quantity,
		UsedCount:     0,
		Status:        domain.CodeStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, code); err != nil {
		s.cancelRegistration(ctx, registered.Code)
		return nil, err
	}

	actorID := operator.ID.String()
	targetID := code.ID.String()
	_ = s.audit.AuditLog(ctx, &code.CompanyID,
		string(auditdomain.ActorTypeOperator), &actorID,
		"payment_code.issued", "payment_code", &targetID,
		map[string]any{
			"route_id":       route.ID.String(),
			"total_capacity": code.TotalCapacity,
			"fare":           route.Fare,
		},
	)
	if s.metrics != nil {
		s.metrics.RecordCodeIssued(ctx, code.CompanyID.String())
	}

	logger.WithContext(ctx, s.log).Info("payment code issued",
		zap.String("payment_code_id", code.ID.String()),
		zap.String("route_id", route.ID.String()),
		zap.Int("total_capacity", code.TotalCapacity),
	)
	return code, nil
}

// Cancel closes an active code so it can no longer accept payments. Tickets
// already minted against it stay valid. Manager only.
func (s *Service) Cancel(ctx context.Context, operator *operatordomain.Operator, id snowflake.ID) (*domain.PaymentCode, error) {
	if operator == nil {
		return nil, &tenantguard.DeniedError{Reason: tenantguard.ReasonMissingActor}
	}
	if !operator.Active() {
		return nil, operatordomain.ErrSuspended
	}
	if operator.Role != operatordomain.RoleManager {
		return nil, tenantguard.ErrDenied
	}

	code, err := s.repo.FindByID(ctx, s.db, operator.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, domain.ErrNotFound
	}

	if err := tenantguard.Authorize(operator.Actor(), code.CompanyID, code.RouteID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ok, err := s.repo.Transition(ctx, s.db, code.ID, domain.CodeStatusActive, domain.CodeStatusCancelled, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrCodeClosed
	}
	code.Status = domain.CodeStatusCancelled
	code.UpdatedAt = now

	if err := s.gateway.CancelCode(ctx, code.Code); err != nil {
		// The local row is already closed; the gateway side is retried out of
		// band. Log loudly so the reconciliation job picks it up.
		s.log.Error("gateway code cancellation failed",
			zap.String("payment_code_id", code.ID.String()),
			zap.Error(err),
		)
	}

	actorID := operator.ID.String()
	targetID := code.ID.String()
	_ = s.audit.AuditLog(ctx, &code.CompanyID,
		string(auditdomain.ActorTypeOperator), &actorID,
		"payment_code.cancelled", "payment_code", &targetID,
		map[string]any{
			"used_count":     code.UsedCount,
			"total_capacity": code.TotalCapacity,
		},
	)
	return code, nil
}

func (s *Service) Get(ctx context.Context, operator *operatordomain.Operator, id snowflake.ID) (*domain.PaymentCode, error) {
	if operator == nil {
		return nil, &tenantguard.DeniedError{Reason: tenantguard.ReasonMissingActor}
	}
	code, err := s.repo.FindByID(ctx, s.db, operator.CompanyID, id)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, domain.ErrNotFound
	}
	return code, nil
}

func (s *Service) List(ctx context.Context, operator *operatordomain.Operator, req domain.ListRequest) (domain.ListResponse, error) {
	if operator == nil {
		return domain.ListResponse{}, &tenantguard.DeniedError{Reason: tenantguard.ReasonMissingActor}
	}

	filter := domain.ListFilter{Status: strings.TrimSpace(req.Status)}
	if routeID := strings.TrimSpace(req.RouteID); routeID != "" {
		parsed, err := snowflake.ParseString(routeID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidRoute
		}
		filter.RouteID = parsed
	}

	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}
	filter.Limit = int(pageSize) + 1

	items, err := s.repo.List(ctx, s.db, operator.CompanyID, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.PaymentCode) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	codes := make([]domain.PaymentCode, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		codes = append(codes, *item)
	}

	resp := domain.ListResponse{PaymentCodes: codes}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) cancelRegistration(ctx context.Context, code string) {
	if err := s.gateway.CancelCode(ctx, code); err != nil {
		s.log.Error("compensating gateway cancellation failed", zap.Error(err))
	}
}
