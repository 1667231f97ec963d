package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/farebox/internal/audit/domain"
	"github.com/smallbiznis/farebox/internal/audit/masking"
	"github.com/smallbiznis/farebox/internal/clock"
	companydomain "github.com/smallbiznis/farebox/internal/company/domain"
	"github.com/smallbiznis/farebox/internal/observability/logger"
	"github.com/smallbiznis/farebox/internal/observability/metrics"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	routedomain "github.com/smallbiznis/farebox/internal/route/domain"
	"github.com/smallbiznis/farebox/internal/tenantguard"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
	"github.com/smallbiznis/farebox/internal/validation/domain"
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
	TicketRepo  ticketdomain.Repository
	CompanyRepo companydomain.Repository
	RouteRepo   routedomain.Repository
	Audit       auditdomain.Service
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	ticketRepo  ticketdomain.Repository
	companyRepo companydomain.Repository
	routeRepo   routedomain.Repository
	audit       auditdomain.Service
	metrics     *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("validation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		ticketRepo:  p.TicketRepo,
		companyRepo: p.CompanyRepo,
		routeRepo:   p.RouteRepo,
		audit:       p.Audit,
		metrics:     p.Metrics,
	}
}

// Validate redeems a pending ticket for the operator's company. The lookup
// is company-scoped, so a foreign ticket and a bad code are
// indistinguishable to the caller. The pending-to-used flip rides a
// conditional UPDATE; losing that race reports the same generic failure.
func (s *Service) Validate(ctx context.Context, operator *operatordomain.Operator, oneTimeCode string) (*domain.ValidatedTicket, error) {
	if operator == nil {
		return nil, &tenantguard.DeniedError{Reason: tenantguard.ReasonMissingActor}
	}
	if !operator.Active() {
		return nil, operatordomain.ErrSuspended
	}

	oneTimeCode = strings.TrimSpace(oneTimeCode)
	if oneTimeCode == "" {
		return nil, domain.ErrInvalidCode
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

	var validated *domain.ValidatedTicket
	err = s.db.Transaction(func(tx *gorm.DB) error {
		ticket, err := s.ticketRepo.FindPendingByCode(ctx, tx, operator.CompanyID, oneTimeCode)
		if err != nil {
			return err
		}
		if ticket == nil {
			return ticketdomain.ErrInvalidOrUsed
		}

		if !operator.AssignedTo(ticket.RouteID) {
			return domain.ErrRouteNotAssigned
		}

		route, err := s.routeRepo.FindByID(ctx, tx, operator.CompanyID, ticket.RouteID)
		if err != nil {
			return err
		}
		if route == nil {
			return routedomain.ErrNotFound
		}

		if err := tenantguard.Authorize(operator.Actor(), ticket.CompanyID, ticket.RouteID); err != nil {
			return err
		}

		usedAt := s.clock.Now()
		won, err := s.ticketRepo.MarkUsed(ctx, tx, operator.CompanyID, ticket.ID, operator.ID, usedAt)
		if err != nil {
			return err
		}
		if !won {
			return ticketdomain.ErrInvalidOrUsed
		}

		ticket.Status = ticketdomain.TicketStatusUsed
		ticket.ValidatedBy = &operator.ID
		ticket.UsedAt = &usedAt

		actorID := operator.ID.String()
		targetID := ticket.ID.String()
		if err := s.audit.AuditLogIn(ctx, tx, &ticket.CompanyID,
			string(auditdomain.ActorTypeOperator), &actorID,
			"ticket.validated", "ticket", &targetID,
			map[string]any{
				"route_id":      route.ID.String(),
				"one_time_code": masking.MaskCode(ticket.OneTimeCode),
				"fare":          route.Fare,
			},
		); err != nil {
			return err
		}

		validated = &domain.ValidatedTicket{
			Ticket:    *ticket,
			RouteName: route.Name,
			Fare:      route.Fare,
			UsedAt:    usedAt,
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordValidation(ctx, operator.CompanyID.String(), "rejected")
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordValidation(ctx, operator.CompanyID.String(), "accepted")
	}
	logger.WithContext(ctx, s.log).Info("ticket validated",
		zap.String("ticket_id", validated.Ticket.ID.String()),
		zap.String("route_id", validated.Ticket.RouteID.String()),
	)
	return validated, nil
}

func (s *Service) GetTicketByCode(ctx context.Context, operator *operatordomain.Operator, oneTimeCode string) (*ticketdomain.Ticket, error) {
	if operator == nil {
		return nil, &tenantguard.DeniedError{Reason: tenantguard.ReasonMissingActor}
	}
	if !operator.Active() {
		return nil, operatordomain.ErrSuspended
	}

	oneTimeCode = strings.TrimSpace(oneTimeCode)
	if oneTimeCode == "" {
		return nil, domain.ErrInvalidCode
	}

	ticket, err := s.ticketRepo.FindByCode(ctx, s.db, operator.CompanyID, oneTimeCode)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, ticketdomain.ErrNotFound
	}
	return ticket, nil
}
