package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/farebox/internal/audit/domain"
	"github.com/smallbiznis/farebox/internal/audit/masking"
	"github.com/smallbiznis/farebox/internal/clock"
	"github.com/smallbiznis/farebox/internal/config"
	"github.com/smallbiznis/farebox/internal/gateway/domain"
	"github.com/smallbiznis/farebox/internal/observability/logger"
	"github.com/smallbiznis/farebox/internal/observability/metrics"
	paymentcodedomain "github.com/smallbiznis/farebox/internal/paymentcode/domain"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
	"github.com/smallbiznis/farebox/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Policy     *config.FarePolicyHolder
	Repo       domain.Repository
	CodeRepo   paymentcodedomain.Repository
	TicketRepo ticketdomain.Repository
	Audit      auditdomain.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

type Ingestor struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policy     *config.FarePolicyHolder
	repo       domain.Repository
	codeRepo   paymentcodedomain.Repository
	ticketRepo ticketdomain.Repository
	audit      auditdomain.Service
	metrics    *metrics.Metrics
}

func NewIngestor(p Params) domain.Ingestor {
	return &Ingestor{
		db:         p.DB,
		log:        p.Log.Named("gateway.ingestor"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		repo:       p.Repo,
		codeRepo:   p.CodeRepo,
		ticketRepo: p.TicketRepo,
		audit:      p.Audit,
		metrics:    p.Metrics,
	}
}

// Ingest turns a verified payment confirmation into a ticket. One
// transaction covers the idempotency claim, the capacity decrement, the
// mint and the processed mark, so a crash at any point leaves the event
// resumable and never double-spends capacity.
func (s *Ingestor) Ingest(ctx context.Context, event *domain.ConfirmationEvent) (*domain.IngestResult, error) {
	if event == nil ||
		strings.TrimSpace(event.Provider) == "" ||
		strings.TrimSpace(event.EventID) == "" ||
		strings.TrimSpace(event.Code) == "" ||
		event.Amount <= 0 {
		return nil, domain.ErrInvalidEvent
	}

	code, err := s.codeRepo.FindByCode(ctx, s.db, event.Code)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, domain.ErrUnknownCode
	}

	policy := s.policy.Get()
	now := s.clock.Now()

	payload := event.RawPayload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var (
		ticket     *ticketdomain.Ticket
		codeClosed bool
	)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		record := &domain.EventRecord{
			ID:            s.genID.Generate(),
			Provider:      event.Provider,
			EventID:       event.EventID,
			PaymentCodeID: code.ID,
			CompanyID:     code.CompanyID,
			Amount:        event.Amount,
			PayerPhone:    event.PayerPhone,
			Payload:       datatypes.JSON(payload),
			ReceivedAt:    now,
		}

		inserted, err := s.repo.InsertEvent(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := s.repo.FindEvent(ctx, tx, event.Provider, event.EventID)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("event claim lost without a row for %s/%s", event.Provider, event.EventID)
			}
			if existing.ProcessedAt != nil {
				return domain.ErrEventAlreadyProcessed
			}
			// A previous delivery claimed the event and crashed before the
			// processed mark. Take the row lock before resuming: of two
			// concurrent redeliveries only one gets it, the other blocks
			// here and then sees the processed row.
			claimed, err := s.repo.ClaimEvent(ctx, tx, existing.ID)
			if err != nil {
				return err
			}
			if !claimed {
				return domain.ErrEventAlreadyProcessed
			}
			record = existing
		}

		if now.Sub(code.CreatedAt) > policy.CodeTTL {
			if _, err := s.codeRepo.Transition(ctx, tx, code.ID,
				paymentcodedomain.CodeStatusActive, paymentcodedomain.CodeStatusExpired, now); err != nil {
				return err
			}
			codeClosed = true
			return s.markProcessedOnce(ctx, tx, record.ID, now)
		}

		consumed, err := s.codeRepo.ConsumeUse(ctx, tx, code.ID, now)
		if err != nil {
			return err
		}
		if !consumed {
			codeClosed = true
			return s.markProcessedOnce(ctx, tx, record.ID, now)
		}

		ticket, err = s.mintTicket(ctx, tx, code, event, policy)
		if err != nil {
			return err
		}

		if err := s.markProcessedOnce(ctx, tx, record.ID, now); err != nil {
			return err
		}

		targetID := ticket.ID.String()
		return s.audit.AuditLogIn(ctx, tx, &code.CompanyID,
			string(auditdomain.ActorTypeGateway), nil,
			"ticket.minted", "ticket", &targetID,
			map[string]any{
				"payment_code_id": code.ID.String(),
				"provider":        event.Provider,
				"one_time_code":   masking.MaskCode(ticket.OneTimeCode),
				"payer_phone":     masking.MaskPhone(event.PayerPhone),
				"amount":          event.Amount,
			},
		)
	})
	if err != nil {
		return nil, err
	}

	if codeClosed {
		if s.metrics != nil {
			s.metrics.RecordGatewayEvent(ctx, event.Provider, "code_closed")
		}
		return nil, paymentcodedomain.ErrCodeClosed
	}

	if s.metrics != nil {
		s.metrics.RecordGatewayEvent(ctx, event.Provider, "ticket_created")
		s.metrics.RecordTicketMinted(ctx, code.CompanyID.String())
	}
	logger.WithContext(ctx, s.log).Info("ticket minted",
		zap.String("ticket_id", ticket.ID.String()),
		zap.String("payment_code_id", code.ID.String()),
		zap.String("provider", event.Provider),
	)
	return &domain.IngestResult{Outcome: domain.OutcomeTicketCreated, Ticket: ticket}, nil
}

// markProcessedOnce rolls the whole transaction back when the processed mark
// hits zero rows: a concurrent delivery won, and committing here would spend
// capacity twice for one event.
func (s *Ingestor) markProcessedOnce(ctx context.Context, tx *gorm.DB, id snowflake.ID, now time.Time) error {
	marked, err := s.repo.MarkProcessed(ctx, tx, id, now)
	if err != nil {
		return err
	}
	if !marked {
		return domain.ErrEventAlreadyProcessed
	}
	return nil
}

// mintTicket retries code generation under a savepoint so a collision on
// the pending-code unique index rolls back only the failed insert, not the
// surrounding transaction.
func (s *Ingestor) mintTicket(ctx context.Context, tx *gorm.DB, code *paymentcodedomain.PaymentCode, event *domain.ConfirmationEvent, policy config.FarePolicy) (*ticketdomain.Ticket, error) {
	for attempt := 0; attempt < policy.MintMaxAttempts; attempt++ {
		oneTimeCode, err := ticketdomain.GenerateOneTimeCode(policy.TicketCodeWidth)
		if err != nil {
			return nil, err
		}

		candidate := &ticketdomain.Ticket{
			ID:             s.genID.Generate(),
			CompanyID:      code.CompanyID,
			RouteID:        code.RouteID,
			PaymentCodeID:  code.ID,
			OneTimeCode:    oneTimeCode,
			PassengerPhone: event.PayerPhone,
			Status:         ticketdomain.TicketStatusPending,
			CreatedAt:      s.clock.Now(),
		}

		savepoint := fmt.Sprintf("mint_%d", attempt)
		tx.SavePoint(savepoint)
		if err := s.ticketRepo.Insert(ctx, tx, candidate); err != nil {
			if db.IsDuplicateKeyErr(err) {
				tx.RollbackTo(savepoint)
				continue
			}
			return nil, err
		}
		return candidate, nil
	}
	return nil, ticketdomain.ErrCodeGeneration
}
