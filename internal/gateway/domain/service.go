package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
	"gorm.io/gorm"
)

// RegisterCodeRequest asks the gateway to allocate a reusable payment code
// that accepts up to MaxUses payments of Amount each.
type RegisterCodeRequest struct {
	Reference string
	Amount    int64
	MaxUses   int
}

type RegisterCodeResponse struct {
	Code string
}

// Client is the outbound gateway API.
type Client interface {
	RegisterCode(ctx context.Context, req RegisterCodeRequest) (*RegisterCodeResponse, error)
	CancelCode(ctx context.Context, code string) error
}

// Verifier authenticates inbound webhook payloads.
type Verifier interface {
	Verify(payload []byte, headers http.Header) error
	Parse(payload []byte) (*ConfirmationEvent, error)
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, eventID string) (*EventRecord, error)
	// ClaimEvent locks an unprocessed event row for the calling transaction.
	// A false return means another delivery processed it in the meantime.
	ClaimEvent(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	// MarkProcessed flips processed_at exactly once; false means a
	// concurrent delivery already did.
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) (bool, error)
}

// IngestResult reports what a confirmation produced. Ticket is set only for
// OutcomeTicketCreated.
type IngestResult struct {
	Outcome IngestOutcome
	Ticket  *ticketdomain.Ticket
}

// Ingestor turns verified gateway confirmations into tickets, exactly once
// per (provider, event_id).
type Ingestor interface {
	Ingest(ctx context.Context, event *ConfirmationEvent) (*IngestResult, error)
}

var (
	ErrInvalidEvent          = errors.New("invalid_gateway_event")
	ErrEventIgnored          = errors.New("gateway_event_ignored")
	ErrInvalidSignature      = errors.New("invalid_gateway_signature")
	ErrUnknownCode           = errors.New("unknown_payment_code")
	ErrEventAlreadyProcessed = errors.New("gateway_event_already_processed")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
)
