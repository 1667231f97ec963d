package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the idempotency ledger for gateway confirmations. The
// unique key on (provider, event_id) is what makes ingestion replay-safe.
type EventRecord struct {
	ID            snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider      string         `json:"provider" gorm:"type:text;not null"`
	EventID       string         `json:"event_id" gorm:"type:text;not null"`
	PaymentCodeID snowflake.ID   `json:"payment_code_id" gorm:"not null;index"`
	CompanyID     snowflake.ID   `json:"company_id" gorm:"not null;index"`
	Amount        int64          `json:"amount" gorm:"not null"`
	PayerPhone    string         `json:"payer_phone" gorm:"type:text;not null"`
	Payload       datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt    time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt   *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "gateway_events" }

// ConfirmationEvent is the canonical payment confirmation parsed from a
// gateway webhook.
type ConfirmationEvent struct {
	Provider   string
	EventID    string
	Code       string
	Amount     int64
	PayerPhone string
	OccurredAt time.Time
	RawPayload []byte
}

// IngestOutcome describes what a confirmation produced.
type IngestOutcome string

const (
	OutcomeTicketCreated IngestOutcome = "ticket_created"
	OutcomeIgnored       IngestOutcome = "ignored"
)
