package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TicketStatus string

const (
	TicketStatusPending TicketStatus = "pending"
	TicketStatusUsed    TicketStatus = "used"
)

// Ticket is a single-ride entitlement minted from a confirmed payment.
// CompanyID and RouteID are denormalized from the parent payment code so
// validation never joins across tenants. Tickets are never deleted.
type Ticket struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	CompanyID      snowflake.ID  `gorm:"not null;index" json:"company_id"`
	RouteID        snowflake.ID  `gorm:"not null;index" json:"route_id"`
	PaymentCodeID  snowflake.ID  `gorm:"not null;index" json:"payment_code_id"`
	OneTimeCode    string        `gorm:"type:text;not null" json:"one_time_code"`
	PassengerPhone string        `gorm:"type:text;not null" json:"passenger_phone"`
	Status         TicketStatus  `gorm:"type:text;not null" json:"status"`
	ValidatedBy    *snowflake.ID `json:"validated_by,omitempty"`
	UsedAt         *time.Time    `json:"used_at,omitempty"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
}

func (Ticket) TableName() string { return "tickets" }

func (t Ticket) Pending() bool { return t.Status == TicketStatusPending }
