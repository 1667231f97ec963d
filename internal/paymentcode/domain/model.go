package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CodeStatus string

const (
	CodeStatusActive    CodeStatus = "active"
	CodeStatusExhausted CodeStatus = "exhausted"
	CodeStatusExpired   CodeStatus = "expired"
	CodeStatusCancelled CodeStatus = "cancelled"
)

// PaymentCode is a reusable, capacity-bounded pay target registered with
// the mobile-money gateway. used_count never exceeds total_capacity; the
// store enforces that with a conditional increment, not application checks.
// Codes are closed (exhausted, expired, cancelled), never deleted.
type PaymentCode struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Code          string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	CompanyID     snowflake.ID `gorm:"not null;index" json:"company_id"`
	RouteID       snowflake.ID `gorm:"not null;index" json:"route_id"`
	OperatorID    snowflake.ID `gorm:"not null" json:"operator_id"`
	TotalCapacity int          `gorm:"not null" json:"total_capacity"`
	UsedCount     int          `gorm:"not null;default:0" json:"used_count"`
	Status        CodeStatus   `gorm:"type:text;not null" json:"status"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (PaymentCode) TableName() string { return "payment_codes" }

func (p PaymentCode) Active() bool { return p.Status == CodeStatusActive }

func (p PaymentCode) Remaining() int {
	remaining := p.TotalCapacity - p.UsedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
