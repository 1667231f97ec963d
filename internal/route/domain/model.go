package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type RouteStatus string

const (
	RouteStatusActive   RouteStatus = "active"
	RouteStatusInactive RouteStatus = "inactive"
)

// Route is a transport line with a fixed fare in minor currency units.
// Rows are managed by the back office; this engine only reads them.
type Route struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID snowflake.ID `gorm:"not null;index" json:"company_id"`
	Name      string       `gorm:"not null" json:"name"`
	Fare      int64        `gorm:"not null" json:"fare"`
	Status    RouteStatus  `gorm:"type:text;not null" json:"status"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Route) TableName() string { return "routes" }

func (r Route) Active() bool { return r.Status == RouteStatusActive }
