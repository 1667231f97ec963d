package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CompanyStatus string

const (
	CompanyStatusActive    CompanyStatus = "active"
	CompanyStatusSuspended CompanyStatus = "suspended"
)

// Company is a transport company tenant. Rows are managed by the back
// office; this engine only reads them.
type Company struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name      string        `gorm:"not null" json:"name"`
	Slug      string        `gorm:"not null;uniqueIndex" json:"slug"`
	Status    CompanyStatus `gorm:"type:text;not null" json:"status"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Company) TableName() string { return "companies" }

func (c Company) Active() bool { return c.Status == CompanyStatusActive }
