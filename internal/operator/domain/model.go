package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/farebox/internal/tenantguard"
)

type OperatorStatus string

const (
	OperatorStatusActive    OperatorStatus = "active"
	OperatorStatusSuspended OperatorStatus = "suspended"
)

type OperatorRole string

const (
	RoleOperator OperatorRole = "operator"
	RoleManager  OperatorRole = "manager"
)

// Operator is a field agent or supervisor of a company. Operators carry an
// opaque device token; only its hash is stored.
type Operator struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	CompanyID   snowflake.ID   `gorm:"not null;index" json:"company_id"`
	DisplayName string         `gorm:"not null" json:"display_name"`
	Role        OperatorRole   `gorm:"type:text;not null" json:"role"`
	TokenHash   string         `gorm:"not null;uniqueIndex" json:"-"`
	Status      OperatorStatus `gorm:"type:text;not null" json:"status"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	// RouteIDs is loaded from operator_routes alongside the operator row.
	RouteIDs []snowflake.ID `gorm:"-" json:"route_ids"`
}

func (Operator) TableName() string { return "operators" }

func (o Operator) Active() bool { return o.Status == OperatorStatusActive }

// Actor builds the tenant guard snapshot for this operator. Only the
// manager role carries the company-wide route grant; a plain operator is
// always confined to the explicitly assigned set.
func (o Operator) Actor() tenantguard.Actor {
	return tenantguard.Actor{
		OperatorID: o.ID,
		CompanyID:  o.CompanyID,
		RouteIDs:   o.RouteIDs,
		AllRoutes:  o.Role == RoleManager,
	}
}

// AssignedTo reports whether the operator may act on the given route.
func (o Operator) AssignedTo(routeID snowflake.ID) bool {
	return o.Actor().AssignedTo(routeID)
}
