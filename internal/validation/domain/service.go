package domain

import (
	"context"
	"errors"
	"time"

	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
)

// ValidatedTicket is what the operator's device shows after a successful
// scan: the ticket plus enough route context to confirm the fare on sight.
type ValidatedTicket struct {
	Ticket    ticketdomain.Ticket `json:"ticket"`
	RouteName string              `json:"route_name"`
	Fare      int64               `json:"fare"`
	UsedAt    time.Time           `json:"used_at"`
}

type Service interface {
	// Validate redeems a one-time code exactly once. Of N concurrent calls
	// with the same code, one wins and the rest fail with the same generic
	// error a bad code would get.
	Validate(ctx context.Context, operator *operatordomain.Operator, oneTimeCode string) (*ValidatedTicket, error)
	// GetTicketByCode is a read-only lookup for device UI refresh. It makes
	// no freshness promise.
	GetTicketByCode(ctx context.Context, operator *operatordomain.Operator, oneTimeCode string) (*ticketdomain.Ticket, error)
}

var (
	ErrInvalidCode      = errors.New("invalid_validation_code")
	ErrRouteNotAssigned = errors.New("route_not_assigned")
)
