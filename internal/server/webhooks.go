package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/farebox/internal/gateway/domain"
	obscontext "github.com/smallbiznis/farebox/internal/observability/context"
	paymentcodedomain "github.com/smallbiznis/farebox/internal/paymentcode/domain"
)

const maxWebhookBodyBytes = 1 << 20

// GatewayWebhook receives payment confirmations. A 2xx goes back only after
// the ingest transaction commits; anything else makes the gateway retry,
// which ingestion absorbs idempotently.
func (s *Server) GatewayWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	if provider == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.verifier.Verify(payload, c.Request.Header); err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	event, err := s.verifier.Parse(payload)
	if err != nil {
		if errors.Is(err, gatewaydomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}
	event.Provider = provider

	ctx := obscontext.WithActor(c.Request.Context(), "gateway", provider)
	result, err := s.ingestor.Ingest(ctx, event)
	if err != nil {
		switch {
		case errors.Is(err, gatewaydomain.ErrEventAlreadyProcessed):
			// Replay of a finished delivery; acknowledge so the gateway
			// stops retrying.
			c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
		case errors.Is(err, paymentcodedomain.ErrCodeClosed):
			// The refusal is committed; a retry would hit the replay path.
			c.JSON(http.StatusConflict, gin.H{"status": "code_exhausted_or_closed"})
		case errors.Is(err, gatewaydomain.ErrUnknownCode):
			c.JSON(http.StatusNotFound, gin.H{"status": "unknown_code"})
		case errors.Is(err, gatewaydomain.ErrInvalidEvent):
			AbortWithError(c, invalidRequestError())
		default:
			AbortWithError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    string(result.Outcome),
		"ticket_id": result.Ticket.ID.String(),
	})
}
