package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/farebox/internal/audit/masking"
	"github.com/smallbiznis/farebox/internal/providers/pdf"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
)

func (s *Server) GetTicketByCode(c *gin.Context) {
	op := s.operatorFrom(c)

	ticket, err := s.validationSvc.GetTicketByCode(c.Request.Context(), op, c.Param("ticket"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (s *Server) GetTicketReceipt(c *gin.Context) {
	op := s.operatorFrom(c)
	if op == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("ticket")))
	if err != nil || id == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	ticket, err := s.ticketRepo.FindByID(c.Request.Context(), s.db, op.CompanyID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if ticket == nil {
		AbortWithError(c, ticketdomain.ErrNotFound)
		return
	}

	validatedAt := "-"
	if ticket.UsedAt != nil {
		validatedAt = ticket.UsedAt.UTC().Format("2006-01-02 15:04 MST")
	}

	companyName := op.CompanyID.String()
	if company, err := s.companyRepo.FindByID(c.Request.Context(), s.db, op.CompanyID); err == nil && company != nil {
		companyName = company.Name
	}
	routeName := ticket.RouteID.String()
	fare := ""
	if route, err := s.routeRepo.FindByID(c.Request.Context(), s.db, op.CompanyID, ticket.RouteID); err == nil && route != nil {
		routeName = route.Name
		fare = fmt.Sprintf("%d", route.Fare)
	}

	reader, err := s.pdfProvider.GenerateTicketReceipt(c.Request.Context(), pdf.ReceiptData{
		CompanyName: companyName,
		TicketID:    ticket.ID.String(),
		MaskedCode:  masking.MaskCode(ticket.OneTimeCode),
		RouteName:   routeName,
		Fare:        fare,
		Status:      string(ticket.Status),
		IssuedAt:    ticket.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
		ValidatedAt: validatedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="ticket-%s.pdf"`, ticket.ID.String()))
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}
