package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type validateTicketRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) ValidateTicket(c *gin.Context) {
	op := s.operatorFrom(c)

	var req validateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	validated, err := s.validationSvc.Validate(c.Request.Context(), op, req.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, validated)
}
