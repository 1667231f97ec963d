package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentcodedomain "github.com/smallbiznis/farebox/internal/paymentcode/domain"
	"github.com/smallbiznis/farebox/pkg/db/pagination"
)

type issuePaymentCodeRequest struct {
	RouteID  string `json:"route_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

func (s *Server) IssuePaymentCode(c *gin.Context) {
	op := s.operatorFrom(c)

	var req issuePaymentCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	routeID, err := snowflake.ParseString(strings.TrimSpace(req.RouteID))
	if err != nil || routeID == 0 {
		AbortWithError(c, newValidationError("route_id", "invalid_route", "invalid route id"))
		return
	}

	code, err := s.paymentCodeSvc.Issue(c.Request.Context(), op, paymentcodedomain.IssueRequest{
		RouteID:  routeID,
		Quantity: req.Quantity,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, code)
}

func (s *Server) CancelPaymentCode(c *gin.Context) {
	op := s.operatorFrom(c)

	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	code, err := s.paymentCodeSvc.Cancel(c.Request.Context(), op, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

func (s *Server) GetPaymentCode(c *gin.Context) {
	op := s.operatorFrom(c)

	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	code, err := s.paymentCodeSvc.Get(c.Request.Context(), op, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

type listPaymentCodesQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	RouteID   string `form:"route_id"`
	Status    string `form:"status"`
}

func (s *Server) ListPaymentCodes(c *gin.Context) {
	op := s.operatorFrom(c)

	var query listPaymentCodesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentCodeSvc.List(c.Request.Context(), op, paymentcodedomain.ListRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		RouteID: strings.TrimSpace(query.RouteID),
		Status:  strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
