package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/farebox/internal/companyctx"
	obscontext "github.com/smallbiznis/farebox/internal/observability/context"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
)

const contextOperatorKey = "operator"

// OperatorRequired authenticates the device bearer token and stashes the
// operator on the request. Tenant scope for everything downstream comes
// from the operator row, never from client-supplied identifiers.
func (s *Server) OperatorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		op, err := s.operatorSvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := companyctx.WithCompanyID(c.Request.Context(), op.CompanyID)
		ctx = companyctx.WithOperatorID(ctx, op.ID)
		ctx = obscontext.WithActor(ctx, "operator", op.ID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Set(contextOperatorKey, op)
		c.Next()
	}
}

func (s *Server) operatorFrom(c *gin.Context) *operatordomain.Operator {
	value, ok := c.Get(contextOperatorKey)
	if !ok {
		return nil
	}
	op, ok := value.(*operatordomain.Operator)
	if !ok {
		return nil
	}
	return op
}

// requireAction asks the role gate before the handler runs. Route-level
// checks still happen inside services via the tenant guard.
func (s *Server) requireAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		op := s.operatorFrom(c)
		if op == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor := "operator:" + op.ID.String()
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, op.CompanyID.String(), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// ValidateRateLimit throttles redemption attempts per operator. When the
// limiter is not configured the request passes straight through.
func (s *Server) ValidateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.validateLimiter.Enabled() {
			c.Next()
			return
		}
		op := s.operatorFrom(c)
		if op == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		result, err := s.validateLimiter.Allow(c.Request.Context(), op.ID.String())
		if err != nil {
			// Redis being down must not take validation down with it.
			c.Next()
			return
		}
		if !result.Allowed {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), op.CompanyID.String(), "validate", "token_bucket")
			}
			AbortWithError(c, ErrRateLimited)
			return
		}
		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), op.CompanyID.String(), "validate")
		}
		c.Next()
	}
}
