package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/farebox/internal/audit"
	auditdomain "github.com/smallbiznis/farebox/internal/audit/domain"
	"github.com/smallbiznis/farebox/internal/authorization"
	"github.com/smallbiznis/farebox/internal/company"
	companydomain "github.com/smallbiznis/farebox/internal/company/domain"
	"github.com/smallbiznis/farebox/internal/config"
	"github.com/smallbiznis/farebox/internal/gateway"
	gatewaydomain "github.com/smallbiznis/farebox/internal/gateway/domain"
	"github.com/smallbiznis/farebox/internal/observability"
	obsmiddleware "github.com/smallbiznis/farebox/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/farebox/internal/observability/metrics"
	obstracing "github.com/smallbiznis/farebox/internal/observability/tracing"
	"github.com/smallbiznis/farebox/internal/operator"
	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
	"github.com/smallbiznis/farebox/internal/paymentcode"
	paymentcodedomain "github.com/smallbiznis/farebox/internal/paymentcode/domain"
	"github.com/smallbiznis/farebox/internal/providers/pdf"
	"github.com/smallbiznis/farebox/internal/ratelimit"
	"github.com/smallbiznis/farebox/internal/route"
	routedomain "github.com/smallbiznis/farebox/internal/route/domain"
	"github.com/smallbiznis/farebox/internal/ticket"
	ticketdomain "github.com/smallbiznis/farebox/internal/ticket/domain"
	"github.com/smallbiznis/farebox/internal/validation"
	validationdomain "github.com/smallbiznis/farebox/internal/validation/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	company.Module,
	route.Module,
	operator.Module,
	paymentcode.Module,
	ticket.Module,
	gateway.Module,
	validation.Module,
	ratelimit.Module,
	pdf.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	operatorSvc     operatordomain.Service
	companyRepo     companydomain.Repository
	routeRepo       routedomain.Repository
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	paymentCodeSvc  paymentcodedomain.Service
	validationSvc   validationdomain.Service
	ticketRepo      ticketdomain.Repository
	ingestor        gatewaydomain.Ingestor
	verifier        gatewaydomain.Verifier
	pdfProvider     pdf.Provider
	validateLimiter *ratelimit.ValidateLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	OperatorSvc     operatordomain.Service
	CompanyRepo     companydomain.Repository
	RouteRepo       routedomain.Repository
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	PaymentCodeSvc  paymentcodedomain.Service
	ValidationSvc   validationdomain.Service
	TicketRepo      ticketdomain.Repository
	Ingestor        gatewaydomain.Ingestor
	Verifier        gatewaydomain.Verifier
	PDFProvider     pdf.Provider
	ValidateLimiter *ratelimit.ValidateLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		operatorSvc:     p.OperatorSvc,
		companyRepo:     p.CompanyRepo,
		routeRepo:       p.RouteRepo,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		paymentCodeSvc:  p.PaymentCodeSvc,
		validationSvc:   p.ValidationSvc,
		ticketRepo:      p.TicketRepo,
		ingestor:        p.Ingestor,
		verifier:        p.Verifier,
		pdfProvider:     p.PDFProvider,
		validateLimiter: p.ValidateLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.OperatorRequired())

	api.POST("/codes", s.requireAction(authorization.ObjectPaymentCode, authorization.ActionPaymentCodeIssue), s.IssuePaymentCode)
	api.POST("/codes/:id/cancel", s.requireAction(authorization.ObjectPaymentCode, authorization.ActionPaymentCodeCancel), s.CancelPaymentCode)
	api.GET("/codes", s.requireAction(authorization.ObjectPaymentCode, authorization.ActionPaymentCodeView), s.ListPaymentCodes)
	api.GET("/codes/:id", s.requireAction(authorization.ObjectPaymentCode, authorization.ActionPaymentCodeView), s.GetPaymentCode)

	api.POST("/validate", s.requireAction(authorization.ObjectTicket, authorization.ActionTicketValidate), s.ValidateRateLimit(), s.ValidateTicket)
	// gin requires one wildcard name per segment: :ticket is the one-time
	// code on the lookup route and the ticket id on the receipt route.
	api.GET("/tickets/:ticket", s.requireAction(authorization.ObjectTicket, authorization.ActionTicketView), s.GetTicketByCode)
	api.GET("/tickets/:ticket/receipt", s.requireAction(authorization.ObjectTicket, authorization.ActionTicketView), s.GetTicketReceipt)

	api.GET("/audit-logs", s.requireAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/gateway/webhooks/:provider", s.GatewayWebhook)
}
