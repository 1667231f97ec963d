package gateway

import (
	"github.com/smallbiznis/farebox/internal/gateway/client"
	"github.com/smallbiznis/farebox/internal/gateway/repository"
	"github.com/smallbiznis/farebox/internal/gateway/service"
	"github.com/smallbiznis/farebox/internal/gateway/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.service",
	fx.Provide(client.NewHTTPClient),
	fx.Provide(webhook.NewVerifier),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewIngestor),
)
