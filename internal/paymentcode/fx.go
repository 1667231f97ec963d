package paymentcode

import (
	"github.com/smallbiznis/farebox/internal/paymentcode/repository"
	"github.com/smallbiznis/farebox/internal/paymentcode/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentcode.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
