package validation

import (
	"github.com/smallbiznis/farebox/internal/validation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("validation.service",
	fx.Provide(service.NewService),
)
