package operator

import (
	"github.com/smallbiznis/farebox/internal/cache"
	"github.com/smallbiznis/farebox/internal/operator/repository"
	"github.com/smallbiznis/farebox/internal/operator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("operator",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewOperatorCache),
	fx.Provide(service.NewService),
)
