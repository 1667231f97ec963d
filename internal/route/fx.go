package route

import (
	"github.com/smallbiznis/farebox/internal/route/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("route",
	fx.Provide(repository.Provide),
)
