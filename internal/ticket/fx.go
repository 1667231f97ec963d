package ticket

import (
	"github.com/smallbiznis/farebox/internal/ticket/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ticket",
	fx.Provide(repository.Provide),
)
