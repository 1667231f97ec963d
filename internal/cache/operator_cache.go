package cache

import (
	"time"

	operatordomain "github.com/smallbiznis/farebox/internal/operator/domain"
)

const defaultOperatorTTL = 30 * time.Second

// OperatorCache stores token-hash resolver lookups for the auth hot path.
// The TTL is short so suspensions and route reassignments propagate fast.
type OperatorCache interface {
	Get(tokenHash string) (*operatordomain.Operator, bool)
	Set(tokenHash string, operator *operatordomain.Operator)
	Invalidate(tokenHash string)
}

type operatorCache struct {
	operators Cache[string, *operatordomain.Operator]
	ttl       time.Duration
}

// NewOperatorCache returns an in-memory cache tuned for operator auth.
func NewOperatorCache() OperatorCache {
	return &operatorCache{
		operators: NewTTLCache[string, *operatordomain.Operator](),
		ttl:       defaultOperatorTTL,
	}
}

func (c *operatorCache) Get(tokenHash string) (*operatordomain.Operator, bool) {
	return c.operators.Get(tokenHash)
}

func (c *operatorCache) Set(tokenHash string, operator *operatordomain.Operator) {
	if operator == nil || operator.ID == 0 {
		return
	}
	c.operators.Set(tokenHash, operator, c.ttl)
}

func (c *operatorCache) Invalidate(tokenHash string) {
	c.operators.Delete(tokenHash)
}
