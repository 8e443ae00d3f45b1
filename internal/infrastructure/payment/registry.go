package payment

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arcade/backend/internal/domain/finance"
)

// Registry implements finance.PaymentGatewayRegistry
type Registry struct {
	mu       sync.RWMutex
	gateways map[finance.PaymentGatewayType]finance.PaymentGateway
}

// NewRegistry creates a registry holding the given gateways
func NewRegistry(gateways ...finance.PaymentGateway) *Registry {
	r := &Registry{gateways: make(map[finance.PaymentGatewayType]finance.PaymentGateway)}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

// Register adds or replaces a gateway
func (r *Registry) Register(g finance.PaymentGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[g.GatewayType()] = g
}

// GetGateway returns the gateway for the specified type
func (r *Registry) GetGateway(gatewayType finance.PaymentGatewayType) (finance.PaymentGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[gatewayType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", finance.ErrGatewayNotConfigured, gatewayType)
	}
	return g, nil
}

// Types lists the configured gateway types in name order
func (r *Registry) Types() []finance.PaymentGatewayType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]finance.PaymentGatewayType, 0, len(r.gateways))
	for t := range r.gateways {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var _ finance.PaymentGatewayRegistry = (*Registry)(nil)
