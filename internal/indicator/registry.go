package indicator

import (
	"sync"

	"github.com/trade-manager/trade-engine/pkg/errors"
)

// Factory constructs a fresh indicator instance. Datasets must not share
// indicator state, so the registry hands out constructors, not instances.
type Factory func() Indicator

// Registry maps indicator names to factories.
type Registry interface {
	Register(name IndicatorType, factory Factory) error
	New(name IndicatorType) (Indicator, error)
	List() []IndicatorType
}

// RegistryV1 is the default Registry implementation.
type RegistryV1 struct {
	factories map[IndicatorType]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a registry pre-loaded with the standard indicators.
func NewRegistry() Registry {
	r := &RegistryV1{
		factories: make(map[IndicatorType]Factory),
		mu:        sync.RWMutex{},
	}

	// Registration of the built-ins cannot fail on an empty registry.
	_ = r.Register(IndicatorTypeSMA, NewSMA)
	_ = r.Register(IndicatorTypeEMA, NewEMA)
	_ = r.Register(IndicatorTypeATR, NewATR)
	_ = r.Register(IndicatorTypeVWAP, NewVWAP)

	return r
}

// Register adds a factory to the registry.
func (r *RegistryV1) Register(name IndicatorType, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeInvalidParameter, "indicator %s already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// New constructs a fresh instance of the named indicator.
func (r *RegistryV1) New(name IndicatorType) (Indicator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "indicator %s not registered", name)
	}

	return factory(), nil
}

// List returns the names of all registered indicators.
func (r *RegistryV1) List() []IndicatorType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]IndicatorType, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	return names
}
