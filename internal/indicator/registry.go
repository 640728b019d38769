package indicator

import (
	"sync"

	"github.com/produvia/kryptos-go/internal/config"
	"github.com/produvia/kryptos-go/internal/types"
	"github.com/produvia/kryptos-go/pkg/errors"
)

// Factory constructs a fresh indicator instance for one run.
type Factory func() Indicator

// Registry maps indicator types to constructors. Strategy documents are
// resolved against it once at configuration-load time, so the set of
// indicators a run can reference is closed before the first bar.
type Registry interface {
	Register(name types.IndicatorType, factory Factory) error
	Resolve(spec config.IndicatorSpec) (Indicator, error)
	List() []types.IndicatorType
}

type registryV1 struct {
	factories map[types.IndicatorType]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a registry pre-populated with the standard indicators.
func NewRegistry() Registry {
	r := &registryV1{
		factories: make(map[types.IndicatorType]Factory),
		mu:        sync.RWMutex{},
	}

	r.Register(types.IndicatorTypeRSI, NewRSI)
	r.Register(types.IndicatorTypeMA, NewMACrossover)
	r.Register(types.IndicatorTypeMACD, NewMACD)

	return r
}

// Register adds an indicator factory to the registry.
func (r *registryV1) Register(name types.IndicatorType, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeIndicatorAlreadyExists, "indicator %s already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// Resolve constructs and configures an indicator for the given spec.
func (r *registryV1) Resolve(spec config.IndicatorSpec) (Indicator, error) {
	r.mu.RLock()
	factory, exists := r.factories[spec.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator %s not registered", spec.Type)
	}

	ind := factory()
	if err := ind.Configure(spec.Params); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "failed to configure indicator %s", spec.Type)
	}

	if base, ok := ind.(interface{ setLabel(string) }); ok && spec.Label != "" {
		base.setLabel(spec.Label)
	}

	return ind, nil
}

// List returns all registered indicator types.
func (r *registryV1) List() []types.IndicatorType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]types.IndicatorType, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	return names
}
