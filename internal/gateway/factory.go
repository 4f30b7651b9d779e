package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Constructor builds an adapter from a validated-on-construction config snapshot.
type Constructor func(cfg Config, deps Deps) (Adapter, error)

// Detector reports whether a callback field set has a gateway's shape.
type Detector func(fields map[string]string) bool

// Registration ties a gateway code to its constructor and callback shape.
type Registration struct {
	Code    string
	New     Constructor
	Matches Detector
}

// ConfigSource loads the active settings of a gateway for one environment.
type ConfigSource interface {
	LoadConfig(ctx context.Context, code, environment string) (map[string]string, error)
}

// Factory constructs adapters by gateway code and environment.
type Factory struct {
	source       ConfigSource
	deps         Deps
	constructors map[string]Constructor
}

// NewFactory creates a Factory for the given registrations.
func NewFactory(source ConfigSource, deps Deps, registrations ...Registration) *Factory {
	f := &Factory{
		source:       source,
		deps:         deps.WithDefaults(),
		constructors: make(map[string]Constructor, len(registrations)),
	}
	for _, r := range registrations {
		f.constructors[normalizeCode(r.Code)] = r.New
	}
	return f
}

// Supports reports whether an adapter is registered for code.
func (f *Factory) Supports(code string) bool {
	_, ok := f.constructors[normalizeCode(code)]
	return ok
}

// Codes returns the registered gateway codes in sorted order.
func (f *Factory) Codes() []string {
	codes := make([]string, 0, len(f.constructors))
	for code := range f.constructors {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Make loads the gateway's configuration and constructs its adapter.
// Missing required settings surface as *ConfigurationError.
func (f *Factory) Make(ctx context.Context, code, environment string) (Adapter, error) {
	code = normalizeCode(code)
	construct, ok := f.constructors[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, code)
	}

	values, err := f.source.LoadConfig(ctx, code, environment)
	if err != nil {
		return nil, fmt.Errorf("load %s configuration: %w", code, err)
	}

	return construct(NewConfig(code, environment, values), f.deps)
}

// Preflight constructs the adapter of every given gateway so that missing
// secrets fail at startup instead of on a donor's first payment.
// Codes without a registered adapter are skipped.
func (f *Factory) Preflight(ctx context.Context, environment string, codes []string) error {
	var errs []error
	for _, code := range codes {
		if !f.Supports(code) {
			continue
		}
		if _, err := f.Make(ctx, code, environment); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
