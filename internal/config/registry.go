package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ppmusicbot/ppmusicbot/internal/telemetry"
	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps catalogue provider names and telemetry drivers to their
// constructor functions. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	catalogue map[string]func(CatalogueConfig) (catalogue.Client, error)
	sinks     map[TelemetryDriver]func(TelemetryConfig) (telemetry.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		catalogue: make(map[string]func(CatalogueConfig) (catalogue.Client, error)),
		sinks:     make(map[TelemetryDriver]func(TelemetryConfig) (telemetry.Sink, error)),
	}
}

// RegisterCatalogue registers a catalogue client factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCatalogue(name string, factory func(CatalogueConfig) (catalogue.Client, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalogue[name] = factory
}

// RegisterSink registers a telemetry sink factory for driver.
func (r *Registry) RegisterSink(driver TelemetryDriver, factory func(TelemetryConfig) (telemetry.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[driver] = factory
}

// CreateCatalogue instantiates the catalogue client registered under
// cfg.Provider. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateCatalogue(cfg CatalogueConfig) (catalogue.Client, error) {
	r.mu.RLock()
	factory, ok := r.catalogue[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: catalogue/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateSink instantiates the telemetry sink registered for cfg.Driver.
func (r *Registry) CreateSink(cfg TelemetryConfig) (telemetry.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[cfg.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: telemetry/%q", ErrProviderNotRegistered, cfg.Driver)
	}
	return factory(cfg)
}
