// Package provider defines the price data source abstraction and a registry
// for looking sources up by name.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockcsv/internal/market"
)

// ErrNoData indicates a fetch produced no bars for the requested range.
var ErrNoData = errors.New("no price data")

// Provider fetches historical daily bars for a single symbol. The range is
// inclusive of both endpoints. Implementations validate their inputs: an
// empty symbol or a start date after the end date is an error, a zero end
// date defaults to now.
type Provider interface {
	Source() string
	Fetch(ctx context.Context, symbol string, from, to time.Time) ([]market.Bar, error)
}

type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Source()] = p
}

func (r *Registry) Get(source string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[source]
	if !ok {
		return nil, fmt.Errorf("provider not found for source: %s", source)
	}
	return p, nil
}

func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sources := make([]string, 0, len(r.providers))
	for src := range r.providers {
		sources = append(sources, src)
	}
	return sources
}
