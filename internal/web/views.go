package web

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/storefront/pkg/listing"
	"github.com/Sternrassler/storefront/pkg/loader"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var viewsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "storefront_views_active",
	Help: "Live infinite-scroll views",
})

// View is one rendered infinite-scroll feed and the loader behind it.
type View struct {
	ID     string
	Query  listing.Query
	Loader *loader.Loader

	lastSeen time.Time
}

// ViewRegistry holds live views in memory. Views idle for longer than the
// TTL are dropped by Sweep.
type ViewRegistry struct {
	mu    sync.Mutex
	views map[string]*View
	ttl   time.Duration
	now   func() time.Time
}

// NewViewRegistry creates an empty registry.
func NewViewRegistry(ttl time.Duration) *ViewRegistry {
	return &ViewRegistry{
		views: make(map[string]*View),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Create registers a view and returns it.
func (r *ViewRegistry) Create(q listing.Query, l *loader.Loader) *View {
	v := &View{
		ID:     uuid.NewString(),
		Query:  q,
		Loader: l,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	v.lastSeen = r.now()
	r.views[v.ID] = v
	viewsActive.Set(float64(len(r.views)))
	return v
}

// Get returns a live view and marks it as used.
func (r *ViewRegistry) Get(id string) (*View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.views[id]
	if ok {
		v.lastSeen = r.now()
	}
	return v, ok
}

// Delete removes a view. It reports whether the view existed.
func (r *ViewRegistry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.views[id]
	delete(r.views, id)
	viewsActive.Set(float64(len(r.views)))
	return ok
}

// Len returns the number of live views.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Sweep drops idle views and returns how many were dropped.
func (r *ViewRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	dropped := 0
	for id, v := range r.views {
		if v.lastSeen.Before(cutoff) {
			delete(r.views, id)
			dropped++
		}
	}
	viewsActive.Set(float64(len(r.views)))
	return dropped
}

// Run sweeps every interval until ctx is done.
func (r *ViewRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
