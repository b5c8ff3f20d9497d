// Package nexusmanager owns the set of running Nexus Controllers in a
// nexusd process: one control-reactor goroutine per named Nexus, each
// wired to the Backing Device Registry, Topology Store, and Label Cache
// collaborators. It is the wiring glue the Control Plane API and the
// server's startup path both sit on top of — not part of the core itself.
package nexusmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/nexus/internal/labelcache"
	"github.com/marmos91/nexus/internal/logger"
	"github.com/marmos91/nexus/internal/metrics"
	"github.com/marmos91/nexus/internal/store"
	"github.com/marmos91/nexus/pkg/nexus"
	"github.com/marmos91/nexus/pkg/registry"
	"github.com/marmos91/nexus/pkg/target"
)

// entry bundles a running Controller with the cancel func that stops its
// control reactor.
type entry struct {
	ctrl   *nexus.Controller
	cancel context.CancelFunc
}

// Manager owns every Nexus Controller in the process, keyed by name.
type Manager struct {
	mu      sync.RWMutex
	nexuses map[string]*entry

	registry   registry.Registry
	store      *store.Store
	labelCache *labelcache.Cache
	targets    *target.Manager
	metrics    *metrics.NexusMetrics
}

// New constructs a Manager. reg resolves backing device URIs for every
// Nexus it creates; st and lc are optional (nil disables persistence /
// caching) ambient collaborators.
func New(reg registry.Registry, st *store.Store, lc *labelcache.Cache) *Manager {
	return &Manager{
		nexuses:    make(map[string]*entry),
		registry:   reg,
		store:      st,
		labelCache: lc,
		targets:    target.NewManager(),
		metrics:    metrics.NewNexusMetrics(),
	}
}

// Create constructs a new Nexus Controller named name with the given
// logical size, starts its control reactor, and registers it for lookup.
// Returns an error if a Nexus by that name already exists.
func (m *Manager) Create(ctx context.Context, name string, size uint64) (*nexus.Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nexuses[name]; ok {
		return nil, fmt.Errorf("nexusmanager: nexus %q already exists", name)
	}

	bus := nexus.NewBus()
	ctrl := nexus.NewController(name, size, m.registry, bus)

	runCtx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(runCtx)

	m.nexuses[name] = &entry{ctrl: ctrl, cancel: cancel}
	logger.InfoCtx(ctx, "nexus created", "nexus", name, "size", size)
	return ctrl, nil
}

// Get returns the Controller named name, or nil and false if it does not
// exist.
func (m *Manager) Get(name string) (*nexus.Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.nexuses[name]
	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Names returns every currently-registered Nexus name.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.nexuses))
	for name := range m.nexuses {
		names = append(names, name)
	}
	return names
}

// Remove stops name's control reactor (after the caller has destroyed its
// children) and forgets it.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.nexuses[name]; ok {
		e.cancel()
		delete(m.nexuses, name)
	}
}

// Targets returns the Front-end Target collaborator shared across every
// Nexus this Manager owns.
func (m *Manager) Targets() *target.Manager { return m.targets }

// Metrics returns the Prometheus recorder shared across every Nexus this
// Manager owns. May be nil if metrics are disabled.
func (m *Manager) Metrics() *metrics.NexusMetrics { return m.metrics }

// Store returns the Topology Store, or nil if persistence is disabled.
func (m *Manager) Store() *store.Store { return m.store }

// LabelCache returns the Label Cache, or nil if caching is disabled.
func (m *Manager) LabelCache() *labelcache.Cache { return m.labelCache }

// Restore rehydrates a Nexus from its persisted topology: creates the
// Controller, then calls RegisterChildren with every previously-registered
// URI. Requires a Topology Store; nexusd does not call it on startup.
func (m *Manager) Restore(ctx context.Context, name string, size uint64) (*nexus.Controller, error) {
	if m.store == nil {
		return nil, fmt.Errorf("nexusmanager: no topology store configured")
	}
	uris, err := m.store.LoadTopology(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("nexusmanager: load topology for %s: %w", name, err)
	}
	ctrl, err := m.Create(ctx, name, size)
	if err != nil {
		return nil, err
	}
	if len(uris) == 0 {
		return ctrl, nil
	}
	if err := ctrl.RegisterChildren(ctx, uris); err != nil {
		return nil, fmt.Errorf("nexusmanager: restore children for %s: %w", name, err)
	}
	logger.InfoCtx(ctx, "nexus restored from topology store", "nexus", name, "children", len(uris))
	return ctrl, nil
}
