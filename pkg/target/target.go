// Package target implements the Front-end Target collaborator of spec.md
// §6: the share/unshare/get_uri contract the Nexus invokes after reaching
// Open and before destruction. The core's only obligation to this
// collaborator is to call Unshare before it allows any owned handle to be
// invalidated; everything else (the actual iSCSI/NVMe-oF export) is outside
// this system's scope.
package target

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// share records a single exported Nexus: the UUID under which it was
// shared and the URI a front-end client would use to reach it.
type share struct {
	nexusName string
	uri       string
}

// Manager is an in-memory share/unshare/get_uri registry keyed by UUID, the
// local stand-in for a real iSCSI/NVMe-oF target used for development and
// tests.
type Manager struct {
	mu     sync.RWMutex
	shares map[uuid.UUID]*share
	byName map[string]uuid.UUID
}

// NewManager constructs an empty Target.
func NewManager() *Manager {
	return &Manager{
		shares: make(map[uuid.UUID]*share),
		byName: make(map[string]uuid.UUID),
	}
}

// Share exports nexusName under a freshly minted UUID and returns the URI a
// front-end client would dial. Idempotent per Nexus name: sharing an
// already-shared Nexus returns its existing UUID and URI unchanged.
func (m *Manager) Share(ctx context.Context, nexusName string) (uuid.UUID, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byName[nexusName]; ok {
		return id, m.shares[id].uri, nil
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("target: generate uuid for %s: %w", nexusName, err)
	}
	uri := fmt.Sprintf("nvmf://%s/%s", id, nexusName)
	m.shares[id] = &share{nexusName: nexusName, uri: uri}
	m.byName[nexusName] = id
	return id, uri, nil
}

// Unshare withdraws the export identified by id. Idempotent: unsharing an
// id that is not currently shared is a no-op.
func (m *Manager) Unshare(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.shares[id]
	if !ok {
		return nil
	}
	delete(m.shares, id)
	delete(m.byName, s.nexusName)
	return nil
}

// GetURI returns the URI currently exported under id, or "" and false if id
// is not shared.
func (m *Manager) GetURI(id uuid.UUID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shares[id]
	if !ok {
		return "", false
	}
	return s.uri, true
}

// UnshareNexus withdraws whatever export exists for nexusName, if any. A
// convenience used by teardown paths that only know the Nexus name, not its
// share UUID.
func (m *Manager) UnshareNexus(ctx context.Context, nexusName string) error {
	m.mu.Lock()
	id, ok := m.byName[nexusName]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.Unshare(ctx, id)
}
