// Package nvmf implements an in-memory simulated NVMe-oF backing device
// registry, addressed by "nvmf://" URIs. It exists for tests and local
// development that need Registry semantics without a real NVMe-oF fabric.
package nvmf

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/nexus/pkg/registry"
)

// Device is an in-memory block device: a flat byte slice addressed as
// fixed-size blocks, with a settable block length and alignment so tests
// can exercise geometry validation.
type Device struct {
	mu        sync.RWMutex
	name      string
	blockLen  uint32
	numBlocks uint64
	alignment uint32
	data      []byte
}

var _ registry.Handle = (*Device)(nil)

func (d *Device) Name() string { return d.name }

func (d *Device) BlockLen() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.blockLen
}

func (d *Device) NumBlocks() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.numBlocks
}

func (d *Device) Alignment() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.alignment
}

func (d *Device) SetBlockLen(v uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blockLen = v
}

func (d *Device) SetAlignment(v uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alignment = v
}

func (d *Device) ReadAt(_ context.Context, off int64, p []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if off < 0 || int(off) > len(d.data) {
		return 0, fmt.Errorf("nvmf: %s: read offset %d out of range", d.name, off)
	}
	n := copy(p, d.data[off:])
	return n, nil
}

func (d *Device) WriteAt(_ context.Context, off int64, p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off < 0 || int(off) > len(d.data) {
		return 0, fmt.Errorf("nvmf: %s: write offset %d out of range", d.name, off)
	}
	n := copy(d.data[off:], p)
	return n, nil
}

func (d *Device) Reset(_ context.Context) error {
	return nil
}

// Registry is an in-memory Registry implementation: Create fabricates a new
// Device for a URI not seen before (idempotent), Destroy forgets it, Lookup
// resolves by backing name.
type Registry struct {
	mu            sync.RWMutex
	devices       map[string]*Device // keyed by backing name
	uriToName     map[string]string
	defaultBlocks uint64
	defaultBlock  uint32
	defaultAlign  uint32
}

// NewRegistry constructs an in-memory registry. Every device it creates
// starts with the given default geometry; tests adjust individual devices
// via Device's setters or by pre-seeding with Seed.
func NewRegistry(defaultBlockLen uint32, defaultNumBlocks uint64, defaultAlignment uint32) *Registry {
	return &Registry{
		devices:       make(map[string]*Device),
		uriToName:     make(map[string]string),
		defaultBlocks: defaultNumBlocks,
		defaultBlock:  defaultBlockLen,
		defaultAlign:  defaultAlignment,
	}
}

// Seed pre-registers a device with explicit geometry under uri, bypassing
// the registry's defaults. Used by tests constructing mixed-geometry
// scenarios.
func (r *Registry) Seed(uri string, blockLen uint32, numBlocks uint64, alignment uint32) *Device {
	d := &Device{
		name:      uri,
		blockLen:  blockLen,
		numBlocks: numBlocks,
		alignment: alignment,
		data:      make([]byte, blockLen*uint32(min64(numBlocks, 4))),
	}
	r.mu.Lock()
	r.devices[uri] = d
	r.uriToName[uri] = uri
	r.mu.Unlock()
	return d
}

func (r *Registry) Create(_ context.Context, uri string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.uriToName[uri]; ok {
		return name, nil
	}
	d := &Device{
		name:      uri,
		blockLen:  r.defaultBlock,
		numBlocks: r.defaultBlocks,
		alignment: r.defaultAlign,
		data:      make([]byte, r.defaultBlock*uint32(min64(r.defaultBlocks, 4))),
	}
	r.devices[uri] = d
	r.uriToName[uri] = uri
	return uri, nil
}

func (r *Registry) Destroy(_ context.Context, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.uriToName[uri]
	if !ok {
		return nil
	}
	delete(r.devices, name)
	delete(r.uriToName, uri)
	return nil
}

func (r *Registry) Lookup(name string) registry.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[name]
	if !ok {
		return nil
	}
	return d
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
