// Package aio implements a Backing Device Registry backend over local flat
// files, addressed by "aio://<path>" URIs — the local-disk analogue of a
// SPDK aio bdev.
package aio

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/marmos91/nexus/pkg/registry"
)

const defaultBlockLen uint32 = 512

// Device wraps a local file opened on the path given by an "aio://" URI.
// block_len defaults to 512 unless the URI carries a "?block_size=" query
// parameter; num_blocks is derived from the file's size.
type Device struct {
	mu        sync.RWMutex
	name      string
	path      string
	file      *os.File
	blockLen  uint32
	numBlocks uint64
	alignment uint32
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
	return d.file.ReadAt(p, off)
}

func (d *Device) WriteAt(_ context.Context, off int64, p []byte) (int, error) {
	return d.file.WriteAt(p, off)
}

// Reset is a logical discard hint. Real aio bdevs do not discard on reset,
// so this is a no-op that always succeeds.
func (d *Device) Reset(_ context.Context) error {
	return nil
}

// Close releases the underlying file descriptor. Idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// parseURI extracts the local path and optional block_size query parameter
// from an "aio://<path>" URI.
func parseURI(uri string) (path string, blockLen uint32, err error) {
	rest, ok := strings.CutPrefix(uri, "aio://")
	if !ok {
		return "", 0, fmt.Errorf("aio: uri %q missing aio:// scheme", uri)
	}
	blockLen = defaultBlockLen
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		query := rest[idx+1:]
		rest = rest[:idx]
		values, err := url.ParseQuery(query)
		if err != nil {
			return "", 0, fmt.Errorf("aio: uri %q: %w", uri, err)
		}
		if bs := values.Get("block_size"); bs != "" {
			n, err := strconv.ParseUint(bs, 10, 32)
			if err != nil {
				return "", 0, fmt.Errorf("aio: uri %q: invalid block_size: %w", uri, err)
			}
			blockLen = uint32(n)
		}
	}
	if rest == "" {
		return "", 0, fmt.Errorf("aio: uri %q has empty path", uri)
	}
	return rest, blockLen, nil
}

// Registry resolves "aio://" URIs to local-file-backed devices. Create opens
// (creating if absent) the file at the URI's path; Destroy removes it from
// the registry and unlinks the file; Lookup is a synchronous map read.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by backing name (the uri)
}

// NewRegistry constructs an empty local-file-backed registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]*Device)}
}

func (r *Registry) Create(_ context.Context, uri string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[uri]; ok {
		return uri, nil
	}

	path, blockLen, err := parseURI(uri)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return "", fmt.Errorf("aio: open %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return "", fmt.Errorf("aio: stat %q: %w", path, err)
	}

	r.devices[uri] = &Device{
		name:      uri,
		path:      path,
		file:      f,
		blockLen:  blockLen,
		numBlocks: uint64(info.Size()) / uint64(blockLen),
		alignment: blockLen,
	}
	return uri, nil
}

func (r *Registry) Destroy(_ context.Context, uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[uri]
	if !ok {
		return nil
	}
	delete(r.devices, uri)
	if err := d.Close(); err != nil {
		return err
	}
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("aio: remove %q: %w", d.path, err)
	}
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
