// Package s3 implements a Backing Device Registry backend over an S3 object
// store, addressed by "s3://<bucket>/<key-prefix>" URIs. Each logical
// block-range chunk maps to one S3 object; this is intentionally the slow
// leg of a mirror set, its required_alignment reporting the chunk size so
// the Nexus's required_alignment invariant naturally reflects it.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/nexus/pkg/registry"
)

// defaultChunkSize is the size of each S3-object-backed chunk, in bytes.
// Reported as both block_len default and required_alignment.
const defaultChunkSize uint32 = 4096

// manifest describes a device's geometry; written by the first Create of a
// URI and read back by any later Create of the same URI (including from a
// fresh Registry instance), so num_blocks survives a process restart.
type manifest struct {
	BlockLen  uint32 `json:"block_len"`
	NumBlocks uint64 `json:"num_blocks"`
}

// Device is an S3-object-backed block device. Reads/writes are translated
// to GetObject/PutObject calls against fixed-size chunk objects under
// keyPrefix; num_blocks comes from the manifest object written on create.
type Device struct {
	client    *s3.Client
	name      string
	bucket    string
	keyPrefix string

	mu        sync.RWMutex
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

func (d *Device) chunkKey(chunk uint64) string {
	return fmt.Sprintf("%schunk-%020d", d.keyPrefix, chunk)
}

func (d *Device) manifestKey() string {
	return d.keyPrefix + "manifest.json"
}

// ReadAt maps the byte range [off, off+len(p)) onto the chunk object it
// falls within. Callers are expected to respect required_alignment (the
// chunk size), so every read lands within a single chunk.
func (d *Device) ReadAt(ctx context.Context, off int64, p []byte) (int, error) {
	chunkSize := int64(d.chunkSize())
	chunk := uint64(off / chunkSize)
	inChunkOff := off % chunkSize

	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.chunkKey(chunk)),
	})
	if err != nil {
		if isNotFound(err) {
			// A chunk never written reads as zeros.
			clear(p)
			return len(p), nil
		}
		return 0, fmt.Errorf("s3: get %s: %w", d.chunkKey(chunk), err)
	}
	defer out.Body.Close()

	buf, err := io.ReadAll(out.Body)
	if err != nil {
		return 0, fmt.Errorf("s3: read %s: %w", d.chunkKey(chunk), err)
	}
	if inChunkOff >= int64(len(buf)) {
		return len(p), nil
	}
	n := copy(p, buf[inChunkOff:])
	return n, nil
}

// WriteAt reads the chunk, splices in p at the in-chunk offset, and writes
// the chunk back whole — S3 objects have no partial-write primitive.
func (d *Device) WriteAt(ctx context.Context, off int64, p []byte) (int, error) {
	chunkSize := int64(d.chunkSize())
	chunk := uint64(off / chunkSize)
	inChunkOff := off % chunkSize

	buf := make([]byte, chunkSize)
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.chunkKey(chunk)),
	})
	if err == nil {
		existing, readErr := io.ReadAll(out.Body)
		out.Body.Close()
		if readErr != nil {
			return 0, fmt.Errorf("s3: read %s: %w", d.chunkKey(chunk), readErr)
		}
		copy(buf, existing)
	} else if !isNotFound(err) {
		return 0, fmt.Errorf("s3: get %s: %w", d.chunkKey(chunk), err)
	}

	n := copy(buf[inChunkOff:], p)

	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.chunkKey(chunk)),
		Body:   bytes.NewReader(buf),
	})
	if err != nil {
		return 0, fmt.Errorf("s3: put %s: %w", d.chunkKey(chunk), err)
	}
	return n, nil
}

// Reset is a logical discard; S3 has no cheaper primitive than deleting the
// chunk objects, which this intentionally does not do (a discard hint is
// not a correctness requirement).
func (d *Device) Reset(_ context.Context) error {
	return nil
}

func (d *Device) chunkSize() uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.alignment
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "StatusCode: 404")
}

// Registry resolves "s3://<bucket>/<key-prefix>" URIs to S3-backed devices.
type Registry struct {
	client *s3.Client

	mu      sync.RWMutex
	devices map[string]*Device

	chunkSize uint32
	numBlocks uint64
}

// Config configures a new S3-backed Registry.
type Config struct {
	Region         string
	Endpoint       string
	ForcePathStyle bool
	// ChunkSize is the size of each backing object; also reported as the
	// device's required_alignment. Defaults to 4096.
	ChunkSize uint32
	// DefaultNumBlocks is the geometry assumed for a newly created device
	// whose manifest does not yet exist.
	DefaultNumBlocks uint64
}

// NewRegistry builds an S3 client from the ambient AWS config chain
// (environment, shared config, IAM role) and wraps it as a Registry.
func NewRegistry(ctx context.Context, cfg Config) (*Registry, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}

	return &Registry{
		client:    s3.NewFromConfig(awsCfg, s3Opts...),
		devices:   make(map[string]*Device),
		chunkSize: chunkSize,
		numBlocks: cfg.DefaultNumBlocks,
	}, nil
}

func parseURI(uri string) (bucket, keyPrefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("s3: uri %q missing s3:// scheme", uri)
	}
	parts := strings.SplitN(rest, "/", 2)
	bucket = parts[0]
	if bucket == "" {
		return "", "", fmt.Errorf("s3: uri %q missing bucket", uri)
	}
	if len(parts) == 2 && parts[1] != "" {
		keyPrefix = strings.TrimSuffix(parts[1], "/") + "/"
	}
	return bucket, keyPrefix, nil
}

func (r *Registry) Create(ctx context.Context, uri string) (string, error) {
	r.mu.Lock()
	if _, ok := r.devices[uri]; ok {
		r.mu.Unlock()
		return uri, nil
	}
	r.mu.Unlock()

	bucket, keyPrefix, err := parseURI(uri)
	if err != nil {
		return "", err
	}

	d := &Device{
		client:    r.client,
		name:      uri,
		bucket:    bucket,
		keyPrefix: keyPrefix,
		blockLen:  r.chunkSize,
		alignment: r.chunkSize,
	}

	manifestKey := d.manifestKey()
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(manifestKey)})
	if err == nil {
		defer out.Body.Close()
		var m manifest
		if decErr := json.NewDecoder(out.Body).Decode(&m); decErr != nil {
			return "", fmt.Errorf("s3: decode manifest %s: %w", manifestKey, decErr)
		}
		d.blockLen = m.BlockLen
		d.alignment = m.BlockLen
		d.numBlocks = m.NumBlocks
	} else if isNotFound(err) {
		d.numBlocks = r.numBlocks
		m := manifest{BlockLen: d.blockLen, NumBlocks: d.numBlocks}
		body, marshalErr := json.Marshal(m)
		if marshalErr != nil {
			return "", fmt.Errorf("s3: encode manifest: %w", marshalErr)
		}
		if _, putErr := r.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket), Key: aws.String(manifestKey), Body: bytes.NewReader(body),
		}); putErr != nil {
			return "", fmt.Errorf("s3: put manifest %s: %w", manifestKey, putErr)
		}
	} else {
		return "", fmt.Errorf("s3: get manifest %s: %w", manifestKey, err)
	}

	r.mu.Lock()
	r.devices[uri] = d
	r.mu.Unlock()
	return uri, nil
}

func (r *Registry) Destroy(ctx context.Context, uri string) error {
	r.mu.Lock()
	d, ok := r.devices[uri]
	delete(r.devices, uri)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	var chunk uint64
	for chunk = 0; chunk < d.numBlocks; chunk++ {
		if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(d.bucket), Key: aws.String(d.chunkKey(chunk)),
		}); err != nil && !isNotFound(err) {
			return fmt.Errorf("s3: delete %s: %w", d.chunkKey(chunk), err)
		}
	}
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(d.manifestKey())})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3: delete manifest %s: %w", d.manifestKey(), err)
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
