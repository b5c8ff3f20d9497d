package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for Nexus Controller and Backing Device Registry spans.
const (
	AttrNexusName = "nexus.name"
	AttrChildName = "nexus.child"
	AttrOperation = "nexus.operation"
	AttrBackend   = "nexus.backend" // aio, nvmf, s3
	AttrState     = "nexus.state"   // open, degraded, faulted, ...
	AttrBlockLen  = "nexus.block_len"
	AttrNumBlocks = "nexus.num_blocks"
	AttrAlignment = "nexus.alignment"
)

// Span names for Nexus Controller operations.
const (
	SpanControllerOp  = "controller.op" // generic reactor job span, tagged with AttrOperation
	SpanGeometryCheck = "controller.geometry_check"
	SpanLabelProbe    = "registry.label_probe"
	SpanReconfigure   = "bus.reconfigure"
)

// NexusName returns an attribute for the Nexus a span concerns.
func NexusName(name string) attribute.KeyValue {
	return attribute.String(AttrNexusName, name)
}

// ChildName returns an attribute for the child URI a span concerns.
func ChildName(uri string) attribute.KeyValue {
	return attribute.String(AttrChildName, uri)
}

// Operation returns an attribute for the Controller operation name.
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Backend returns an attribute for the registry backend serving a child.
func Backend(name string) attribute.KeyValue {
	return attribute.String(AttrBackend, name)
}

// State returns an attribute for a Nexus or child lifecycle state.
func State(state string) attribute.KeyValue {
	return attribute.String(AttrState, state)
}

// BlockLen returns an attribute for a block size in bytes.
func BlockLen(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrBlockLen, int64(n))
}

// NumBlocks returns an attribute for a reported block count.
func NumBlocks(n uint64) attribute.KeyValue {
	return attribute.Int64(AttrNumBlocks, int64(n))
}

// Alignment returns an attribute for a required I/O alignment in bytes.
func Alignment(n uint32) attribute.KeyValue {
	return attribute.Int64(AttrAlignment, int64(n))
}

// StartControllerSpan starts a span for a Nexus Controller reactor job,
// tagging it with the operation and target Nexus name.
func StartControllerSpan(ctx context.Context, op, nexusName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Operation(op), NexusName(nexusName)}, attrs...)
	return StartSpan(ctx, SpanControllerOp, trace.WithAttributes(allAttrs...))
}

// StartLabelProbeSpan starts a span for a Backing Device Registry label
// probe against a single child.
func StartLabelProbeSpan(ctx context.Context, childURI string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{ChildName(childURI)}, attrs...)
	return StartSpan(ctx, SpanLabelProbe, trace.WithAttributes(allAttrs...))
}
