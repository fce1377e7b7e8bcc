// Package otel provides OpenTelemetry instrumentation utilities for the sync engine.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of spans created by the engine
const TracerName = "github.com/civicportal/portal-sync"

// Common attribute keys for business context used across the engine.
const (
	AttrTenantKey   = attribute.Key("tenant.key")
	AttrFolderName  = attribute.Key("folder.name")
	AttrSourceType  = attribute.Key("source.type")
	AttrExternalID  = attribute.Key("item.external_id")
	AttrChangeKind  = attribute.Key("change.kind")
	AttrResultCount = attribute.Key("result.count")
	AttrTenantCount = attribute.Key("tenant.count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
// The status description stays generic so provider responses and SQL never land in
// the span status; the full error is still attached as a span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
