// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authcore Contributors

package auth

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of the spans Service starts.
const TracerName = "authcore/auth"

func defaultTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records the outcome of err on span and ends it. Only the error
// code is attached; messages and context stay in the logs.
func endSpan(span trace.Span, err error) {
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("auth.error_kind", string(kind)))
		if code := ErrorCode(err); code != "" {
			span.SetAttributes(attribute.String("auth.error_code", code))
		}
		span.SetStatus(codes.Error, string(kind))
	}
	span.End()
}
