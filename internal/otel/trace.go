// Copyright 2019 The Go Cloud Development Kit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package otel supports OpenTelemetry tracing for firerest packages.
package otel

import (
	"context"
	"fmt"
	"reflect"

	"firerest.dev/gcerrors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys used across firerest.
var (
	MethodKey   = attribute.Key("firerest.method")
	PackageKey  = attribute.Key("firerest.package")
	ProviderKey = attribute.Key("firerest.provider")
	StatusKey   = attribute.Key("firerest.status")
	ErrorKey    = attribute.Key("firerest.error")
)

// Tracer provides OpenTelemetry tracing for firerest packages.
type Tracer struct {
	Package  string
	Provider string
}

// ProviderName returns the name of the provider associated with the transport value.
// It is intended to be used to set Tracer.Provider.
// It actually returns the package path of the transport's type.
func ProviderName(transport any) string {
	if transport == nil {
		return ""
	}
	t := reflect.TypeOf(transport)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath()
}

// NewTracer creates a new Tracer for a package and optional provider.
func NewTracer(pkg string, provider ...string) *Tracer {
	providerName := ""
	if len(provider) > 0 && provider[0] != "" {
		providerName = provider[0]
	}
	return &Tracer{
		Package:  pkg,
		Provider: providerName,
	}
}

// Start creates and starts a new span and returns the updated context and span.
func (t *Tracer) Start(ctx context.Context, methodName string) (context.Context, trace.Span) {
	fullName := t.Package + "." + methodName
	attrs := []attribute.KeyValue{
		PackageKey.String(t.Package),
		MethodKey.String(methodName),
	}
	if t.Provider != "" {
		attrs = append(attrs, ProviderKey.String(t.Provider))
	}
	return otel.Tracer(t.Package).Start(ctx, fullName, trace.WithAttributes(attrs...))
}

// End completes a span with error information if applicable.
func (t *Tracer) End(span trace.Span, err error) {
	if err != nil {
		code := gcerrors.Code(err)
		span.SetAttributes(
			ErrorKey.String(err.Error()),
			StatusKey.String(fmt.Sprint(code)),
		)
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
