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

package otel

import (
	"context"
	"testing"

	"firerest.dev/internal/gcerr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type testTransport struct{}

func TestProviderName(t *testing.T) {
	testCases := []struct {
		name      string
		transport any
		want      string
	}{
		{"nil", nil, ""},
		{"struct", testTransport{}, "firerest.dev/internal/otel"},
		{"pointer", &testTransport{}, "firerest.dev/internal/otel"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ProviderName(tc.transport)
			if got != tc.want {
				t.Errorf("ProviderName(%#v) = %q, want %q", tc.transport, got, tc.want)
			}
		})
	}
}

func TestTracer(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	testProvider := trace.NewTracerProvider(
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithSpanProcessor(spanRecorder),
	)
	origProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(testProvider)
	defer otel.SetTracerProvider(origProvider)

	tracer := NewTracer("test", "test-provider")

	_, span := tracer.Start(context.Background(), "Commit")
	tracer.End(span, nil)
	spans := spanRecorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if got, want := spans[0].Name(), "test.Commit"; got != want {
		t.Errorf("span name: got %q, want %q", got, want)
	}
	if got := spans[0].Status().Code; got != codes.Ok {
		t.Errorf("status: got %v, want Ok", got)
	}

	spanRecorder.Reset()
	_, span = tracer.Start(context.Background(), "Commit")
	tracer.End(span, gcerr.Newf(gcerr.FailedPrecondition, nil, "stale"))
	spans = spanRecorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if got := spans[0].Status().Code; got != codes.Error {
		t.Errorf("status: got %v, want Error", got)
	}
	var gotStatus string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == StatusKey {
			gotStatus = kv.Value.AsString()
		}
	}
	if gotStatus != "FailedPrecondition" {
		t.Errorf("status attribute: got %q, want %q", gotStatus, "FailedPrecondition")
	}
}
