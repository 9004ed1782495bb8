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

// Package driver defines the wire-level pieces shared by the docstore package
// and its transports: the typed-value codec, field paths and masks, value
// comparison, and the Transport interface that carries requests to the
// document service.
package driver // import "firerest.dev/docstore/driver"

import (
	"context"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
)

// A Transport carries requests to the document service. It owns
// authentication and network behavior, including any network-level retry;
// callers above it never retry transport failures.
//
// Errors returned for service failures should carry a gcerrors code (see
// gcerr.StatusCode); callers use NotFound and FailedPrecondition to detect
// transaction conflicts.
type Transport interface {
	// Endpoint returns the base URL that resource names are appended to when
	// forming request URLs, for example "https://firestore.googleapis.com/v1".
	Endpoint() string

	// BatchGetDocuments reads the documents named in req. The response
	// contains one entry per requested document, each either found or missing.
	BatchGetDocuments(ctx context.Context, req *pb.BatchGetDocumentsRequest) ([]*pb.BatchGetDocumentsResponse, error)

	// RunQuery runs a structured query. Responses are in result order; some
	// responses carry no document and only report progress.
	RunQuery(ctx context.Context, req *pb.RunQueryRequest) ([]*pb.RunQueryResponse, error)

	// Commit applies all writes in req atomically.
	Commit(ctx context.Context, req *pb.CommitRequest) (*pb.CommitResponse, error)

	// Close releases any resources used by the Transport.
	Close() error
}

// A Referencer is a value that encodes as a reference to another document.
type Referencer interface {
	// ResourceName returns the full resource name of the referenced document.
	ResourceName() string
}

// A FieldTransformer is a value that is not stored as a field but describes a
// server-side transformation of the field it is assigned to.
type FieldTransformer interface {
	// FieldTransform returns the wire transform for the field at fieldPath,
	// which is in service form (see FieldPath).
	FieldTransform(fieldPath string) (*pb.DocumentTransform_FieldTransform, error)
}

// A ReferenceDecoder turns the full resource name held in a reference value
// into a Go value.
type ReferenceDecoder func(name string) (interface{}, error)
