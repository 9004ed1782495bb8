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

package gcpfirestore

import (
	"context"
	"io"
	"os"

	vkit "cloud.google.com/go/firestore/apiv1"
	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/docstore/driver"
	"firerest.dev/gcp"
	"firerest.dev/internal/gcerr"
	"firerest.dev/internal/useragent"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// DialGRPC returns a gRPC client to use with Firestore and a clean-up function
// to close the client after use.
// If the FIRESTORE_EMULATOR_HOST environment variable is set the client
// connects to the emulator by overriding the default endpoint.
func DialGRPC(ctx context.Context, ts gcp.TokenSource) (*vkit.Client, func(), error) {
	opts := []option.ClientOption{
		useragent.ClientOption("docstore"),
	}
	var conn *grpc.ClientConn
	if host := os.Getenv(EmulatorHostEnv); host != "" {
		var err error
		conn, err = grpc.NewClient(host, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithGRPCConn(conn),
		)
	} else {
		opts = append(opts, option.WithTokenSource(ts))
	}
	c, err := vkit.NewClient(ctx, opts...)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, nil, err
	}
	return c, func() { c.Close() }, nil
}

// GRPCTransport is a driver.Transport that calls the Firestore gRPC service.
// Streamed responses are collected before they are returned.
type GRPCTransport struct {
	client   *vkit.Client
	endpoint string
	logger   *zap.Logger
}

var _ driver.Transport = (*GRPCTransport)(nil)

// NewGRPC returns a GRPCTransport that uses client. opts.Endpoint is only
// used to form the URLs reported by Endpoint.
func NewGRPC(client *vkit.Client, opts *Options) *GRPCTransport {
	if opts == nil {
		opts = &Options{}
	}
	t := &GRPCTransport{client: client, endpoint: opts.Endpoint, logger: opts.Logger}
	if t.endpoint == "" {
		t.endpoint = DefaultEndpoint
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

// Endpoint implements driver.Transport.
func (t *GRPCTransport) Endpoint() string { return t.endpoint }

// Close implements driver.Transport. It closes the client.
func (t *GRPCTransport) Close() error { return t.client.Close() }

// BatchGetDocuments implements driver.Transport.
func (t *GRPCTransport) BatchGetDocuments(ctx context.Context, req *pb.BatchGetDocumentsRequest) ([]*pb.BatchGetDocumentsResponse, error) {
	sc, err := t.client.BatchGetDocuments(withResourceHeader(ctx, req.Database), req)
	if err != nil {
		return nil, grpcError(err)
	}
	var resps []*pb.BatchGetDocumentsResponse
	for {
		r, err := sc.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, grpcError(err)
		}
		resps = append(resps, r)
	}
	t.logger.Debug("BatchGetDocuments", zap.Int("documents", len(req.Documents)), zap.Int("responses", len(resps)))
	return resps, nil
}

// RunQuery implements driver.Transport.
func (t *GRPCTransport) RunQuery(ctx context.Context, req *pb.RunQueryRequest) ([]*pb.RunQueryResponse, error) {
	sc, err := t.client.RunQuery(withResourceHeader(ctx, req.Parent), req)
	if err != nil {
		return nil, grpcError(err)
	}
	var resps []*pb.RunQueryResponse
	for {
		r, err := sc.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, grpcError(err)
		}
		resps = append(resps, r)
	}
	t.logger.Debug("RunQuery", zap.String("parent", req.Parent), zap.Int("responses", len(resps)))
	return resps, nil
}

// Commit implements driver.Transport.
func (t *GRPCTransport) Commit(ctx context.Context, req *pb.CommitRequest) (*pb.CommitResponse, error) {
	res, err := t.client.Commit(withResourceHeader(ctx, req.Database), req)
	if err != nil {
		return nil, grpcError(err)
	}
	if len(res.WriteResults) != len(req.Writes) {
		return nil, gcerr.Newf(gcerr.Internal, nil, "gcpfirestore: got %d write results for %d writes", len(res.WriteResults), len(req.Writes))
	}
	t.logger.Debug("Commit", zap.Int("writes", len(req.Writes)))
	return res, nil
}

// grpcError gives err the code of its gRPC status. Context errors are
// returned unchanged.
func grpcError(err error) error {
	if gcerr.DoNotWrap(err) {
		return err
	}
	s, ok := status.FromError(err)
	if !ok {
		return gcerr.Newf(gcerr.Unknown, err, "gcpfirestore")
	}
	return gcerr.New(gcerr.GRPCCode(s.Code()), err, 1, "gcpfirestore: "+s.Message())
}

// withResourceHeader returns a new context that includes resource in a special header.
// Firestore uses the resource header for routing.
func withResourceHeader(ctx context.Context, resource string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md[resourcePrefixHeader] = []string{databaseOf(resource)}
	return metadata.NewOutgoingContext(ctx, md)
}
