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

// Package gcpfirestore provides docstore transports for Google Cloud
// Firestore. Transport speaks the REST interface with typed-value JSON
// bodies; GRPCTransport uses the generated gRPC client.
//
// Use Dial to create a Transport authenticated with a token source, or New
// to wrap an *http.Client of your own, and pass it to docstore.NewDatabase.
// If the FIRESTORE_EMULATOR_HOST environment variable is set, Dial and
// DialGRPC connect to the emulator instead of the service.
//
// # URLs
//
// For docstore.OpenDatabase, gcpfirestore registers for the scheme
// "firestore".
// The default URL opener will create a connection using default credentials
// from the environment, as described in
// https://cloud.google.com/docs/authentication/production.
// To customize the URL opener, or for more details on the URL format,
// see URLOpener.
//
// # Errors
//
// Errors from the service carry the gcerrors code of the response's status
// and wrap the *googleapi.Error (for Transport) or the gRPC status error (for
// GRPCTransport) describing the failure.
package gcpfirestore // import "firerest.dev/docstore/gcpfirestore"

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/docstore/driver"
	"firerest.dev/gcp"
	"firerest.dev/internal/gcerr"
	"firerest.dev/internal/useragent"
	"github.com/google/wire"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// DefaultEndpoint is the base URL of the Firestore REST interface.
const DefaultEndpoint = "https://firestore.googleapis.com/v1"

// EmulatorHostEnv names the environment variable holding the host:port of a
// local Firestore emulator.
const EmulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

// Set holds Wire providers for this package.
var Set = wire.NewSet(
	Dial,
	wire.Bind(new(driver.Transport), new(*Transport)),
	wire.Struct(new(URLOpener), "Transport"),
)

// Options are optional arguments to New and NewGRPC.
type Options struct {
	// Endpoint is the base URL of requests, to which resource names are
	// appended. If empty, DefaultEndpoint is used.
	Endpoint string

	// Logger receives debug logs of each request. If nil, nothing is logged.
	Logger *zap.Logger
}

// Transport is a driver.Transport that sends requests to the Firestore REST
// interface.
type Transport struct {
	client   *http.Client
	endpoint string
	logger   *zap.Logger
}

var _ driver.Transport = (*Transport)(nil)

// New returns a Transport that sends requests with client, which must add
// any credentials the endpoint requires. A nil client means
// http.DefaultClient.
func New(client *http.Client, opts *Options) *Transport {
	if opts == nil {
		opts = &Options{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	t := &Transport{
		client:   useragent.HTTPClient(client),
		endpoint: strings.TrimSuffix(opts.Endpoint, "/"),
		logger:   opts.Logger,
	}
	if t.endpoint == "" {
		t.endpoint = DefaultEndpoint
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

// Dial returns a Transport whose requests are authorized by ts.
// If the FIRESTORE_EMULATOR_HOST environment variable is set, the Transport
// sends plain HTTP requests to the emulator with the owner token instead, and
// ts is not used.
func Dial(ctx context.Context, ts gcp.TokenSource) (*Transport, error) {
	opts := &Options{}
	if host := os.Getenv(EmulatorHostEnv); host != "" {
		opts.Endpoint = "http://" + host + "/v1"
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "owner", TokenType: "Bearer"})
	}
	client, err := gcp.NewHTTPClient(http.DefaultTransport, ts)
	if err != nil {
		return nil, err
	}
	return New(&client.Client, opts), nil
}

// Endpoint implements driver.Transport.
func (t *Transport) Endpoint() string { return t.endpoint }

// Close implements driver.Transport.
func (t *Transport) Close() error { return nil }

// BatchGetDocuments implements driver.Transport.
func (t *Transport) BatchGetDocuments(ctx context.Context, req *pb.BatchGetDocumentsRequest) ([]*pb.BatchGetDocumentsResponse, error) {
	body := proto.Clone(req).(*pb.BatchGetDocumentsRequest)
	body.Database = ""
	var resps []*pb.BatchGetDocumentsResponse
	err := t.call(ctx, req.Database+"/documents:batchGet", body, func(b []byte) error {
		r := &pb.BatchGetDocumentsResponse{}
		if err := unmarshal(b, r); err != nil {
			return err
		}
		resps = append(resps, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resps, nil
}

// RunQuery implements driver.Transport.
func (t *Transport) RunQuery(ctx context.Context, req *pb.RunQueryRequest) ([]*pb.RunQueryResponse, error) {
	body := proto.Clone(req).(*pb.RunQueryRequest)
	body.Parent = ""
	var resps []*pb.RunQueryResponse
	err := t.call(ctx, req.Parent+":runQuery", body, func(b []byte) error {
		r := &pb.RunQueryResponse{}
		if err := unmarshal(b, r); err != nil {
			return err
		}
		resps = append(resps, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resps, nil
}

// Commit implements driver.Transport.
func (t *Transport) Commit(ctx context.Context, req *pb.CommitRequest) (*pb.CommitResponse, error) {
	body := proto.Clone(req).(*pb.CommitRequest)
	body.Database = ""
	res := &pb.CommitResponse{}
	err := t.call(ctx, req.Database+"/documents:commit", body, func(b []byte) error {
		return unmarshal(b, res)
	})
	if err != nil {
		return nil, err
	}
	if len(res.WriteResults) != len(req.Writes) {
		return nil, gcerr.Newf(gcerr.Internal, nil, "gcpfirestore: got %d write results for %d writes", len(res.WriteResults), len(req.Writes))
	}
	return res, nil
}

var unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

func unmarshal(b []byte, m proto.Message) error {
	if err := unmarshalOptions.Unmarshal(b, m); err != nil {
		return gcerr.Newf(gcerr.Internal, err, "gcpfirestore: bad %T in response", m)
	}
	return nil
}

// call POSTs body to the resource path and passes each element of the JSON
// response to decode. A response that is a JSON array yields one call per
// element; any other response yields a single call.
func (t *Transport) call(ctx context.Context, path string, body proto.Message, decode func([]byte) error) error {
	reqBody, err := protojson.Marshal(body)
	if err != nil {
		return gcerr.Newf(gcerr.InvalidArgument, err, "gcpfirestore: encoding %T", body)
	}
	url := t.endpoint + "/" + path
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return gcerr.Newf(gcerr.InvalidArgument, err, "gcpfirestore: bad request URL %q", url)
	}
	hreq.Header.Set("Content-Type", "application/json")
	// Firestore routes requests by this header.
	hreq.Header.Set(resourcePrefixHeader, databaseOf(path))

	start := time.Now()
	resp, err := t.client.Do(hreq)
	if err != nil {
		t.logger.Debug("request failed", zap.String("method", hreq.Method), zap.String("url", url), zap.Error(err))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return gcerr.Newf(gcerr.Unknown, err, "gcpfirestore: POST %s", url)
	}
	defer resp.Body.Close()
	t.logger.Debug("request",
		zap.String("method", hreq.Method),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))
	if err := googleapi.CheckResponse(resp); err != nil {
		return serviceError(err)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return gcerr.Newf(gcerr.Unknown, err, "gcpfirestore: reading response of %s", url)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	if b[0] != '[' {
		return decode(b)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return gcerr.Newf(gcerr.Internal, err, "gcpfirestore: bad response array from %s", url)
	}
	for _, e := range elems {
		if err := decode(e); err != nil {
			return err
		}
	}
	return nil
}

// resourcePrefixHeader is the name of the header used to indicate
// the resource being operated on.
const resourcePrefixHeader = "google-cloud-resource-prefix"

// databaseOf returns the "projects/P/databases/D" prefix of a resource path.
func databaseOf(path string) string {
	segs := strings.SplitN(path, "/", 5)
	if len(segs) < 4 {
		return path
	}
	return strings.SplitN(strings.Join(segs[:4], "/"), ":", 2)[0]
}

// errorBody is the JSON body of a failed request. Some methods answer with
// an array holding one such object.
type errorBody struct {
	Error struct {
		Status string `json:"status"`
	} `json:"error"`
}

// serviceError converts the error from googleapi.CheckResponse into an
// *gcerr.Error whose code comes from the status in the response body, or
// from the HTTP status code if the body has none.
func serviceError(err error) error {
	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		return gcerr.Newf(gcerr.Unknown, err, "gcpfirestore")
	}
	code := gcerr.HTTPCode(apiErr.Code)
	if status := errorStatus([]byte(apiErr.Body)); status != "" {
		code = gcerr.StatusCode(status)
	}
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.Code)
	}
	return gcerr.New(code, apiErr, 1, "gcpfirestore: "+msg)
}

func errorStatus(body []byte) string {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error.Status != "" {
		return eb.Error.Status
	}
	var ebs []errorBody
	if json.Unmarshal(body, &ebs) == nil && len(ebs) > 0 {
		return ebs[0].Error.Status
	}
	return ""
}
