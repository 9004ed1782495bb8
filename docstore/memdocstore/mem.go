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

// Package memdocstore provides an in-process, in-memory document database
// that implements the transport of the docstore package. It is suitable for
// local development and testing.
//
// Commits are atomic and check write preconditions the way the service does,
// field transforms are applied when a commit is applied, and structured
// queries are evaluated in memory.
//
// # URLs
//
// For docstore.OpenDatabase, memdocstore registers for the scheme "mem".
// To customize the URL opener, or for more details on the URL format,
// see URLOpener.
package memdocstore // import "firerest.dev/docstore/memdocstore"

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/docstore"
	"firerest.dev/docstore/driver"
	"firerest.dev/internal/gcerr"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	tspb "google.golang.org/protobuf/types/known/timestamppb"
)

// Endpoint is the base URL memdocstore reports.
const Endpoint = "mem://"

// Options are optional arguments to New.
type Options struct {
	// Clock supplies the times of commits and reads. Times are forced to
	// increase, so that every commit has its own update time.
	// If nil, time.Now is used.
	Clock func() time.Time

	// Logger receives debug logs of requests. If nil, nothing is logged.
	Logger *zap.Logger
}

// Transport is an in-memory document database.
type Transport struct {
	clock  func() time.Time
	logger *zap.Logger

	mu   sync.Mutex
	docs map[string]*pb.Document // by resource name
	last time.Time
}

var _ driver.Transport = (*Transport)(nil)

// New returns an empty in-memory database.
func New(opts *Options) *Transport {
	if opts == nil {
		opts = &Options{}
	}
	t := &Transport{
		clock:  opts.Clock,
		logger: opts.Logger,
		docs:   map[string]*pb.Document{},
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

// OpenDatabase returns a docstore.Database backed by a new in-memory store.
func OpenDatabase(project, database string, opts *Options, dbOpts *docstore.Options) (*docstore.Database, error) {
	return docstore.NewDatabase(New(opts), project, database, dbOpts)
}

// Endpoint implements driver.Transport.
func (t *Transport) Endpoint() string { return Endpoint }

// Close implements driver.Transport.
func (t *Transport) Close() error { return nil }

// now returns the next timestamp. t.mu must be held.
func (t *Transport) now() time.Time {
	n := t.clock().UTC().Truncate(time.Microsecond)
	if !n.After(t.last) {
		n = t.last.Add(time.Microsecond)
	}
	t.last = n
	return n
}

// Documents returns copies of the stored documents, sorted by name.
func (t *Transport) Documents() []*pb.Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	var docs []*pb.Document
	for _, d := range t.docs {
		docs = append(docs, proto.Clone(d).(*pb.Document))
	}
	sort.Slice(docs, func(i, j int) bool { return driver.CompareNames(docs[i].Name, docs[j].Name) < 0 })
	return docs
}

// BatchGetDocuments implements driver.Transport.
func (t *Transport) BatchGetDocuments(ctx context.Context, req *pb.BatchGetDocumentsRequest) ([]*pb.BatchGetDocumentsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var fps [][]string
	if req.Mask != nil {
		for _, p := range req.Mask.FieldPaths {
			fp, err := driver.ParseFieldPath(p)
			if err != nil {
				return nil, err
			}
			fps = append(fps, fp)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	readTime := tspb.New(t.now())
	resps := make([]*pb.BatchGetDocumentsResponse, 0, len(req.Documents))
	for _, name := range req.Documents {
		if !strings.HasPrefix(name, req.Database+"/documents/") {
			return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: document %q is not in database %q", name, req.Database)
		}
		r := &pb.BatchGetDocumentsResponse{ReadTime: readTime}
		if d, ok := t.docs[name]; ok {
			d = proto.Clone(d).(*pb.Document)
			if req.Mask != nil {
				d.Fields = project(d.Fields, fps)
			}
			r.Result = &pb.BatchGetDocumentsResponse_Found{Found: d}
		} else {
			r.Result = &pb.BatchGetDocumentsResponse_Missing{Missing: name}
		}
		resps = append(resps, r)
	}
	t.logger.Debug("batchGet", zap.Int("documents", len(req.Documents)))
	return resps, nil
}

// project returns the parts of fields named by fps.
func project(fields map[string]*pb.Value, fps [][]string) map[string]*pb.Value {
	out := map[string]*pb.Value{}
	for _, fp := range fps {
		if v, ok := driver.GetValueAtFieldPath(fields, fp); ok {
			_ = driver.SetValueAtFieldPath(out, fp, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Commit implements driver.Transport. The writes are applied in order to a
// staged copy of the store, which replaces the store only if every write
// succeeds.
func (t *Transport) Commit(ctx context.Context, req *pb.CommitRequest) (*pb.CommitResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	staged := make(map[string]*pb.Document, len(t.docs))
	for k, v := range t.docs {
		staged[k] = v
	}
	res := &pb.CommitResponse{CommitTime: tspb.New(now)}
	for i, w := range req.Writes {
		wr, err := applyWrite(staged, req.Database, w, now)
		if err != nil {
			t.logger.Debug("commit rejected", zap.Int("write", i), zap.Error(err))
			return nil, err
		}
		res.WriteResults = append(res.WriteResults, wr)
	}
	t.docs = staged
	t.logger.Debug("commit", zap.Int("writes", len(req.Writes)), zap.Time("commitTime", now))
	return res, nil
}

func applyWrite(docs map[string]*pb.Document, database string, w *pb.Write, now time.Time) (*pb.WriteResult, error) {
	var name string
	switch op := w.Operation.(type) {
	case *pb.Write_Update:
		name = op.Update.GetName()
	case *pb.Write_Delete:
		name = op.Delete
	case *pb.Write_Transform:
		name = op.Transform.GetDocument()
	default:
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: write with no operation")
	}
	if !strings.HasPrefix(name, database+"/documents/") {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: document %q is not in database %q", name, database)
	}
	cur := docs[name]
	if err := checkPrecondition(name, cur, w.CurrentDocument); err != nil {
		return nil, err
	}
	ts := tspb.New(now)
	wr := &pb.WriteResult{UpdateTime: ts}
	switch op := w.Operation.(type) {
	case *pb.Write_Delete:
		delete(docs, name)
		return wr, nil
	case *pb.Write_Update:
		next := &pb.Document{Name: name, UpdateTime: ts, CreateTime: ts}
		if cur != nil {
			next.CreateTime = cur.CreateTime
		}
		if w.UpdateMask == nil {
			next.Fields = cloneFields(op.Update.Fields)
		} else {
			next.Fields = cloneFields(cur.GetFields())
			for _, p := range w.UpdateMask.FieldPaths {
				fp, err := driver.ParseFieldPath(p)
				if err != nil {
					return nil, err
				}
				if v, ok := driver.GetValueAtFieldPath(op.Update.Fields, fp); ok {
					if err := driver.SetValueAtFieldPath(next.Fields, fp, proto.Clone(v).(*pb.Value)); err != nil {
						return nil, err
					}
				} else {
					driver.DeleteValueAtFieldPath(next.Fields, fp)
				}
			}
		}
		docs[name] = next
	case *pb.Write_Transform:
		next := &pb.Document{Name: name, UpdateTime: ts, CreateTime: ts}
		if cur != nil {
			next.CreateTime = cur.CreateTime
		}
		next.Fields = cloneFields(cur.GetFields())
		for _, ft := range op.Transform.FieldTransforms {
			r, err := applyTransform(next.Fields, ft, ts)
			if err != nil {
				return nil, err
			}
			wr.TransformResults = append(wr.TransformResults, r)
		}
		docs[name] = next
	}
	return wr, nil
}

func cloneFields(fields map[string]*pb.Value) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(fields))
	for k, v := range fields {
		out[k] = proto.Clone(v).(*pb.Value)
	}
	return out
}

func checkPrecondition(name string, cur *pb.Document, p *pb.Precondition) error {
	if p == nil {
		return nil
	}
	switch c := p.ConditionType.(type) {
	case *pb.Precondition_Exists:
		if c.Exists && cur == nil {
			return gcerr.Newf(gcerr.NotFound, nil, "memdocstore: no document to update: %s", name)
		}
		if !c.Exists && cur != nil {
			return gcerr.Newf(gcerr.AlreadyExists, nil, "memdocstore: document already exists: %s", name)
		}
	case *pb.Precondition_UpdateTime:
		if cur == nil || !proto.Equal(cur.UpdateTime, c.UpdateTime) {
			return gcerr.Newf(gcerr.FailedPrecondition, nil, "memdocstore: document %s was changed since %v", name, c.UpdateTime.AsTime())
		}
	}
	return nil
}

func applyTransform(fields map[string]*pb.Value, ft *pb.DocumentTransform_FieldTransform, now *tspb.Timestamp) (*pb.Value, error) {
	fp, err := driver.ParseFieldPath(ft.FieldPath)
	if err != nil {
		return nil, err
	}
	cur, _ := driver.GetValueAtFieldPath(fields, fp)
	var next *pb.Value
	switch tt := ft.TransformType.(type) {
	case *pb.DocumentTransform_FieldTransform_SetToServerValue:
		if tt.SetToServerValue != pb.DocumentTransform_FieldTransform_REQUEST_TIME {
			return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: bad server value %v", tt.SetToServerValue)
		}
		next = &pb.Value{ValueType: &pb.Value_TimestampValue{TimestampValue: now}}
	case *pb.DocumentTransform_FieldTransform_Increment:
		next = add(cur, tt.Increment)
	case *pb.DocumentTransform_FieldTransform_Maximum:
		next = tt.Maximum
		if isNumber(cur) && driver.CompareValues(cur, tt.Maximum) >= 0 {
			next = cur
		}
	case *pb.DocumentTransform_FieldTransform_Minimum:
		next = tt.Minimum
		if isNumber(cur) && driver.CompareValues(cur, tt.Minimum) <= 0 {
			next = cur
		}
	case *pb.DocumentTransform_FieldTransform_AppendMissingElements:
		vals := cur.GetArrayValue().GetValues()
		vals = vals[:len(vals):len(vals)]
		for _, v := range tt.AppendMissingElements.GetValues() {
			if !containsValue(vals, v) {
				vals = append(vals, v)
			}
		}
		next = &pb.Value{ValueType: &pb.Value_ArrayValue{ArrayValue: &pb.ArrayValue{Values: vals}}}
	case *pb.DocumentTransform_FieldTransform_RemoveAllFromArray:
		var vals []*pb.Value
		for _, v := range cur.GetArrayValue().GetValues() {
			if !containsValue(tt.RemoveAllFromArray.GetValues(), v) {
				vals = append(vals, v)
			}
		}
		next = &pb.Value{ValueType: &pb.Value_ArrayValue{ArrayValue: &pb.ArrayValue{Values: vals}}}
	default:
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: transform of %q has no type", ft.FieldPath)
	}
	if next == nil || !isValid(next, ft) {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: bad operand for transform of %q", ft.FieldPath)
	}
	next = proto.Clone(next).(*pb.Value)
	if err := driver.SetValueAtFieldPath(fields, fp, next); err != nil {
		return nil, err
	}
	return next, nil
}

// isValid rejects numeric transforms whose result is not a number.
func isValid(v *pb.Value, ft *pb.DocumentTransform_FieldTransform) bool {
	switch ft.TransformType.(type) {
	case *pb.DocumentTransform_FieldTransform_Increment,
		*pb.DocumentTransform_FieldTransform_Maximum,
		*pb.DocumentTransform_FieldTransform_Minimum:
		return isNumber(v)
	}
	return true
}

func isNumber(v *pb.Value) bool {
	switch v.GetValueType().(type) {
	case *pb.Value_IntegerValue, *pb.Value_DoubleValue:
		return true
	}
	return false
}

// add returns cur+n. A missing or non-numeric cur counts as absent and
// yields n. Integer sums are integers; any double makes a double.
func add(cur, n *pb.Value) *pb.Value {
	if !isNumber(cur) || !isNumber(n) {
		return n
	}
	ci, cInt := cur.ValueType.(*pb.Value_IntegerValue)
	ni, nInt := n.ValueType.(*pb.Value_IntegerValue)
	if cInt && nInt {
		return &pb.Value{ValueType: &pb.Value_IntegerValue{IntegerValue: ci.IntegerValue + ni.IntegerValue}}
	}
	return &pb.Value{ValueType: &pb.Value_DoubleValue{DoubleValue: asFloat(cur) + asFloat(n)}}
}

func asFloat(v *pb.Value) float64 {
	if i, ok := v.ValueType.(*pb.Value_IntegerValue); ok {
		return float64(i.IntegerValue)
	}
	return v.GetDoubleValue()
}

func containsValue(vals []*pb.Value, v *pb.Value) bool {
	for _, x := range vals {
		if proto.Equal(x, v) {
			return true
		}
	}
	return false
}
