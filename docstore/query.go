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

package docstore

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/docstore/driver"
	"firerest.dev/internal/gcerr"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DocumentID is the field path that refers to a document's identity. Use it
// in OrderBy, Where (with a *Reference value) or cursors.
const DocumentID = driver.NameField

// A Filter restricts a query to documents whose field at Path compares to
// Value with Op. Op is one of "<", "<=", ">", ">=", "==" or "contains"; the
// last matches arrays that hold Value. A nil or NaN Value is only allowed
// with "==".
type Filter struct {
	Path  string
	Op    string
	Value interface{}
}

// An Order sorts query results by the field at Path. Direction is "",
// "asc" or "ascending" for ascending order and "desc" or "descending" for
// descending order, in any case.
type Order struct {
	Path      string
	Direction string
}

var fieldOps = map[string]pb.StructuredQuery_FieldFilter_Operator{
	"<":        pb.StructuredQuery_FieldFilter_LESS_THAN,
	"<=":       pb.StructuredQuery_FieldFilter_LESS_THAN_OR_EQUAL,
	">":        pb.StructuredQuery_FieldFilter_GREATER_THAN,
	">=":       pb.StructuredQuery_FieldFilter_GREATER_THAN_OR_EQUAL,
	"==":       pb.StructuredQuery_FieldFilter_EQUAL,
	"contains": pb.StructuredQuery_FieldFilter_ARRAY_CONTAINS,
}

type order struct {
	path string
	dir  pb.StructuredQuery_Direction
}

type cursor struct {
	values []*pb.Value
	doc    *Document
	before bool
}

// A Query describes a structured query over one collection, or over every
// collection with a given ID. Each method returns a new Query and leaves the
// receiver unchanged. Arguments are checked as they are given; the first
// problem is kept and reported by Err, Encode and Run.
type Query struct {
	db             *Database
	parent         *Reference
	collectionID   string
	allDescendants bool
	selects        []string
	selectSet      bool
	filters        []*pb.StructuredQuery_Filter
	orders         []order
	start, end     *cursor
	offset         int32
	limit          *int32
	err            error
}

// Err returns the first error found while building q.
func (q Query) Err() error { return q.err }

func (q Query) fail(err error) Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

func invalid(format string, args ...interface{}) error {
	return gcerr.New(gcerr.InvalidArgument, nil, 2, "docstore: "+fmt.Sprintf(format, args...))
}

// From sets the collection to query. With allDescendants, every collection
// with the same ID below the parent of ref is queried too.
func (q Query) From(ref *Reference, allDescendants bool) Query {
	if ref == nil || !ref.IsCollection() {
		return q.fail(invalid("query source must be a collection reference"))
	}
	parent, _ := ref.Parent()
	q.db = ref.db
	q.parent = parent
	q.collectionID = ref.ID()
	q.allDescendants = allDescendants
	return q
}

// Select restricts the fields of the documents returned. Select with no
// paths returns documents with no fields.
func (q Query) Select(paths ...string) Query {
	sel := make([]string, 0, len(paths))
	for _, p := range paths {
		fp, err := driver.ParseFieldPath(p)
		if err != nil {
			return q.fail(err)
		}
		sel = append(sel, driver.FieldPath(fp))
	}
	q.selects = sel
	q.selectSet = true
	return q
}

// Where adds filters. All filters of a query must hold.
func (q Query) Where(filters ...Filter) Query {
	compiled := q.filters[:len(q.filters):len(q.filters)]
	for _, f := range filters {
		pf, err := compileFilter(f)
		if err != nil {
			return q.fail(err)
		}
		compiled = append(compiled, pf)
	}
	q.filters = compiled
	return q
}

func compileFilter(f Filter) (*pb.StructuredQuery_Filter, error) {
	fp, err := driver.ParseFieldPath(f.Path)
	if err != nil {
		return nil, err
	}
	field := &pb.StructuredQuery_FieldReference{FieldPath: driver.FieldPath(fp)}
	op, ok := fieldOps[f.Op]
	if !ok {
		return nil, invalid("bad filter operator %q", f.Op)
	}
	var unary pb.StructuredQuery_UnaryFilter_Operator
	switch {
	case isNilValue(f.Value):
		unary = pb.StructuredQuery_UnaryFilter_IS_NULL
	case isNaN(f.Value):
		unary = pb.StructuredQuery_UnaryFilter_IS_NAN
	}
	if unary != pb.StructuredQuery_UnaryFilter_OPERATOR_UNSPECIFIED {
		if f.Op != "==" {
			return nil, invalid("filter on %q: null and NaN may only be compared with ==", f.Path)
		}
		return &pb.StructuredQuery_Filter{FilterType: &pb.StructuredQuery_Filter_UnaryFilter{
			UnaryFilter: &pb.StructuredQuery_UnaryFilter{
				Op:          unary,
				OperandType: &pb.StructuredQuery_UnaryFilter_Field{Field: field},
			},
		}}, nil
	}
	v, err := driver.Encode(f.Value, nil, nil)
	if err != nil {
		return nil, err
	}
	return &pb.StructuredQuery_Filter{FilterType: &pb.StructuredQuery_Filter_FieldFilter{
		FieldFilter: &pb.StructuredQuery_FieldFilter{Field: field, Op: op, Value: v},
	}}, nil
}

func isNilValue(x interface{}) bool {
	if x == nil {
		return true
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func isNaN(x interface{}) bool {
	switch x := x.(type) {
	case float32:
		return math.IsNaN(float64(x))
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// OrderBy adds sort orders. Later orders break ties of earlier ones.
func (q Query) OrderBy(orders ...Order) Query {
	all := q.orders[:len(q.orders):len(q.orders)]
	for _, o := range orders {
		fp, err := driver.ParseFieldPath(o.Path)
		if err != nil {
			return q.fail(err)
		}
		dir, err := parseDirection(o.Direction)
		if err != nil {
			return q.fail(err)
		}
		all = append(all, order{path: driver.FieldPath(fp), dir: dir})
	}
	q.orders = all
	return q
}

func parseDirection(s string) (pb.StructuredQuery_Direction, error) {
	switch strings.ToLower(s) {
	case "", "asc", "ascending":
		return pb.StructuredQuery_ASCENDING, nil
	case "desc", "descending":
		return pb.StructuredQuery_DESCENDING, nil
	default:
		return 0, invalid("bad order direction %q", s)
	}
}

// StartAt starts results at the given position, inclusive. The position is
// either one value per order, in order, or a single *Document whose values
// for the orders are used.
func (q Query) StartAt(values ...interface{}) Query { return q.setCursor(true, true, values) }

// StartAfter is like StartAt, but excludes the position.
func (q Query) StartAfter(values ...interface{}) Query { return q.setCursor(true, false, values) }

// EndAt ends results at the given position. Its cursor is sent with
// before set, so on the wire results stop just before the position.
func (q Query) EndAt(values ...interface{}) Query { return q.setCursor(false, true, values) }

// EndAfter ends results just after the given position, inclusive.
func (q Query) EndAfter(values ...interface{}) Query { return q.setCursor(false, false, values) }

func (q Query) setCursor(start, before bool, values []interface{}) Query {
	c := &cursor{before: before}
	if len(values) == 1 {
		if d, ok := values[0].(*Document); ok {
			if d == nil {
				return q.fail(invalid("nil document cursor"))
			}
			c.doc = d
		}
	}
	if c.doc == nil {
		if len(values) == 0 {
			return q.fail(invalid("empty cursor"))
		}
		for _, v := range values {
			if _, ok := v.(*Document); ok {
				return q.fail(invalid("a document cursor must be the only cursor value"))
			}
			pv, err := driver.Encode(v, nil, nil)
			if err != nil {
				return q.fail(err)
			}
			c.values = append(c.values, pv)
		}
	}
	if start {
		q.start = c
	} else {
		q.end = c
	}
	return q
}

// Offset skips the first n results.
func (q Query) Offset(n int) Query {
	if n < 0 || n > math.MaxInt32 {
		return q.fail(invalid("bad offset %d", n))
	}
	q.offset = int32(n)
	return q
}

// Limit returns at most n results.
func (q Query) Limit(n int) Query {
	if n < 0 || n > math.MaxInt32 {
		return q.fail(invalid("bad limit %d", n))
	}
	l := int32(n)
	q.limit = &l
	return q
}

// Encode compiles q into its wire form.
func (q Query) Encode() (*pb.StructuredQuery, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.collectionID == "" {
		return nil, invalid("query has no collection")
	}
	sq := &pb.StructuredQuery{
		From: []*pb.StructuredQuery_CollectionSelector{{
			CollectionId:   q.collectionID,
			AllDescendants: q.allDescendants,
		}},
		Offset: q.offset,
	}
	if q.selectSet {
		sq.Select = &pb.StructuredQuery_Projection{Fields: []*pb.StructuredQuery_FieldReference{}}
		for _, p := range q.selects {
			sq.Select.Fields = append(sq.Select.Fields, &pb.StructuredQuery_FieldReference{FieldPath: p})
		}
	}
	switch len(q.filters) {
	case 0:
	case 1:
		sq.Where = q.filters[0]
	default:
		sq.Where = &pb.StructuredQuery_Filter{FilterType: &pb.StructuredQuery_Filter_CompositeFilter{
			CompositeFilter: &pb.StructuredQuery_CompositeFilter{
				Op:      pb.StructuredQuery_CompositeFilter_AND,
				Filters: q.filters,
			},
		}}
	}
	orders := q.orders
	if q.start != nil || q.end != nil {
		if (q.start != nil && q.start.doc != nil || q.end != nil && q.end.doc != nil) && len(orders) == 0 {
			return nil, invalid("a document cursor needs at least one order")
		}
		if len(orders) == 0 || orders[len(orders)-1].path != DocumentID {
			dir := pb.StructuredQuery_ASCENDING
			if len(orders) > 0 {
				dir = orders[len(orders)-1].dir
			}
			orders = append(orders[:len(orders):len(orders)], order{path: DocumentID, dir: dir})
		}
	}
	for _, o := range orders {
		sq.OrderBy = append(sq.OrderBy, &pb.StructuredQuery_Order{
			Field:     &pb.StructuredQuery_FieldReference{FieldPath: o.path},
			Direction: o.dir,
		})
	}
	var err error
	if sq.StartAt, err = q.start.encode(orders); err != nil {
		return nil, err
	}
	if sq.EndAt, err = q.end.encode(orders); err != nil {
		return nil, err
	}
	if q.limit != nil {
		sq.Limit = wrapperspb.Int32(*q.limit)
	}
	return sq, nil
}

func (c *cursor) encode(orders []order) (*pb.Cursor, error) {
	if c == nil {
		return nil, nil
	}
	if c.doc == nil {
		if len(c.values) > len(orders) {
			return nil, invalid("cursor has %d values but the query has %d orders", len(c.values), len(orders))
		}
		return &pb.Cursor{Values: c.values, Before: c.before}, nil
	}
	vals := make([]*pb.Value, 0, len(orders))
	for _, o := range orders {
		if o.path == DocumentID {
			vals = append(vals, &pb.Value{ValueType: &pb.Value_ReferenceValue{ReferenceValue: c.doc.Name()}})
			continue
		}
		fp, err := driver.ParseFieldPath(o.path)
		if err != nil {
			return nil, err
		}
		x, ok := driver.GetAtFieldPath(c.doc.baseline, fp)
		if !ok {
			return nil, invalid("document cursor %q has no field %q", c.doc.Path(), o.path)
		}
		v, err := driver.Encode(x, nil, nil)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return &pb.Cursor{Values: vals, Before: c.before}, nil
}

// MarshalJSON returns the request body of q: {"structuredQuery": {...}}.
func (q Query) MarshalJSON() ([]byte, error) {
	sq, err := q.Encode()
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(&pb.RunQueryRequest{
		QueryType: &pb.RunQueryRequest_StructuredQuery{StructuredQuery: sq},
	})
}

// Run runs q and returns the documents found, in the order the service
// returned them.
func (q Query) Run(ctx context.Context) (_ []*Document, err error) {
	if q.db == nil {
		return nil, q.fail(invalid("query has no collection")).err
	}
	ctx, span := q.db.tracer.Start(ctx, "Query.Run")
	defer func() { q.db.tracer.End(span, err) }()

	if err := q.db.checkClosed(); err != nil {
		return nil, err
	}
	sq, err := q.Encode()
	if err != nil {
		return nil, err
	}
	req := &pb.RunQueryRequest{
		Parent:    q.parent.Name(),
		QueryType: &pb.RunQueryRequest_StructuredQuery{StructuredQuery: sq},
	}
	resps, err := q.db.t.RunQuery(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}
	var docs []*Document
	for _, r := range resps {
		if r.Document == nil {
			continue
		}
		d, err := NewDocument(q.db, r.Document)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	q.db.logger.Debug("query run",
		zap.String("parent", req.Parent),
		zap.String("collection", q.collectionID),
		zap.Int("responses", len(resps)),
		zap.Int("documents", len(docs)))
	return docs, nil
}
