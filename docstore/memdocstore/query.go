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

package memdocstore

import (
	"context"
	"math"
	"sort"
	"strings"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/docstore/driver"
	"firerest.dev/internal/gcerr"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	tspb "google.golang.org/protobuf/types/known/timestamppb"
)

// RunQuery implements driver.Transport.
func (t *Transport) RunQuery(ctx context.Context, req *pb.RunQueryRequest) ([]*pb.RunQueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sq := req.GetStructuredQuery()
	if sq == nil {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: request has no structured query")
	}
	if len(sq.From) != 1 || sq.From[0].CollectionId == "" {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: query must select exactly one collection")
	}
	orders := sq.OrderBy
	if len(orders) == 0 || orders[len(orders)-1].GetField().GetFieldPath() != driver.NameField {
		dir := pb.StructuredQuery_ASCENDING
		if len(orders) > 0 {
			dir = orders[len(orders)-1].Direction
		}
		orders = append(orders[:len(orders):len(orders)], &pb.StructuredQuery_Order{
			Field:     &pb.StructuredQuery_FieldReference{FieldPath: driver.NameField},
			Direction: dir,
		})
	}
	for _, c := range []*pb.Cursor{sq.StartAt, sq.EndAt} {
		if c != nil && len(c.Values) > len(orders) {
			return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: cursor has more values than the query has orders")
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	readTime := tspb.New(t.now())

	var matches []*pb.Document
	for name, d := range t.docs {
		if !inCollection(name, req.Parent, sq.From[0]) {
			continue
		}
		ok, err := filterMatches(sq.Where, d)
		if err != nil {
			return nil, err
		}
		if !ok || !hasOrderFields(d, orders) {
			continue
		}
		matches = append(matches, d)
	}
	sort.Slice(matches, func(i, j int) bool {
		return compareDocs(matches[i], matches[j], orders) < 0
	})

	var results []*pb.Document
	for _, d := range matches {
		if sq.StartAt != nil && !afterStart(d, orders, sq.StartAt) {
			continue
		}
		if sq.EndAt != nil && !beforeEnd(d, orders, sq.EndAt) {
			continue
		}
		results = append(results, d)
	}

	var resps []*pb.RunQueryResponse
	if skip := int(sq.Offset); skip > 0 {
		if skip > len(results) {
			skip = len(results)
		}
		results = results[skip:]
		if skip > 0 {
			resps = append(resps, &pb.RunQueryResponse{ReadTime: readTime, SkippedResults: int32(skip)})
		}
	}
	if sq.Limit != nil && int(sq.Limit.Value) < len(results) {
		results = results[:sq.Limit.Value]
	}
	var fps [][]string
	if sq.Select != nil {
		for _, f := range sq.Select.Fields {
			if f.FieldPath == driver.NameField {
				continue
			}
			fp, err := driver.ParseFieldPath(f.FieldPath)
			if err != nil {
				return nil, err
			}
			fps = append(fps, fp)
		}
	}
	for _, d := range results {
		d = proto.Clone(d).(*pb.Document)
		if sq.Select != nil {
			d.Fields = project(d.Fields, fps)
		}
		resps = append(resps, &pb.RunQueryResponse{Document: d, ReadTime: readTime})
	}
	if len(resps) == 0 {
		resps = append(resps, &pb.RunQueryResponse{ReadTime: readTime})
	}
	t.logger.Debug("runQuery",
		zap.String("parent", req.Parent),
		zap.String("collection", sq.From[0].CollectionId),
		zap.Int("results", len(results)))
	return resps, nil
}

// inCollection reports whether the document name is in the selected
// collection below parent.
func inCollection(name, parent string, from *pb.StructuredQuery_CollectionSelector) bool {
	if !strings.HasPrefix(name, parent+"/") {
		return false
	}
	segs := strings.Split(name[len(parent)+1:], "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return false
	}
	if !from.AllDescendants && len(segs) != 2 {
		return false
	}
	return segs[len(segs)-2] == from.CollectionId
}

// field returns the value of d at the service field path p.
func field(d *pb.Document, p string) (*pb.Value, bool) {
	if p == driver.NameField {
		return &pb.Value{ValueType: &pb.Value_ReferenceValue{ReferenceValue: d.Name}}, true
	}
	fp, err := driver.ParseFieldPath(p)
	if err != nil {
		return nil, false
	}
	return driver.GetValueAtFieldPath(d.Fields, fp)
}

func hasOrderFields(d *pb.Document, orders []*pb.StructuredQuery_Order) bool {
	for _, o := range orders {
		if _, ok := field(d, o.GetField().GetFieldPath()); !ok {
			return false
		}
	}
	return true
}

func compareDocs(d1, d2 *pb.Document, orders []*pb.StructuredQuery_Order) int {
	for _, o := range orders {
		p := o.GetField().GetFieldPath()
		v1, _ := field(d1, p)
		v2, _ := field(d2, p)
		c := driver.CompareValues(v1, v2)
		if o.Direction == pb.StructuredQuery_DESCENDING {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// compareToCursor compares d's position with the cursor's, using as many
// orders as the cursor has values.
func compareToCursor(d *pb.Document, orders []*pb.StructuredQuery_Order, c *pb.Cursor) int {
	for i, cv := range c.Values {
		o := orders[i]
		p := o.GetField().GetFieldPath()
		v, _ := field(d, p)
		r := driver.CompareValues(v, cv)
		if o.Direction == pb.StructuredQuery_DESCENDING {
			r = -r
		}
		if r != 0 {
			return r
		}
	}
	return 0
}

// afterStart reports whether d is at or after the start cursor. A cursor
// with before set is positioned just before its values, so documents equal
// to them are included.
func afterStart(d *pb.Document, orders []*pb.StructuredQuery_Order, c *pb.Cursor) bool {
	r := compareToCursor(d, orders, c)
	if c.Before {
		return r >= 0
	}
	return r > 0
}

// beforeEnd reports whether d is before the end cursor. A cursor with before
// set is positioned just before its values, so documents equal to them are
// excluded.
func beforeEnd(d *pb.Document, orders []*pb.StructuredQuery_Order, c *pb.Cursor) bool {
	r := compareToCursor(d, orders, c)
	if c.Before {
		return r < 0
	}
	return r <= 0
}

func filterMatches(f *pb.StructuredQuery_Filter, d *pb.Document) (bool, error) {
	if f == nil {
		return true, nil
	}
	switch ft := f.FilterType.(type) {
	case *pb.StructuredQuery_Filter_CompositeFilter:
		and := ft.CompositeFilter.Op != pb.StructuredQuery_CompositeFilter_OR
		for _, sub := range ft.CompositeFilter.Filters {
			ok, err := filterMatches(sub, d)
			if err != nil {
				return false, err
			}
			if ok != and {
				return ok, nil
			}
		}
		return and, nil
	case *pb.StructuredQuery_Filter_FieldFilter:
		return fieldFilterMatches(ft.FieldFilter, d)
	case *pb.StructuredQuery_Filter_UnaryFilter:
		v, ok := field(d, ft.UnaryFilter.GetField().GetFieldPath())
		if !ok {
			return false, nil
		}
		_, isNull := v.ValueType.(*pb.Value_NullValue)
		isNaN := math.IsNaN(v.GetDoubleValue())
		switch ft.UnaryFilter.Op {
		case pb.StructuredQuery_UnaryFilter_IS_NULL:
			return isNull, nil
		case pb.StructuredQuery_UnaryFilter_IS_NOT_NULL:
			return !isNull, nil
		case pb.StructuredQuery_UnaryFilter_IS_NAN:
			return isNaN, nil
		case pb.StructuredQuery_UnaryFilter_IS_NOT_NAN:
			return !isNaN, nil
		}
		return false, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: bad unary operator %v", ft.UnaryFilter.Op)
	default:
		return false, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: filter with no type")
	}
}

func fieldFilterMatches(f *pb.StructuredQuery_FieldFilter, d *pb.Document) (bool, error) {
	v, ok := field(d, f.GetField().GetFieldPath())
	if !ok {
		return false, nil
	}
	switch f.Op {
	case pb.StructuredQuery_FieldFilter_ARRAY_CONTAINS:
		return arrayHas(v, f.Value), nil
	case pb.StructuredQuery_FieldFilter_ARRAY_CONTAINS_ANY:
		for _, x := range f.Value.GetArrayValue().GetValues() {
			if arrayHas(v, x) {
				return true, nil
			}
		}
		return false, nil
	case pb.StructuredQuery_FieldFilter_IN, pb.StructuredQuery_FieldFilter_NOT_IN:
		in := false
		for _, x := range f.Value.GetArrayValue().GetValues() {
			if sameKind(v, x) && driver.CompareValues(v, x) == 0 {
				in = true
				break
			}
		}
		return in == (f.Op == pb.StructuredQuery_FieldFilter_IN), nil
	case pb.StructuredQuery_FieldFilter_NOT_EQUAL:
		return !(sameKind(v, f.Value) && driver.CompareValues(v, f.Value) == 0), nil
	}
	// Range and equality filters only match values of the same kind.
	if !sameKind(v, f.Value) {
		return false, nil
	}
	c := driver.CompareValues(v, f.Value)
	switch f.Op {
	case pb.StructuredQuery_FieldFilter_LESS_THAN:
		return c < 0, nil
	case pb.StructuredQuery_FieldFilter_LESS_THAN_OR_EQUAL:
		return c <= 0, nil
	case pb.StructuredQuery_FieldFilter_GREATER_THAN:
		return c > 0, nil
	case pb.StructuredQuery_FieldFilter_GREATER_THAN_OR_EQUAL:
		return c >= 0, nil
	case pb.StructuredQuery_FieldFilter_EQUAL:
		return c == 0, nil
	}
	return false, gcerr.Newf(gcerr.InvalidArgument, nil, "memdocstore: bad field operator %v", f.Op)
}

func arrayHas(arr, x *pb.Value) bool {
	for _, e := range arr.GetArrayValue().GetValues() {
		if sameKind(e, x) && driver.CompareValues(e, x) == 0 {
			return true
		}
	}
	return false
}

// sameKind reports whether two values sort in the same group. Integers and
// doubles are both numbers.
func sameKind(a, b *pb.Value) bool {
	return driver.TypeOrder(a) == driver.TypeOrder(b)
}
