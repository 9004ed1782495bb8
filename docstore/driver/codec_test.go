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

package driver

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/gcerrors"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/testing/protocmp"
	tspb "google.golang.org/protobuf/types/known/timestamppb"
)

type serverTime struct{}

func (serverTime) FieldTransform(fp string) (*pb.DocumentTransform_FieldTransform, error) {
	return &pb.DocumentTransform_FieldTransform{
		FieldPath:     fp,
		TransformType: &pb.DocumentTransform_FieldTransform_SetToServerValue{SetToServerValue: pb.DocumentTransform_FieldTransform_REQUEST_TIME},
	}, nil
}

type ref string

func (r ref) ResourceName() string { return string(r) }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.FixedZone("X", 3600))
	for _, in := range []interface{}{
		nil,
		true,
		false,
		int64(0),
		int64(-7),
		int64(math.MaxInt64),
		2.5,
		math.Inf(1),
		"",
		"héllo",
		[]byte{},
		[]byte("bytes"),
		now,
		&latlng.LatLng{Latitude: 10.5, Longitude: -3},
		[]interface{}{},
		[]interface{}{int64(1), "two", nil, []interface{}{true}},
		map[string]interface{}{},
		map[string]interface{}{
			"a": int64(1),
			"b": map[string]interface{}{"c": "d", "e": []interface{}{1.5}},
		},
	} {
		v, err := Encode(in, nil, nil)
		if err != nil {
			t.Fatalf("Encode(%v): %v", in, err)
		}
		got, err := Decode(v, nil)
		if err != nil {
			t.Fatalf("Decode(%v): %v", v, err)
		}
		if diff := cmp.Diff(got, in, protocmp.Transform(), cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
			t.Errorf("round trip of %v: got=-, want=+:\n%s", in, diff)
		}
	}
}

func TestEncodeNumbers(t *testing.T) {
	for _, test := range []struct {
		in   interface{}
		want *pb.Value
	}{
		{3, &pb.Value{ValueType: &pb.Value_IntegerValue{IntegerValue: 3}}},
		{int8(-3), &pb.Value{ValueType: &pb.Value_IntegerValue{IntegerValue: -3}}},
		{uint32(7), &pb.Value{ValueType: &pb.Value_IntegerValue{IntegerValue: 7}}},
		{3.0, &pb.Value{ValueType: &pb.Value_DoubleValue{DoubleValue: 3}}},
		{float32(0.5), &pb.Value{ValueType: &pb.Value_DoubleValue{DoubleValue: 0.5}}},
	} {
		got, err := Encode(test.in, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(got, test.want, protocmp.Transform()); diff != "" {
			t.Errorf("Encode(%T(%[1]v)): %s", test.in, diff)
		}
	}
	if _, err := Encode(uint64(math.MaxUint64), nil, nil); gcerrors.Code(err) != gcerrors.InvalidArgument {
		t.Errorf("uint64 overflow: got %v, want InvalidArgument", err)
	}
}

func TestEncodeSpecialTypes(t *testing.T) {
	ts := tspb.New(time.Unix(100, 5))
	v, err := Encode(map[string]interface{}{
		"r":  ref("projects/p/databases/d/documents/c/x"),
		"ts": ts,
		"pv": &pb.Value{ValueType: &pb.Value_StringValue{StringValue: "raw"}},
		"np": (*latlng.LatLng)(nil),
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := &pb.Value{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: map[string]*pb.Value{
		"r":  {ValueType: &pb.Value_ReferenceValue{ReferenceValue: "projects/p/databases/d/documents/c/x"}},
		"ts": {ValueType: &pb.Value_TimestampValue{TimestampValue: ts}},
		"pv": {ValueType: &pb.Value_StringValue{StringValue: "raw"}},
		"np": NullValue,
	}}}}
	if diff := cmp.Diff(v, want, protocmp.Transform()); diff != "" {
		t.Error(diff)
	}
	got, err := Decode(v, func(name string) (interface{}, error) { return ref(name), nil })
	if err != nil {
		t.Fatal(err)
	}
	if r := got.(map[string]interface{})["r"]; r != ref("projects/p/databases/d/documents/c/x") {
		t.Errorf("decoded reference = %v", r)
	}
}

func TestEncodeErrors(t *testing.T) {
	for _, in := range []interface{}{
		struct{ A int }{1},
		map[int]interface{}{1: 2},
		make(chan int),
		serverTime{},
		[]interface{}{serverTime{}},
		time.Date(20000, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		if _, err := Encode(in, nil, nil); gcerrors.Code(err) != gcerrors.InvalidArgument {
			t.Errorf("Encode(%v): got %v, want InvalidArgument", in, err)
		}
	}
}

func TestEmptyArrayJSON(t *testing.T) {
	v, err := Encode([]string{}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := protojson.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var got interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"arrayValue": map[string]interface{}{}}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("got=-, want=+:\n%s", diff)
	}
}

func TestEncodeDocumentTransforms(t *testing.T) {
	var sink []*pb.DocumentTransform_FieldTransform
	fields, err := EncodeDocument(map[string]interface{}{
		"a":       1,
		"updated": serverTime{},
		"m": map[string]interface{}{
			"b":       "x",
			"a b":     serverTime{},
			"created": serverTime{},
		},
	}, &sink)
	if err != nil {
		t.Fatal(err)
	}
	wantFields := map[string]*pb.Value{
		"a": {ValueType: &pb.Value_IntegerValue{IntegerValue: 1}},
		"m": {ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: map[string]*pb.Value{
			"b": {ValueType: &pb.Value_StringValue{StringValue: "x"}},
		}}}},
	}
	if diff := cmp.Diff(fields, wantFields, protocmp.Transform()); diff != "" {
		t.Errorf("fields: %s", diff)
	}
	var gotPaths []string
	for _, ft := range sink {
		gotPaths = append(gotPaths, ft.FieldPath)
	}
	wantPaths := []string{"m.`a b`", "m.created", "updated"}
	if diff := cmp.Diff(gotPaths, wantPaths); diff != "" {
		t.Errorf("transform paths: %s", diff)
	}
}

func TestEncodeDocumentEmpty(t *testing.T) {
	for _, m := range []map[string]interface{}{nil, {}, {"t": serverTime{}}} {
		fields, err := EncodeDocument(m, nil)
		if err != nil {
			t.Fatal(err)
		}
		if fields != nil {
			t.Errorf("EncodeDocument(%v) = %v, want nil", m, fields)
		}
	}
}

func TestEncodeNilTransform(t *testing.T) {
	var st *serverTime
	m := map[string]interface{}{"m": map[string]interface{}{"t": st}}
	_, err := EncodeDocument(m, nil)
	if gcerrors.Code(err) != gcerrors.InvalidArgument {
		t.Fatalf("got %v, want InvalidArgument", err)
	}
	if !strings.Contains(err.Error(), `nil transform at "m.t"`) {
		t.Errorf("got %q, want it to name the nil transform at m.t", err)
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	for _, v := range []*pb.Value{
		nil,
		{},
		{ValueType: &pb.Value_ArrayValue{ArrayValue: &pb.ArrayValue{Values: []*pb.Value{{}}}}},
		{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: map[string]*pb.Value{"x": {}}}}},
	} {
		_, err := Decode(v, nil)
		if gcerrors.Code(err) != gcerrors.Internal {
			t.Errorf("Decode(%v): got %v, want Internal", v, err)
		}
	}
}
