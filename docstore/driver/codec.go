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

// Encoding and decoding between Go values and typed values.

import (
	"math"
	"reflect"
	"sort"
	"time"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/internal/gcerr"
	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/protobuf/types/known/structpb"
	tspb "google.golang.org/protobuf/types/known/timestamppb"
)

var (
	typeOfGoTime         = reflect.TypeOf(time.Time{})
	typeOfProtoTimestamp = reflect.TypeOf((*tspb.Timestamp)(nil))
	typeOfLatLng         = reflect.TypeOf((*latlng.LatLng)(nil))
	typeOfValue          = reflect.TypeOf((*pb.Value)(nil))
	referencerType       = reflect.TypeOf((*Referencer)(nil)).Elem()
	transformerType      = reflect.TypeOf((*FieldTransformer)(nil)).Elem()
)

// NullValue is the typed value for nil.
var NullValue = &pb.Value{ValueType: &pb.Value_NullValue{NullValue: structpb.NullValue_NULL_VALUE}}

// Encode encodes a Go value as a typed value.
//
// Integer kinds encode as integer values, floating-point kinds as doubles,
// time.Time and *timestamppb.Timestamp as timestamps, *latlng.LatLng as geo
// points, []byte as bytes, Referencers as references, other slices and arrays
// as arrays, and maps with string keys as maps. A *pb.Value is used as is.
// Pointers and interfaces are followed; nil encodes as null.
//
// A FieldTransformer held in a map is not encoded. Instead it is given the
// field path at which it was found (prefix followed by the map keys leading to
// it), the resulting transform is appended to sink, and the map entry is left
// out of the result. Transforms are appended in field order. If sink is nil,
// transforms are dropped.
func Encode(x interface{}, sink *[]*pb.DocumentTransform_FieldTransform, prefix []string) (*pb.Value, error) {
	return encode(reflect.ValueOf(x), sink, prefix)
}

// EncodeDocument encodes m as the fields of a wire document, diverting
// transforms to sink as Encode does. An empty m yields nil fields, so the
// document carries no "fields" member at all.
func EncodeDocument(m map[string]interface{}, sink *[]*pb.DocumentTransform_FieldTransform) (map[string]*pb.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	fields, err := encodeMapFields(reflect.ValueOf(m), sink, nil)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func encode(v reflect.Value, sink *[]*pb.DocumentTransform_FieldTransform, fp []string) (*pb.Value, error) {
	if !v.IsValid() {
		return NullValue, nil
	}
	if done, pv, err := encodeSpecial(v, fp); done {
		return pv, err
	}
	switch v.Kind() {
	case reflect.Bool:
		return &pb.Value{ValueType: &pb.Value_BooleanValue{BooleanValue: v.Bool()}}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &pb.Value{ValueType: &pb.Value_IntegerValue{IntegerValue: v.Int()}}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u > math.MaxInt64 {
			return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "value %d at %q overflows a 64-bit integer", u, FieldPath(fp))
		}
		return &pb.Value{ValueType: &pb.Value_IntegerValue{IntegerValue: int64(u)}}, nil
	case reflect.Float32, reflect.Float64:
		return &pb.Value{ValueType: &pb.Value_DoubleValue{DoubleValue: v.Float()}}, nil
	case reflect.String:
		return &pb.Value{ValueType: &pb.Value_StringValue{StringValue: v.String()}}, nil
	case reflect.Slice:
		if v.IsNil() {
			return NullValue, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return &pb.Value{ValueType: &pb.Value_BytesValue{BytesValue: v.Bytes()}}, nil
		}
		fallthrough
	case reflect.Array:
		return encodeList(v, fp)
	case reflect.Map:
		if v.IsNil() {
			return NullValue, nil
		}
		fields, err := encodeMapFields(v, sink, fp)
		if err != nil {
			return nil, err
		}
		return &pb.Value{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: fields}}}, nil
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return NullValue, nil
		}
		return encode(v.Elem(), sink, fp)
	default:
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "cannot encode value of type %s at %q", v.Type(), FieldPath(fp))
	}
}

// encodeSpecial handles the types that are not encoded by their kind.
func encodeSpecial(v reflect.Value, fp []string) (bool, *pb.Value, error) {
	t := v.Type()
	nilPtr := (t.Kind() == reflect.Ptr || t.Kind() == reflect.Interface) && v.IsNil()
	switch {
	case t == typeOfGoTime:
		ts := tspb.New(v.Interface().(time.Time))
		if err := ts.CheckValid(); err != nil {
			return true, nil, gcerr.Newf(gcerr.InvalidArgument, err, "bad time at %q", FieldPath(fp))
		}
		return true, &pb.Value{ValueType: &pb.Value_TimestampValue{TimestampValue: ts}}, nil
	case t == typeOfProtoTimestamp:
		if nilPtr {
			return true, NullValue, nil
		}
		return true, &pb.Value{ValueType: &pb.Value_TimestampValue{TimestampValue: v.Interface().(*tspb.Timestamp)}}, nil
	case t == typeOfLatLng:
		if nilPtr {
			return true, NullValue, nil
		}
		return true, &pb.Value{ValueType: &pb.Value_GeoPointValue{GeoPointValue: v.Interface().(*latlng.LatLng)}}, nil
	case t == typeOfValue:
		if nilPtr {
			return true, NullValue, nil
		}
		return true, v.Interface().(*pb.Value), nil
	case t.Implements(transformerType) && t.Kind() != reflect.Interface:
		if nilPtr {
			return true, nil, gcerr.Newf(gcerr.InvalidArgument, nil, "nil transform at %q", FieldPath(fp))
		}
		return true, nil, gcerr.Newf(gcerr.InvalidArgument, nil,
			"transform at %q must be the value of a map field", FieldPath(fp))
	case t.Implements(referencerType) && t.Kind() != reflect.Interface:
		if nilPtr {
			return true, NullValue, nil
		}
		name := v.Interface().(Referencer).ResourceName()
		return true, &pb.Value{ValueType: &pb.Value_ReferenceValue{ReferenceValue: name}}, nil
	}
	return false, nil, nil
}

func encodeList(v reflect.Value, fp []string) (*pb.Value, error) {
	n := v.Len()
	var vals []*pb.Value
	if n > 0 {
		vals = make([]*pb.Value, n)
	}
	for i := 0; i < n; i++ {
		// Transforms may not appear in arrays, so there is no sink.
		pv, err := encode(v.Index(i), nil, fp)
		if err != nil {
			return nil, err
		}
		vals[i] = pv
	}
	return &pb.Value{ValueType: &pb.Value_ArrayValue{ArrayValue: &pb.ArrayValue{Values: vals}}}, nil
}

// encodeMapFields encodes the entries of v, a map with string keys, in key
// order. Transforms are diverted to sink.
func encodeMapFields(v reflect.Value, sink *[]*pb.DocumentTransform_FieldTransform, fp []string) (map[string]*pb.Value, error) {
	if v.Type().Key().Kind() != reflect.String {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "cannot encode map with key type %s at %q", v.Type().Key(), FieldPath(fp))
	}
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	fields := make(map[string]*pb.Value, len(keys))
	for _, k := range keys {
		key := k.String()
		kfp := append(fp[:len(fp):len(fp)], key)
		elem := v.MapIndex(k)
		if ft, ok := asTransformer(elem); ok {
			t, err := ft.FieldTransform(FieldPath(kfp))
			if err != nil {
				return nil, err
			}
			if sink != nil {
				*sink = append(*sink, t)
			}
			continue
		}
		pv, err := encode(elem, sink, kfp)
		if err != nil {
			return nil, err
		}
		fields[key] = pv
	}
	return fields, nil
}

func asTransformer(v reflect.Value) (FieldTransformer, bool) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if !v.IsValid() || !v.CanInterface() {
		return nil, false
	}
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return nil, false
	}
	ft, ok := v.Interface().(FieldTransformer)
	return ft, ok
}

////////////////////////////////////////////////////////////////

// Decode decodes a typed value into the most appropriate Go type:
// nil, bool, int64, float64, time.Time, string, []byte, *latlng.LatLng,
// []interface{} or map[string]interface{}. Reference values are passed to refs;
// if refs is nil, the resource name is returned as a string.
//
// A value with no recognized type tag is an Internal error, since it can only
// come from a malformed or incompatible response.
func Decode(v *pb.Value, refs ReferenceDecoder) (interface{}, error) {
	if v == nil {
		return nil, gcerr.Newf(gcerr.Internal, nil, "unrecognized type tag in <nil> value")
	}
	switch v := v.ValueType.(type) {
	case *pb.Value_NullValue:
		return nil, nil
	case *pb.Value_BooleanValue:
		return v.BooleanValue, nil
	case *pb.Value_IntegerValue:
		return v.IntegerValue, nil
	case *pb.Value_DoubleValue:
		return v.DoubleValue, nil
	case *pb.Value_StringValue:
		return v.StringValue, nil
	case *pb.Value_BytesValue:
		return v.BytesValue, nil
	case *pb.Value_TimestampValue:
		if err := v.TimestampValue.CheckValid(); err != nil {
			return nil, gcerr.Newf(gcerr.Internal, err, "bad timestamp value")
		}
		return v.TimestampValue.AsTime(), nil
	case *pb.Value_ReferenceValue:
		if refs == nil {
			return v.ReferenceValue, nil
		}
		return refs(v.ReferenceValue)
	case *pb.Value_GeoPointValue:
		if v.GeoPointValue == nil {
			return nil, gcerr.Newf(gcerr.Internal, nil, "empty geo point value")
		}
		return v.GeoPointValue, nil
	case *pb.Value_ArrayValue:
		s := make([]interface{}, len(v.ArrayValue.GetValues()))
		for i, pv := range v.ArrayValue.GetValues() {
			e, err := Decode(pv, refs)
			if err != nil {
				return nil, err
			}
			s[i] = e
		}
		return s, nil
	case *pb.Value_MapValue:
		return DecodeFields(v.MapValue.GetFields(), refs)
	default:
		return nil, gcerr.Newf(gcerr.Internal, nil, "unrecognized type tag %T", v)
	}
}

// DecodeFields decodes the fields of a wire document or map value.
func DecodeFields(fields map[string]*pb.Value, refs ReferenceDecoder) (map[string]interface{}, error) {
	m := make(map[string]interface{}, len(fields))
	for k, pv := range fields {
		e, err := Decode(pv, refs)
		if err != nil {
			return nil, err
		}
		m[k] = e
	}
	return m, nil
}
