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
	"reflect"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/docstore/driver"
	"firerest.dev/internal/gcerr"
)

type transformKind int

const (
	serverTime transformKind = iota
	increment
	maximum
	minimum
	arrayUnion
	arrayRemove
)

// A Transform is a change to a field that the service computes when the
// write is applied. Put a Transform in the data of a write as the value of
// the field it changes; it is sent as a separate transform instruction and
// never as a field value.
type Transform struct {
	kind    transformKind
	operand *pb.Value
	values  []*pb.Value
	err     error
}

var _ driver.FieldTransformer = (*Transform)(nil)

// ServerTimestamp sets the field to the time the service applies the write.
func ServerTimestamp() *Transform { return &Transform{kind: serverTime} }

// Increment adds n to the field. n must be a Go number.
func Increment(n interface{}) *Transform { return numericTransform(increment, "Increment", n) }

// Maximum sets the field to the larger of its value and n. n must be a Go number.
func Maximum(n interface{}) *Transform { return numericTransform(maximum, "Maximum", n) }

// Minimum sets the field to the smaller of its value and n. n must be a Go number.
func Minimum(n interface{}) *Transform { return numericTransform(minimum, "Minimum", n) }

// ArrayUnion appends each of vals not already present to the array in the field.
func ArrayUnion(vals ...interface{}) *Transform { return arrayTransform(arrayUnion, vals) }

// ArrayRemove removes every occurrence of each of vals from the array in the field.
func ArrayRemove(vals ...interface{}) *Transform { return arrayTransform(arrayRemove, vals) }

func numericTransform(kind transformKind, name string, n interface{}) *Transform {
	t := &Transform{kind: kind}
	switch reflect.ValueOf(n).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	default:
		t.err = gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: %s operand %v of type %T is not a number", name, n, n)
		return t
	}
	t.operand, t.err = driver.Encode(n, nil, nil)
	return t
}

func arrayTransform(kind transformKind, vals []interface{}) *Transform {
	t := &Transform{kind: kind}
	if vals == nil {
		vals = []interface{}{}
	}
	v, err := driver.Encode(vals, nil, nil)
	if err != nil {
		t.err = err
		return t
	}
	t.values = v.GetArrayValue().GetValues()
	return t
}

// FieldTransform renders t as the wire transform of the field at fieldPath.
func (t *Transform) FieldTransform(fieldPath string) (*pb.DocumentTransform_FieldTransform, error) {
	if t.err != nil {
		return nil, t.err
	}
	ft := &pb.DocumentTransform_FieldTransform{FieldPath: fieldPath}
	switch t.kind {
	case serverTime:
		ft.TransformType = &pb.DocumentTransform_FieldTransform_SetToServerValue{
			SetToServerValue: pb.DocumentTransform_FieldTransform_REQUEST_TIME,
		}
	case increment:
		ft.TransformType = &pb.DocumentTransform_FieldTransform_Increment{Increment: t.operand}
	case maximum:
		ft.TransformType = &pb.DocumentTransform_FieldTransform_Maximum{Maximum: t.operand}
	case minimum:
		ft.TransformType = &pb.DocumentTransform_FieldTransform_Minimum{Minimum: t.operand}
	case arrayUnion:
		ft.TransformType = &pb.DocumentTransform_FieldTransform_AppendMissingElements{
			AppendMissingElements: &pb.ArrayValue{Values: t.values},
		}
	case arrayRemove:
		ft.TransformType = &pb.DocumentTransform_FieldTransform_RemoveAllFromArray{
			RemoveAllFromArray: &pb.ArrayValue{Values: t.values},
		}
	default:
		return nil, gcerr.Newf(gcerr.Internal, nil, "docstore: unknown transform kind %d", t.kind)
	}
	return ft, nil
}
