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

// Useful comparison functions.

package driver

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strings"
	"time"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
)

// CompareTimes returns -1, 1 or 0 depending on whether t1 is before, after or
// equal to t2.
func CompareTimes(t1, t2 time.Time) int {
	switch {
	case t1.Before(t2):
		return -1
	case t1.After(t2):
		return 1
	default:
		return 0
	}
}

// CompareNumbers returns -1, 1 or 0 depending on whether n1 is less than,
// greater than or equal to n2. n1 and n2 must be signed integer, unsigned
// integer, or floating-point values, but they need not be the same type.
//
// If both types are integers or both floating-point, CompareNumbers behaves
// like Go comparisons on those types. If one operand is integer and the other
// is floating-point, CompareNumbers correctly compares the mathematical values
// of the numbers, without loss of precision.
func CompareNumbers(n1, n2 interface{}) (int, error) {
	v1, ok := n1.(reflect.Value)
	if !ok {
		v1 = reflect.ValueOf(n1)
	}
	v2, ok := n2.(reflect.Value)
	if !ok {
		v2 = reflect.ValueOf(n2)
	}
	f1, err := toBigFloat(v1)
	if err != nil {
		return 0, err
	}
	f2, err := toBigFloat(v2)
	if err != nil {
		return 0, err
	}
	return f1.Cmp(f2), nil
}

func toBigFloat(x reflect.Value) (*big.Float, error) {
	var f big.Float
	switch x.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f.SetInt64(x.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		f.SetUint64(x.Uint())
	case reflect.Float32, reflect.Float64:
		f.SetFloat64(x.Float())
	default:
		typ := "nil"
		if x.IsValid() {
			typ = fmt.Sprint(x.Type())
		}
		return nil, fmt.Errorf("%v of type %s is not a number", x, typ)
	}
	return &f, nil
}

// TypeOrder is the rank of the kind of v in the service's ordering of values.
// Integers and doubles share a rank. A value with no type has rank -1.
func TypeOrder(v *pb.Value) int {
	switch v.GetValueType().(type) {
	case *pb.Value_NullValue:
		return 0
	case *pb.Value_BooleanValue:
		return 1
	case *pb.Value_IntegerValue, *pb.Value_DoubleValue:
		return 2
	case *pb.Value_TimestampValue:
		return 3
	case *pb.Value_StringValue:
		return 4
	case *pb.Value_BytesValue:
		return 5
	case *pb.Value_ReferenceValue:
		return 6
	case *pb.Value_GeoPointValue:
		return 7
	case *pb.Value_ArrayValue:
		return 8
	case *pb.Value_MapValue:
		return 9
	default:
		return -1
	}
}

// CompareValues returns -1, 1 or 0 depending on whether v1 sorts before,
// after or together with v2. Values of different kinds sort by kind:
// null, boolean, number, timestamp, string, bytes, reference, geo point,
// array, map. NaN sorts before all other numbers.
func CompareValues(v1, v2 *pb.Value) int {
	o1, o2 := TypeOrder(v1), TypeOrder(v2)
	if o1 != o2 {
		return cmpInt(o1, o2)
	}
	switch x1 := v1.GetValueType().(type) {
	case *pb.Value_BooleanValue:
		b2 := v2.GetBooleanValue()
		switch {
		case x1.BooleanValue == b2:
			return 0
		case !x1.BooleanValue:
			return -1
		default:
			return 1
		}
	case *pb.Value_IntegerValue, *pb.Value_DoubleValue:
		return compareNumberValues(v1, v2)
	case *pb.Value_TimestampValue:
		return CompareTimes(x1.TimestampValue.AsTime(), v2.GetTimestampValue().AsTime())
	case *pb.Value_StringValue:
		return strings.Compare(x1.StringValue, v2.GetStringValue())
	case *pb.Value_BytesValue:
		return bytes.Compare(x1.BytesValue, v2.GetBytesValue())
	case *pb.Value_ReferenceValue:
		return compareNames(x1.ReferenceValue, v2.GetReferenceValue())
	case *pb.Value_GeoPointValue:
		g1, g2 := x1.GeoPointValue, v2.GetGeoPointValue()
		if c := compareFloats(g1.GetLatitude(), g2.GetLatitude()); c != 0 {
			return c
		}
		return compareFloats(g1.GetLongitude(), g2.GetLongitude())
	case *pb.Value_ArrayValue:
		a1, a2 := x1.ArrayValue.GetValues(), v2.GetArrayValue().GetValues()
		for i := 0; i < len(a1) && i < len(a2); i++ {
			if c := CompareValues(a1[i], a2[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a1), len(a2))
	case *pb.Value_MapValue:
		return compareMaps(x1.MapValue.GetFields(), v2.GetMapValue().GetFields())
	default:
		return 0
	}
}

func compareNumberValues(v1, v2 *pb.Value) int {
	n1, n2 := numberOf(v1), numberOf(v2)
	nan1, nan2 := isNaN(n1), isNaN(n2)
	switch {
	case nan1 && nan2:
		return 0
	case nan1:
		return -1
	case nan2:
		return 1
	}
	c, err := CompareNumbers(n1, n2)
	if err != nil {
		return 0
	}
	return c
}

func numberOf(v *pb.Value) interface{} {
	if x, ok := v.ValueType.(*pb.Value_IntegerValue); ok {
		return x.IntegerValue
	}
	return v.GetDoubleValue()
}

func isNaN(n interface{}) bool {
	f, ok := n.(float64)
	return ok && math.IsNaN(f)
}

func compareFloats(f1, f2 float64) int {
	switch {
	case f1 < f2:
		return -1
	case f1 > f2:
		return 1
	default:
		return 0
	}
}

// compareNames orders resource names segment by segment.
func compareNames(n1, n2 string) int {
	s1, s2 := strings.Split(n1, "/"), strings.Split(n2, "/")
	for i := 0; i < len(s1) && i < len(s2); i++ {
		if c := strings.Compare(s1[i], s2[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(s1), len(s2))
}

// CompareNames orders document resource names the way the service orders
// documents by identity.
func CompareNames(n1, n2 string) int { return compareNames(n1, n2) }

func compareMaps(m1, m2 map[string]*pb.Value) int {
	k1, k2 := sortedKeys(m1), sortedKeys(m2)
	for i := 0; i < len(k1) && i < len(k2); i++ {
		if c := strings.Compare(k1[i], k2[i]); c != 0 {
			return c
		}
		if c := CompareValues(m1[k1[i]], m2[k2[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(len(k1), len(k2))
}

func sortedKeys(m map[string]*pb.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
