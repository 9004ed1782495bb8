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
	"bytes"
	"reflect"
	"time"

	"google.golang.org/protobuf/proto"
)

// Diff returns the entries of modified whose values differ from those in
// baseline. Nested maps present in both are compared recursively and only
// their differing entries are kept; a nested map with no differences is left
// out. Keys present only in baseline are ignored.
func Diff(modified, baseline map[string]interface{}) map[string]interface{} {
	d := map[string]interface{}{}
	for k, mv := range modified {
		bv, ok := baseline[k]
		if !ok {
			d[k] = mv
			continue
		}
		mm, mok := mv.(map[string]interface{})
		bm, bok := bv.(map[string]interface{})
		if mok && bok {
			if sub := Diff(mm, bm); len(sub) > 0 {
				d[k] = sub
			}
			continue
		}
		if !Equal(mv, bv) {
			d[k] = mv
		}
	}
	return d
}

// Equal reports whether two decoded values are structurally equal.
// Integers compare by value regardless of their Go type, as do floating-point
// numbers, but an integer never equals a floating-point number. Times compare
// by instant, protocol buffers with proto.Equal and references by resource
// name.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return isNil(a) && isNil(b)
	}
	switch a := a.(type) {
	case time.Time:
		bt, ok := b.(time.Time)
		return ok && a.Equal(bt)
	case []byte:
		bb, ok := b.([]byte)
		return ok && bytes.Equal(a, bb)
	case proto.Message:
		bm, ok := b.(proto.Message)
		return ok && proto.Equal(a, bm)
	case Referencer:
		br, ok := b.(Referencer)
		return ok && a.ResourceName() == br.ResourceName()
	case map[string]interface{}:
		bm, ok := b.(map[string]interface{})
		if !ok || len(a) != len(bm) {
			return false
		}
		for k, av := range a {
			bv, ok := bm[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	ka, kb := numberKind(va), numberKind(vb)
	if ka != notNumber || kb != notNumber {
		if ka != kb {
			return false
		}
		c, err := CompareNumbers(va, vb)
		return err == nil && c == 0
	}
	if isList(va) && isList(vb) {
		if va.Len() != vb.Len() {
			return false
		}
		for i := 0; i < va.Len(); i++ {
			if !Equal(va.Index(i).Interface(), vb.Index(i).Interface()) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

type numKind int

const (
	notNumber numKind = iota
	intNumber
	floatNumber
)

func numberKind(v reflect.Value) numKind {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return intNumber
	case reflect.Float32, reflect.Float64:
		return floatNumber
	default:
		return notNumber
	}
}

func isList(v reflect.Value) bool {
	return v.Kind() == reflect.Slice || v.Kind() == reflect.Array
}

func isNil(x interface{}) bool {
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

// Copy returns a deep copy of a decoded value. Maps, slices, byte slices and
// protocol buffers are copied; other values are returned as is.
func Copy(x interface{}) interface{} {
	switch x := x.(type) {
	case map[string]interface{}:
		if x == nil {
			return x
		}
		m := make(map[string]interface{}, len(x))
		for k, v := range x {
			m[k] = Copy(v)
		}
		return m
	case []interface{}:
		if x == nil {
			return x
		}
		s := make([]interface{}, len(x))
		for i, v := range x {
			s[i] = Copy(v)
		}
		return s
	case []byte:
		if x == nil {
			return x
		}
		return append([]byte(nil), x...)
	case proto.Message:
		return proto.Clone(x)
	default:
		return x
	}
}
