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
	"regexp"
	"sort"
	"strings"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/internal/gcerr"
)

// NameField is the field path that orders and filters by document identity.
const NameField = "__name__"

// Google SQL syntax for an unquoted field.
var unquotedFieldRE = regexp.MustCompile("^[A-Za-z_][A-Za-z_0-9]*$")

// FieldPath converts a field path given as components into the form the
// service expects: a string of dot-separated components, some of which may be
// quoted with backticks.
func FieldPath(fp []string) string {
	cs := make([]string, len(fp))
	for i, c := range fp {
		cs[i] = fieldPathComponent(c)
	}
	return strings.Join(cs, ".")
}

func fieldPathComponent(key string) string {
	if unquotedFieldRE.MatchString(key) {
		return key
	}
	var b strings.Builder
	b.WriteByte('`')
	for _, r := range key {
		if r == '`' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('`')
	return b.String()
}

// ParseFieldPath splits a dotted field path into its components. Components
// may be quoted with backticks, in which case they may contain dots, and a
// backslash escapes the following character.
func ParseFieldPath(s string) ([]string, error) {
	if s == "" {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "empty field path")
	}
	var (
		fp      []string
		cur     strings.Builder
		quoted  bool
		escaped bool
		closed  bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case quoted && r == '\\':
			escaped = true
		case r == '`':
			if !quoted && (cur.Len() > 0 || closed) {
				return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "bad field path %q: misplaced backtick", s)
			}
			if quoted {
				closed = true
			}
			quoted = !quoted
		case r == '.' && !quoted:
			if cur.Len() == 0 && !closed {
				return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "bad field path %q: empty component", s)
			}
			fp = append(fp, cur.String())
			cur.Reset()
			closed = false
		default:
			if closed {
				return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "bad field path %q: text after closing backtick", s)
			}
			cur.WriteRune(r)
		}
	}
	if quoted || escaped {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "bad field path %q: unterminated quote", s)
	}
	if cur.Len() == 0 && !closed {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "bad field path %q: empty component", s)
	}
	return append(fp, cur.String()), nil
}

// FieldsMask returns the sorted field paths of the leaves of m. Nested maps
// are expanded; slices, empty maps and all other values are leaves. Values
// that are FieldTransformers are left out, since they are written by
// transforms rather than by the update itself.
func FieldsMask(m map[string]interface{}) []string {
	var paths []string
	var walk func(map[string]interface{}, []string)
	walk = func(m map[string]interface{}, prefix []string) {
		for k, v := range m {
			fp := append(prefix[:len(prefix):len(prefix)], k)
			if _, ok := v.(FieldTransformer); ok {
				continue
			}
			if sub, ok := v.(map[string]interface{}); ok && len(sub) > 0 {
				walk(sub, fp)
				continue
			}
			paths = append(paths, FieldPath(fp))
		}
	}
	walk(m, nil)
	sort.Strings(paths)
	return paths
}

// GetAtFieldPath returns the value of m at fp, and whether it was present.
func GetAtFieldPath(m map[string]interface{}, fp []string) (interface{}, bool) {
	var cur interface{} = m
	for _, k := range fp {
		mm, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = mm[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetValueAtFieldPath is like GetAtFieldPath, but for wire fields.
func GetValueAtFieldPath(m map[string]*pb.Value, fp []string) (*pb.Value, bool) {
	if len(fp) == 0 {
		return nil, false
	}
	pm, err := getParentMap(m, fp, false)
	if err != nil || pm == nil {
		return nil, false
	}
	v, ok := pm[fp[len(fp)-1]]
	return v, ok
}

// SetValueAtFieldPath sets m's value at fp to val. It creates intermediate maps
// as needed. It returns an error if a non-final component of fp does not
// denote a map.
func SetValueAtFieldPath(m map[string]*pb.Value, fp []string, val *pb.Value) error {
	if len(fp) == 0 {
		return gcerr.Newf(gcerr.InvalidArgument, nil, "empty field path")
	}
	m2, err := getParentMap(m, fp, true)
	if err != nil {
		return err
	}
	m2[fp[len(fp)-1]] = val
	return nil
}

// DeleteValueAtFieldPath removes the value of m at fp, if any.
func DeleteValueAtFieldPath(m map[string]*pb.Value, fp []string) {
	if len(fp) == 0 {
		return
	}
	m2, err := getParentMap(m, fp, false)
	if err == nil && m2 != nil {
		delete(m2, fp[len(fp)-1])
	}
}

// getParentMap returns the map that directly contains the given field path;
// that is, the value of m at the field path that excludes the last component
// of fp. If a non-map is encountered along the way, an InvalidArgument error is
// returned. If nil is encountered, nil is returned unless create is true, in
// which case a map is added at that point.
func getParentMap(m map[string]*pb.Value, fp []string, create bool) (map[string]*pb.Value, error) {
	for _, k := range fp[:len(fp)-1] {
		if m[k] == nil {
			if !create {
				return nil, nil
			}
			m[k] = &pb.Value{ValueType: &pb.Value_MapValue{MapValue: &pb.MapValue{Fields: map[string]*pb.Value{}}}}
		}
		mv := m[k].GetMapValue()
		if mv == nil {
			return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "invalid field path %q at %q", FieldPath(fp), k)
		}
		if mv.Fields == nil {
			if !create {
				return nil, nil
			}
			mv.Fields = map[string]*pb.Value{}
		}
		m = mv.Fields
	}
	return m, nil
}
