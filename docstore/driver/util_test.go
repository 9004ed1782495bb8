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

import "testing"

func TestUniqueID(t *testing.T) {
	id := UniqueID()
	if len(id) != 20 {
		t.Errorf("len(UniqueID()) = %d, want 20", len(id))
	}
	if seen := UniqueID(); seen == id {
		t.Errorf("UniqueID returned %q twice", id)
	}
	if !unquotedFieldRE.MatchString("x" + id) {
		t.Errorf("UniqueID() = %q contains unexpected characters", id)
	}
}
