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

package gcpfirestore

import (
	"context"
	"net/url"
	"testing"

	"firerest.dev/gcerrors"
)

func TestOpenDatabaseURL(t *testing.T) {
	ctx := context.Background()
	o := &URLOpener{Transport: New(nil, nil)}
	tests := []struct {
		URL      string
		WantName string
		WantErr  bool
	}{
		{"firestore://projects/p/databases/(default)", "projects/p/databases/(default)", false},
		{"firestore://projects/p/databases/other", "projects/p/databases/other", false},
		{"firestore://projects/p", "projects/p/databases/(default)", false},
		{"firestore://projects/p/databases", "", true},
		{"firestore://p/databases/d", "", true},
		{"firestore://projects/p/databases/d/documents", "", true},
		{"firestore://projects/p?param=value", "", true},
	}
	for _, test := range tests {
		u, err := url.Parse(test.URL)
		if err != nil {
			t.Fatal(err)
		}
		db, err := o.OpenDatabaseURL(ctx, u)
		if (err != nil) != test.WantErr {
			t.Errorf("%s: got error %v, want error %v", test.URL, err, test.WantErr)
			continue
		}
		if err != nil {
			continue
		}
		if got := db.Name(); got != test.WantName {
			t.Errorf("%s: got name %q, want %q", test.URL, got, test.WantName)
		}
	}
}

func TestOpenDatabaseURLNoTransport(t *testing.T) {
	u, _ := url.Parse("firestore://projects/p")
	_, err := (&URLOpener{}).OpenDatabaseURL(context.Background(), u)
	if gcerrors.Code(err) != gcerrors.InvalidArgument {
		t.Errorf("got %v, want InvalidArgument", err)
	}
}
