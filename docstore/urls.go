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
	"net/url"

	"firerest.dev/internal/openurl"
)

// DatabaseURLOpener opens a Database based on a URL.
// The opener must not modify the URL argument. It must be safe to call from
// multiple goroutines.
//
// This interface is generally implemented by types in transport packages.
type DatabaseURLOpener interface {
	OpenDatabaseURL(ctx context.Context, u *url.URL) (*Database, error)
}

// URLMux is a URL opener multiplexer. It matches the scheme of the URLs against
// a set of registered schemes and calls the opener that matches the URL's
// scheme.
//
// The zero value is a multiplexer with no registered scheme.
type URLMux struct {
	schemes openurl.SchemeMap
}

// DatabaseSchemes returns a sorted slice of the registered Database schemes.
func (mux *URLMux) DatabaseSchemes() []string { return mux.schemes.Schemes() }

// ValidDatabaseScheme returns true iff scheme has been registered for Databases.
func (mux *URLMux) ValidDatabaseScheme(scheme string) bool { return mux.schemes.ValidScheme(scheme) }

// RegisterDatabase registers the opener with the given scheme. If an opener
// already exists for the scheme, RegisterDatabase panics.
func (mux *URLMux) RegisterDatabase(scheme string, opener DatabaseURLOpener) {
	mux.schemes.Register("docstore", "Database", scheme, opener)
}

// OpenDatabase calls OpenDatabaseURL with the URL parsed from urlstr.
// OpenDatabase is safe to call from multiple goroutines.
func (mux *URLMux) OpenDatabase(ctx context.Context, urlstr string) (*Database, error) {
	opener, u, err := mux.schemes.FromString("Database", urlstr)
	if err != nil {
		return nil, err
	}
	return opener.(DatabaseURLOpener).OpenDatabaseURL(ctx, u)
}

// OpenDatabaseURL dispatches the URL to the opener that is registered with
// the URL's scheme. OpenDatabaseURL is safe to call from multiple goroutines.
func (mux *URLMux) OpenDatabaseURL(ctx context.Context, u *url.URL) (*Database, error) {
	opener, err := mux.schemes.FromURL("Database", u)
	if err != nil {
		return nil, err
	}
	return opener.(DatabaseURLOpener).OpenDatabaseURL(ctx, u)
}

var defaultURLMux = new(URLMux)

// DefaultURLMux returns the URLMux used by OpenDatabase.
//
// Transport packages can use this to register their DatabaseURLOpener on the mux.
func DefaultURLMux() *URLMux {
	return defaultURLMux
}

// OpenDatabase opens the database identified by the URL given, such as
// "firestore://projects/my-project/databases/(default)" or "mem://".
// See the URLOpener documentation in transport packages for details.
func OpenDatabase(ctx context.Context, urlstr string) (*Database, error) {
	return defaultURLMux.OpenDatabase(ctx, urlstr)
}
