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
	"net/url"
	"strings"

	"firerest.dev/docstore"
	"firerest.dev/internal/openurl"
)

func init() {
	docstore.DefaultURLMux().RegisterDatabase(Scheme, &URLOpener{})
}

// Scheme is the URL scheme memdocstore registers its URLOpener under on
// docstore.DefaultURLMux.
const Scheme = "mem"

// URLOpener opens URLs like "mem://", "mem://my-project" or
// "mem://my-project/my-database". Each URL opened gets a new, empty store.
//
// The URL's host is the project ID, "local" if empty. The URL's path is the
// database ID, docstore.DefaultDatabase if empty.
//
// No query parameters are supported.
type URLOpener struct {
	// Options are passed to New.
	Options Options

	// DatabaseOptions are passed to docstore.NewDatabase.
	DatabaseOptions docstore.Options
}

// OpenDatabaseURL opens a docstore.Database based on u.
func (o *URLOpener) OpenDatabaseURL(ctx context.Context, u *url.URL) (*docstore.Database, error) {
	if err := openurl.UnknownParams("docstore", "Database", u); err != nil {
		return nil, err
	}
	project := u.Host
	if project == "" {
		project = "local"
	}
	opts := o.Options
	dbOpts := o.DatabaseOptions
	return OpenDatabase(project, strings.Trim(u.Path, "/"), &opts, &dbOpts)
}
