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
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sync"

	"firerest.dev/docstore"
	"firerest.dev/docstore/driver"
	"firerest.dev/gcp"
	"firerest.dev/internal/gcerr"
	"firerest.dev/internal/openurl"
)

func init() {
	docstore.DefaultURLMux().RegisterDatabase(Scheme, &lazyCredsOpener{})
}

type lazyCredsOpener struct {
	init   sync.Once
	opener *URLOpener
	err    error
}

func (o *lazyCredsOpener) OpenDatabaseURL(ctx context.Context, u *url.URL) (*docstore.Database, error) {
	o.init.Do(func() {
		creds, err := gcp.DefaultCredentials(ctx)
		if err != nil {
			o.err = err
			return
		}
		t, err := Dial(ctx, gcp.CredentialsTokenSource(creds))
		if err != nil {
			o.err = err
			return
		}
		o.opener = &URLOpener{Transport: t}
	})
	if o.err != nil {
		return nil, fmt.Errorf("open database %s: %v", u, o.err)
	}
	return o.opener.OpenDatabaseURL(ctx, u)
}

// Scheme is the URL scheme gcpfirestore registers its URLOpener under on
// docstore.DefaultURLMux.
const Scheme = "firestore"

// URLOpener opens firestore URLs like
// "firestore://projects/myproject/databases/(default)".
// The database part may be left out to mean the default database, as in
// "firestore://projects/myproject".
//
// No query parameters are supported.
type URLOpener struct {
	// Transport carries the requests of opened databases. It must be set.
	Transport driver.Transport

	// DatabaseOptions are passed to docstore.NewDatabase.
	DatabaseOptions docstore.Options
}

var databaseRE = regexp.MustCompile(`^projects/([^/]+)(?:/databases/([^/]+))?$`)

// OpenDatabaseURL opens a docstore.Database based on u.
func (o *URLOpener) OpenDatabaseURL(ctx context.Context, u *url.URL) (*docstore.Database, error) {
	if err := openurl.UnknownParams("docstore", "Database", u); err != nil {
		return nil, err
	}
	if o.Transport == nil {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "open database %s: URLOpener has no Transport", u)
	}
	resourceID := path.Join(u.Host, u.Path)
	m := databaseRE.FindStringSubmatch(resourceID)
	if m == nil {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "open database %s: bad resource ID %q; must match %v", u, resourceID, databaseRE)
	}
	opts := o.DatabaseOptions
	return docstore.NewDatabase(o.Transport, m[1], m[2], &opts)
}
