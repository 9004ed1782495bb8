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
	"strings"

	"firerest.dev/docstore/driver"
	"firerest.dev/internal/gcerr"
)

// A Reference addresses a collection, a document or the root of a Database.
// Its path has an even number of segments for a document and an odd number
// for a collection; the root has none.
//
// References are immutable.
type Reference struct {
	db   *Database
	path string
}

var _ driver.Referencer = (*Reference)(nil)

func normalizePath(p string) string {
	var segs []string
	for _, s := range strings.Split(strings.TrimSpace(p), "/") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return strings.Join(segs, "/")
}

func (r *Reference) segments() []string {
	if r.path == "" {
		return nil
	}
	return strings.Split(r.path, "/")
}

// Database returns the database the reference belongs to.
func (r *Reference) Database() *Database { return r.db }

// Path returns the path of the reference relative to the document root.
func (r *Reference) Path() string { return r.path }

// ID returns the last segment of the path, or "" for the root.
func (r *Reference) ID() string {
	return r.path[strings.LastIndexByte(r.path, '/')+1:]
}

// IsRoot reports whether r is the document root.
func (r *Reference) IsRoot() bool { return r.path == "" }

// IsCollection reports whether r addresses a collection.
func (r *Reference) IsCollection() bool { return len(r.segments())%2 == 1 }

func (r *Reference) isDocument() bool { return !r.IsRoot() && !r.IsCollection() }

// Name returns the resource name of r.
func (r *Reference) Name() string {
	if r.path == "" {
		return r.db.root
	}
	return r.db.root + "/" + r.path
}

// ResourceName returns the resource name of r. It lets a Reference be stored
// as a field value.
func (r *Reference) ResourceName() string { return r.Name() }

// Endpoint returns the request URL of r.
func (r *Reference) Endpoint() string { return r.db.t.Endpoint() + "/" + r.Name() }

func (r *Reference) String() string { return r.Name() }

var errRootParent = gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: cannot get parent of root")

// Parent returns the reference one level above r.
func (r *Reference) Parent() (*Reference, error) {
	if r.IsRoot() {
		return nil, errRootParent
	}
	return r.up(1), nil
}

// ParentCollection returns the nearest collection above r. For a document
// that is the collection holding it; for a collection it is the collection
// holding its parent document, or the root for a top-level collection.
func (r *Reference) ParentCollection() (*Reference, error) {
	if r.IsRoot() {
		return nil, errRootParent
	}
	if r.IsCollection() {
		return r.up(2), nil
	}
	return r.up(1), nil
}

func (r *Reference) up(n int) *Reference {
	segs := r.segments()
	if n > len(segs) {
		n = len(segs)
	}
	return &Reference{db: r.db, path: strings.Join(segs[:len(segs)-n], "/")}
}

// Child returns a reference to rel below r. One leading slash of rel is
// ignored.
func (r *Reference) Child(rel string) *Reference {
	rel = strings.TrimPrefix(rel, "/")
	return &Reference{db: r.db, path: normalizePath(r.path + "/" + rel)}
}

// Query returns a query over the documents of the collection r.
func (r *Reference) Query() Query {
	return Query{db: r.db}.From(r, false)
}

// Get reads the document r. It returns a NotFound error if it doesn't exist.
func (r *Reference) Get(ctx context.Context) (*Document, error) {
	docs, err := r.db.Transaction().Get(ctx, r)
	if err != nil {
		return nil, err
	}
	if docs[0] == nil {
		return nil, gcerr.Newf(gcerr.NotFound, nil, "docstore: document %q not found", r.path)
	}
	return docs[0], nil
}

// Create writes a new document at r. It fails with AlreadyExists if the
// document exists.
func (r *Reference) Create(ctx context.Context, data map[string]interface{}) error {
	return r.write(ctx, func(tx *Transaction) error { return tx.Create(r, data) })
}

// Set replaces the document at r with data, or merges data into it if
// opts.Merge is set.
func (r *Reference) Set(ctx context.Context, data map[string]interface{}, opts *WriteOptions) error {
	return r.write(ctx, func(tx *Transaction) error { return tx.Set(r, data, opts) })
}

// Update changes the fields of the existing document at r named by data.
func (r *Reference) Update(ctx context.Context, data map[string]interface{}, opts *WriteOptions) error {
	return r.write(ctx, func(tx *Transaction) error { return tx.Update(r, data, opts) })
}

// Delete deletes the document at r. Deleting a missing document is not an
// error unless opts requires it to exist.
func (r *Reference) Delete(ctx context.Context, opts *WriteOptions) error {
	return r.write(ctx, func(tx *Transaction) error { return tx.Delete(r, opts) })
}

func (r *Reference) write(ctx context.Context, queue func(*Transaction) error) error {
	tx := r.db.Transaction()
	if err := queue(tx); err != nil {
		return err
	}
	_, err := tx.Commit(ctx)
	return err
}

// Add creates a document with a generated ID in the collection r, and
// returns its reference.
func (r *Reference) Add(ctx context.Context, data map[string]interface{}) (*Reference, error) {
	if !r.IsCollection() {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: Add on %q, which is not a collection", r.path)
	}
	doc := r.Child(r.db.newID())
	if err := doc.Create(ctx, data); err != nil {
		return nil, err
	}
	return doc, nil
}
