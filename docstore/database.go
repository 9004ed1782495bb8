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
	"fmt"
	"runtime"
	"strings"
	"sync"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/docstore/driver"
	"firerest.dev/internal/gcerr"
	"firerest.dev/internal/otel"
	"go.uber.org/zap"
)

const pkgName = "firerest.dev/docstore"

// DefaultDatabase is the ID of the database every project has.
const DefaultDatabase = "(default)"

// DefaultMaxAttempts is the number of attempts RunTransaction makes when no
// other limit is configured.
const DefaultMaxAttempts = 5

// Options configures a Database.
type Options struct {
	// Logger receives debug logs of transaction attempts and commits.
	// If nil, nothing is logged.
	Logger *zap.Logger

	// NewID generates the IDs of documents created with Reference.Add.
	// If nil, driver.UniqueID is used.
	NewID func() string

	// MaxAttempts is the default attempt budget of RunTransaction.
	// If zero, DefaultMaxAttempts is used.
	MaxAttempts int
}

// A Database is the context shared by references, documents, queries and
// transactions: the transport used to reach the service and the resource name
// of the database's document root.
type Database struct {
	t        driver.Transport
	project  string
	id       string
	root     string
	logger   *zap.Logger
	newID    func() string
	attempts int
	tracer   *otel.Tracer

	mu     sync.Mutex
	closed bool
}

// NewDatabase returns a Database for the given project and database ID,
// reached through t. An empty database ID means DefaultDatabase.
func NewDatabase(t driver.Transport, project, database string, opts *Options) (*Database, error) {
	if t == nil {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: nil transport")
	}
	if project == "" || strings.Contains(project, "/") {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: bad project ID %q", project)
	}
	if database == "" {
		database = DefaultDatabase
	}
	if strings.Contains(database, "/") {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: bad database ID %q", database)
	}
	if opts == nil {
		opts = &Options{}
	}
	db := &Database{
		t:        t,
		project:  project,
		id:       database,
		root:     fmt.Sprintf("projects/%s/databases/%s/documents", project, database),
		logger:   opts.Logger,
		newID:    opts.NewID,
		attempts: opts.MaxAttempts,
		tracer:   otel.NewTracer(pkgName, otel.ProviderName(t)),
	}
	if db.logger == nil {
		db.logger = zap.NewNop()
	}
	if db.newID == nil {
		db.newID = driver.UniqueID
	}
	if db.attempts <= 0 {
		db.attempts = DefaultMaxAttempts
	}
	_, file, lineno, ok := runtime.Caller(1)
	runtime.SetFinalizer(db, func(db *Database) {
		db.mu.Lock()
		closed := db.closed
		db.mu.Unlock()
		if !closed {
			var caller string
			if ok {
				caller = fmt.Sprintf("%s:%d", file, lineno)
			}
			db.logger.Warn("a docstore.Database was never closed", zap.String("caller", caller))
		}
	})
	return db, nil
}

// ProjectID returns the ID of the project the database belongs to.
func (db *Database) ProjectID() string { return db.project }

// ID returns the database ID.
func (db *Database) ID() string { return db.id }

// Name returns the resource name of the database, of the form
// "projects/P/databases/D".
func (db *Database) Name() string { return strings.TrimSuffix(db.root, "/documents") }

// RootPath returns the resource name of the database's document root.
// Every document name starts with it.
func (db *Database) RootPath() string { return db.root }

// Endpoint returns the request URL of the document root.
func (db *Database) Endpoint() string { return db.t.Endpoint() + "/" + db.root }

// Ref returns a reference to path, which may name a collection, a document
// or, if empty, the root. Leading, trailing and repeated slashes and
// surrounding whitespace are ignored.
func (db *Database) Ref(path string) *Reference {
	return &Reference{db: db, path: normalizePath(path)}
}

// Collection is like Ref, but returns an error if path does not name a
// collection.
func (db *Database) Collection(path string) (*Reference, error) {
	r := db.Ref(path)
	if !r.IsCollection() {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: %q is not a collection", path)
	}
	return r, nil
}

// Doc is like Ref, but returns an error if path does not name a document.
func (db *Database) Doc(path string) (*Reference, error) {
	r := db.Ref(path)
	if !r.isDocument() {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: %q is not a document", path)
	}
	return r, nil
}

// CollectionGroup returns a query over every collection in the database
// whose ID is collectionID.
func (db *Database) CollectionGroup(collectionID string) Query {
	q := Query{db: db, parent: db.Ref("")}
	if collectionID == "" || strings.Contains(collectionID, "/") {
		q.err = gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: bad collection ID %q", collectionID)
		return q
	}
	q.collectionID = collectionID
	q.allDescendants = true
	return q
}

// Transaction returns a new, empty transaction.
func (db *Database) Transaction() *Transaction {
	return &Transaction{db: db, preconditions: map[string]*pb.Precondition{}}
}

var errClosed = gcerr.Newf(gcerr.FailedPrecondition, nil, "docstore: Database has been closed")

// Close releases the transport.
func (db *Database) Close() error {
	db.mu.Lock()
	prev := db.closed
	db.closed = true
	db.mu.Unlock()
	if prev {
		return errClosed
	}
	return wrapError(db.t.Close())
}

func (db *Database) checkClosed() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errClosed
	}
	return nil
}

// decodeReference turns a reference value into a *Reference when it names a
// document of this database. Names from elsewhere are kept as strings.
func (db *Database) decodeReference(name string) (interface{}, error) {
	if rel, ok := db.relativePath(name); ok {
		return db.Ref(rel), nil
	}
	return name, nil
}

// relativePath strips the document root from name.
func (db *Database) relativePath(name string) (string, bool) {
	if name == db.root {
		return "", true
	}
	if strings.HasPrefix(name, db.root+"/") {
		return name[len(db.root)+1:], true
	}
	return "", false
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if gcerr.DoNotWrap(err) {
		return err
	}
	if _, ok := err.(*gcerr.Error); ok {
		return err
	}
	return gcerr.New(gcerr.Unknown, err, 2, "docstore")
}
