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

// Package docstore is a client for a hierarchical document database reached
// over a REST-style transport. Documents live in collections, collections may
// sit below documents, and every field value carries an explicit type tag on
// the wire.
//
// Subpackages provide the transports: gcpfirestore talks to the hosted
// service or its emulator over HTTP, and memdocstore is an in-process,
// in-memory database suitable for testing and development. Open a *Database
// with one of them, or with a URL:
//
//	db, err := docstore.OpenDatabase(ctx, "mem://myproject")
//	if err != nil {
//		return fmt.Errorf("opening database: %v", err)
//	}
//	defer db.Close()
//
// # References and Paths
//
// A Reference addresses the root, a collection or a document by a slash
// separated path relative to the database's document root. Paths with an odd
// number of segments name collections; an even number names documents.
// Database.Ref never fails; Database.Collection and Database.Doc check the
// kind of path.
//
// # Representing Data
//
// A document's record is a map[string]interface{}. Go integers are stored as
// integers and floating-point numbers as doubles. time.Time values are stored
// as timestamps with microsecond precision, []byte as bytes, *latlng.LatLng
// as geographical points and *Reference as references. Slices and maps with
// string keys nest. Structs are not supported.
//
// Records read back use int64, float64, time.Time, string, []byte, bool,
// *latlng.LatLng, *Reference, []interface{} and map[string]interface{}.
//
// # Field Paths
//
// Queries and Document.Get name fields with dotted paths such as "a.b".
// A path component that is not a plain identifier is quoted with backticks,
// as in "a.`b c`".
//
// # Transforms
//
// A field whose value is a *Transform, such as ServerTimestamp() or
// Increment(1), is not written as a value. The service changes the field
// when it applies the write. Transforms may appear at any depth of the
// record's maps, but not inside arrays.
//
// # Transactions
//
// A Transaction queues writes and commits them atomically. Reading a document
// with Transaction.Get makes a later write of the same document conditional
// on it being unchanged. RunTransaction repeats a read-modify-write function
// when such a condition fails.
//
// # Queries
//
// Build a Query with Reference.Query or Database.CollectionGroup, add Where,
// OrderBy, cursor, Offset and Limit clauses, and call Run:
//
//	docs, err := db.Ref("players").Query().
//		Where(docstore.Filter{Path: "score", Op: ">", Value: 10}).
//		OrderBy(docstore.Order{Path: "score", Direction: "desc"}).
//		Limit(5).
//		Run(ctx)
//
// # Errors
//
// The Code function from firerest.dev/gcerrors returns the error code of
// errors returned by this package. Transaction conflicts are NotFound or
// FailedPrecondition.
//
// # OpenTelemetry Integration
//
// Get, Commit, Run and RunTransaction create spans with the global
// OpenTelemetry tracer provider.
package docstore // import "firerest.dev/docstore"
