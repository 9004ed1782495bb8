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
	"time"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/docstore/driver"
	"firerest.dev/internal/gcerr"
)

// A Document is a document read from a Database.
//
// Its record, returned by Data, belongs to the caller and may be changed
// before it is written back. A separate snapshot of the record as it was read
// is kept for Diff. The document's identity and timestamps never change.
type Document struct {
	ref        *Reference
	name       string
	createTime time.Time
	updateTime time.Time
	data       map[string]interface{}
	baseline   map[string]interface{}
}

// NewDocument decodes a wire document read from db.
//
// The document must carry its name, createTime and updateTime. Lacking any
// one of them is an Internal error, not only lacking all three: documents
// returned by BatchGetDocuments and RunQuery always have all of them, so a
// partial document means the response is malformed.
func NewDocument(db *Database, d *pb.Document) (*Document, error) {
	if db == nil {
		return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: NewDocument with nil Database")
	}
	if d == nil || d.Name == "" || d.CreateTime == nil || d.UpdateTime == nil {
		return nil, gcerr.Newf(gcerr.Internal, nil, "docstore: wire document lacks name, createTime or updateTime: %v", d)
	}
	rel, ok := db.relativePath(d.Name)
	if !ok {
		return nil, gcerr.Newf(gcerr.Internal, nil, "docstore: document %q is not under %q", d.Name, db.root)
	}
	ref := db.Ref(rel)
	if !ref.isDocument() {
		return nil, gcerr.Newf(gcerr.Internal, nil, "docstore: %q is not a document name", d.Name)
	}
	if err := d.CreateTime.CheckValid(); err != nil {
		return nil, gcerr.Newf(gcerr.Internal, err, "docstore: bad createTime in %q", d.Name)
	}
	if err := d.UpdateTime.CheckValid(); err != nil {
		return nil, gcerr.Newf(gcerr.Internal, err, "docstore: bad updateTime in %q", d.Name)
	}
	data, err := driver.DecodeFields(d.Fields, db.decodeReference)
	if err != nil {
		return nil, err
	}
	return &Document{
		ref:        ref,
		name:       d.Name,
		createTime: d.CreateTime.AsTime(),
		updateTime: d.UpdateTime.AsTime(),
		data:       data,
		baseline:   driver.Copy(data).(map[string]interface{}),
	}, nil
}

// ID returns the last segment of the document's path.
func (d *Document) ID() string { return d.ref.ID() }

// Path returns the document's path relative to the document root.
func (d *Document) Path() string { return d.ref.Path() }

// Name returns the document's resource name.
func (d *Document) Name() string { return d.name }

// Ref returns a reference to the document.
func (d *Document) Ref() *Reference { return d.ref }

// CreateTime returns the time the document was created.
func (d *Document) CreateTime() time.Time { return d.createTime }

// UpdateTime returns the time the document was last changed.
func (d *Document) UpdateTime() time.Time { return d.updateTime }

// Data returns the document's record.
func (d *Document) Data() map[string]interface{} { return d.data }

// Get returns the value of the record at fieldPath, a dotted path.
// It returns a NotFound error if there is no such field.
func (d *Document) Get(fieldPath string) (interface{}, error) {
	fp, err := driver.ParseFieldPath(fieldPath)
	if err != nil {
		return nil, err
	}
	v, ok := driver.GetAtFieldPath(d.data, fp)
	if !ok {
		return nil, gcerr.Newf(gcerr.NotFound, nil, "docstore: no field %q in %q", fieldPath, d.ref.path)
	}
	return v, nil
}

// Diff returns the part of the record that differs from what was read.
func (d *Document) Diff() map[string]interface{} {
	return driver.Diff(d.data, d.baseline)
}

// FieldsMask returns the sorted field paths of the leaves of diff, such as
// the result of Diff, for use as an update mask.
func (d *Document) FieldsMask(diff map[string]interface{}) []string {
	return driver.FieldsMask(diff)
}
