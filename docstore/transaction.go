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
	"time"

	pb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"firerest.dev/docstore/driver"
	"firerest.dev/gcerrors"
	"firerest.dev/internal/gcerr"
	"firerest.dev/internal/retry"
	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	tspb "google.golang.org/protobuf/types/known/timestamppb"
)

// WriteOptions changes how a single write is applied.
type WriteOptions struct {
	// Precondition, if set, replaces any precondition recorded by an earlier
	// read of the document and the write's default precondition.
	Precondition *pb.Precondition

	// Merge makes Set change only the fields present in its data instead of
	// replacing the whole document.
	Merge bool
}

// Exists returns a precondition that the document exists (or not).
func Exists(exists bool) *pb.Precondition {
	return &pb.Precondition{ConditionType: &pb.Precondition_Exists{Exists: exists}}
}

// LastUpdateTime returns a precondition that the document was last changed at t.
func LastUpdateTime(t time.Time) *pb.Precondition {
	return &pb.Precondition{ConditionType: &pb.Precondition_UpdateTime{UpdateTime: tspb.New(t)}}
}

// A Transaction collects writes and commits them atomically. Documents read
// with Get are guarded: a later write of the same document carries a
// precondition that the document is unchanged since the read.
//
// A Transaction is not safe for concurrent use.
type Transaction struct {
	db            *Database
	writes        []*pb.Write
	preconditions map[string]*pb.Precondition
}

// Get reads the documents refs in one request. The result holds one entry
// per ref, nil for documents that don't exist.
func (tx *Transaction) Get(ctx context.Context, refs ...*Reference) (_ []*Document, err error) {
	ctx, span := tx.db.tracer.Start(ctx, "Transaction.Get")
	defer func() { tx.db.tracer.End(span, err) }()

	if err := tx.db.checkClosed(); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}
	names := make([]string, len(refs))
	for i, r := range refs {
		if r == nil || !r.isDocument() {
			return nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: Get of %v, which is not a document", r)
		}
		names[i] = r.Name()
	}
	resps, err := tx.db.t.BatchGetDocuments(ctx, &pb.BatchGetDocumentsRequest{
		Database:  tx.db.Name(),
		Documents: names,
	})
	if err != nil {
		return nil, wrapError(err)
	}
	found := map[string]*Document{}
	for _, r := range resps {
		switch res := r.Result.(type) {
		case *pb.BatchGetDocumentsResponse_Found:
			d, err := NewDocument(tx.db, res.Found)
			if err != nil {
				return nil, err
			}
			found[d.Name()] = d
			tx.preconditions[d.Name()] = &pb.Precondition{
				ConditionType: &pb.Precondition_UpdateTime{UpdateTime: res.Found.UpdateTime},
			}
		case *pb.BatchGetDocumentsResponse_Missing:
			tx.preconditions[res.Missing] = Exists(false)
		default:
			return nil, gcerr.Newf(gcerr.Internal, nil, "docstore: batch get response with no result")
		}
	}
	docs := make([]*Document, len(refs))
	for i, n := range names {
		docs[i] = found[n]
		if _, ok := tx.preconditions[n]; !ok {
			// The service answered for every name it was asked about.
			return nil, gcerr.Newf(gcerr.Internal, nil, "docstore: no result for %q", n)
		}
	}
	return docs, nil
}

type writeKind int

const (
	createWrite writeKind = iota
	setWrite
	updateWrite
)

// Create queues the creation of a document. target is a path string, a
// *Reference or a *Document. For a *Document target with nil data, the
// document's current record is written.
func (tx *Transaction) Create(target interface{}, data map[string]interface{}) error {
	return tx.write(createWrite, target, data, nil)
}

// Set queues replacing a document, or with opts.Merge, changing just the
// fields in data. The document is created if it doesn't exist.
func (tx *Transaction) Set(target interface{}, data map[string]interface{}, opts *WriteOptions) error {
	return tx.write(setWrite, target, data, opts)
}

// Update queues changing the fields in data of an existing document.
func (tx *Transaction) Update(target interface{}, data map[string]interface{}, opts *WriteOptions) error {
	return tx.write(updateWrite, target, data, opts)
}

// Delete queues deleting a document.
func (tx *Transaction) Delete(target interface{}, opts *WriteOptions) error {
	name, _, err := tx.resolve(target)
	if err != nil {
		return err
	}
	w := &pb.Write{Operation: &pb.Write_Delete{Delete: name}}
	w.CurrentDocument = tx.precondition(name, opts, nil)
	tx.writes = append(tx.writes, w)
	return nil
}

// resolve returns the resource name of target, and its record when target is
// a *Document.
func (tx *Transaction) resolve(target interface{}) (string, map[string]interface{}, error) {
	var ref *Reference
	var record map[string]interface{}
	switch t := target.(type) {
	case string:
		ref = tx.db.Ref(t)
	case *Reference:
		ref = t
	case *Document:
		if t == nil {
			return "", nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: nil *Document target")
		}
		ref, record = t.ref, t.data
	default:
		return "", nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: write target of type %T; want string, *Reference or *Document", target)
	}
	if ref == nil || !ref.isDocument() {
		return "", nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: write target %v is not a document", ref)
	}
	if ref.db != tx.db {
		return "", nil, gcerr.Newf(gcerr.InvalidArgument, nil, "docstore: write target %v belongs to another Database", ref)
	}
	return ref.Name(), record, nil
}

// precondition picks the precondition of a write of name: the explicit one,
// else the one recorded by a read, else def.
func (tx *Transaction) precondition(name string, opts *WriteOptions, def *pb.Precondition) *pb.Precondition {
	if opts != nil && opts.Precondition != nil {
		return opts.Precondition
	}
	if p, ok := tx.preconditions[name]; ok {
		return p
	}
	return def
}

func (tx *Transaction) write(kind writeKind, target interface{}, data map[string]interface{}, opts *WriteOptions) error {
	name, record, err := tx.resolve(target)
	if err != nil {
		return err
	}
	if data == nil {
		data = record
	}
	var transforms []*pb.DocumentTransform_FieldTransform
	fields, err := driver.EncodeDocument(data, &transforms)
	if err != nil {
		return err
	}
	w := &pb.Write{Operation: &pb.Write_Update{Update: &pb.Document{Name: name, Fields: fields}}}
	var def *pb.Precondition
	switch kind {
	case createWrite:
		def = Exists(false)
	case updateWrite:
		def = Exists(true)
		w.UpdateMask = &pb.DocumentMask{FieldPaths: driver.FieldsMask(data)}
	case setWrite:
		if opts != nil && opts.Merge {
			w.UpdateMask = &pb.DocumentMask{FieldPaths: driver.FieldsMask(data)}
		}
	}
	w.CurrentDocument = tx.precondition(name, opts, def)
	tx.writes = append(tx.writes, w)
	if len(transforms) > 0 {
		tx.writes = append(tx.writes, &pb.Write{Operation: &pb.Write_Transform{
			Transform: &pb.DocumentTransform{Document: name, FieldTransforms: transforms},
		}})
	}
	return nil
}

// Writes returns the writes queued so far.
func (tx *Transaction) Writes() []*pb.Write {
	return append([]*pb.Write(nil), tx.writes...)
}

// Commit applies the queued writes atomically and returns their results, one
// per queued write. Afterwards the transaction is empty and forgets its reads,
// whether or not the commit succeeded.
func (tx *Transaction) Commit(ctx context.Context) (_ []*pb.WriteResult, err error) {
	ctx, span := tx.db.tracer.Start(ctx, "Transaction.Commit")
	defer func() { tx.db.tracer.End(span, err) }()

	writes := tx.writes
	tx.writes = nil
	tx.preconditions = map[string]*pb.Precondition{}

	if err := tx.db.checkClosed(); err != nil {
		return nil, err
	}
	res, err := tx.db.t.Commit(ctx, &pb.CommitRequest{Database: tx.db.Name(), Writes: writes})
	if err != nil {
		tx.db.logger.Debug("commit failed", zap.Int("writes", len(writes)), zap.Error(err))
		return nil, wrapError(err)
	}
	tx.db.logger.Debug("commit", zap.Int("writes", len(writes)), zap.Time("commitTime", res.GetCommitTime().AsTime()))
	return res.WriteResults, nil
}

// TransactionOptions configures RunTransaction.
type TransactionOptions struct {
	// MaxAttempts is the number of times the transaction is tried, counting
	// the first. If zero, the Database's default is used.
	MaxAttempts int

	// Backoff controls the pause between attempts. The zero value means a
	// short exponential backoff.
	Backoff gax.Backoff
}

var defaultBackoff = gax.Backoff{
	Initial:    100 * time.Millisecond,
	Max:        5 * time.Second,
	Multiplier: 2,
}

// userError marks an error returned by the function run in a transaction,
// so that it is never retried.
type userError struct{ err error }

func (e *userError) Error() string { return e.err.Error() }
func (e *userError) Unwrap() error { return e.err }

// RunTransaction calls f with a new Transaction and commits the writes f
// queued. If the commit fails because a document was not found or a
// precondition failed, which means a document f read was changed
// concurrently, the whole attempt is repeated with a fresh Transaction, up to
// the attempt budget. Any other error, including one returned by f, ends
// RunTransaction at once.
func (db *Database) RunTransaction(ctx context.Context, f func(context.Context, *Transaction) error, opts *TransactionOptions) (err error) {
	ctx, span := db.tracer.Start(ctx, "RunTransaction")
	defer func() { db.tracer.End(span, err) }()

	if err := db.checkClosed(); err != nil {
		return err
	}
	if opts == nil {
		opts = &TransactionOptions{}
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = db.attempts
	}
	bo := opts.Backoff
	if bo == (gax.Backoff{}) {
		bo = defaultBackoff
	}
	err = retry.Call(ctx, bo, attempts, isConflict, func(attempt int) error {
		tx := db.Transaction()
		if err := f(ctx, tx); err != nil {
			return &userError{err}
		}
		_, err := tx.Commit(ctx)
		if err != nil {
			db.logger.Debug("transaction attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Int("maxAttempts", attempts),
				zap.Stringer("code", gcerrors.Code(err)),
				zap.Error(err))
		}
		return err
	})
	var ue *userError
	if xerrors.As(err, &ue) {
		return ue.err
	}
	return err
}

// isConflict reports whether err means a transaction lost a race and may
// succeed if tried again.
func isConflict(err error) bool {
	var ue *userError
	if xerrors.As(err, &ue) || xerrors.Is(err, errClosed) {
		return false
	}
	switch gcerrors.Code(err) {
	case gcerrors.NotFound, gcerrors.FailedPrecondition:
		return true
	}
	return false
}
