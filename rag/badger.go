package rag

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/agentlab/core"
	"github.com/hupe1980/agentlab/logging"
	"github.com/vmihailenco/msgpack/v5"
)

// keyPrefix + namespace + keySep + id
const (
	keyPrefix = "doc:"
	keySep    = "\x00"
)

// BadgerOptions configures a BadgerIndex.
type BadgerOptions struct {
	// Dir is the directory for badger data files. Required unless InMemory.
	Dir string
	// InMemory runs badger without disk persistence.
	InMemory bool
	Logger   logging.Logger
}

// BadgerIndex is a Retriever persisted in BadgerDB. Documents are stored
// msgpack-encoded; retrieval scans the namespace prefix.
type BadgerIndex struct {
	db     *badger.DB
	logger logging.Logger
}

// NewBadgerIndex opens the index.
func NewBadgerIndex(optFns ...func(o *BadgerOptions)) (*BadgerIndex, error) {
	opts := BadgerOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("rag: BadgerOptions.Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{opts.Logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerIndex{db: db, logger: opts.Logger}, nil
}

func nsPrefix(namespace string) []byte {
	return []byte(keyPrefix + namespace + keySep)
}

func docKey(namespace, id string) []byte {
	return append(nsPrefix(namespace), id...)
}

// Add stores docs under namespace, replacing documents with the same ID.
func (x *BadgerIndex) Add(_ context.Context, namespace string, docs ...core.Document) error {
	wb := x.db.NewWriteBatch()
	defer wb.Cancel()
	for _, d := range docs {
		if d.ID == "" {
			return core.NewValidationError("id", d.ID, "document id must not be empty")
		}
		val, err := msgpack.Marshal(withNamespace(d, namespace))
		if err != nil {
			return fmt.Errorf("encode document %s: %w", d.ID, err)
		}
		if err := wb.Set(docKey(namespace, d.ID), val); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}
	x.logger.Debug("rag.index.add", "namespace", namespace, "documents", len(docs))
	return nil
}

// Get returns a single document.
func (x *BadgerIndex) Get(_ context.Context, namespace, id string) (core.Document, bool, error) {
	var d core.Document
	err := x.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(namespace, id))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return msgpack.Unmarshal(val, &d)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return core.Document{}, false, nil
	}
	if err != nil {
		return core.Document{}, false, err
	}
	return d, true, nil
}

// Delete removes a document. Unknown IDs are ignored.
func (x *BadgerIndex) Delete(_ context.Context, namespace, id string) error {
	err := x.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(namespace, id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Retrieve implements Retriever.
func (x *BadgerIndex) Retrieve(ctx context.Context, query string, topK int, namespace string) ([]core.Document, error) {
	r := newRanker(query)
	prefix := nsPrefix(namespace)

	err := x.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var d core.Document
			if err := msgpack.Unmarshal(val, &d); err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
			r.offer(d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.top(topK), nil
}

// Close closes the database.
func (x *BadgerIndex) Close() error {
	return x.db.Close()
}

// badgerLogger routes badger warnings and errors to a logging.Logger and
// drops its info and debug chatter.
type badgerLogger struct {
	l logging.Logger
}

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Error("rag.badger", "message", fmt.Sprintf(f, v...)) }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warn("rag.badger", "message", fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}
