package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	apperrors "github.com/chravel/chravel-import/internal/errors"
	"github.com/chravel/chravel-import/internal/importer/aiextract"
)

const (
	objectPrefix = "object:"
	metaPrefix   = "objmeta:"
)

// ObjectStore keeps uploads for the extraction service in BadgerDB. Entries
// expire after the TTL so an interrupted import cannot leak objects forever.
type ObjectStore struct {
	db       *badger.DB
	baseURL  string
	ttl      time.Duration
	inMemory bool
}

var _ aiextract.ObjectStorage = (*ObjectStore)(nil)

// NewObjectStore creates an object store. Public URLs are built as
// baseURL + "/objects/" + path. A zero ttl means one hour.
func NewObjectStore(db *badger.DB, baseURL string, ttl time.Duration, inMemory bool) *ObjectStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ObjectStore{
		db:       db,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		ttl:      ttl,
		inMemory: inMemory,
	}
}

// Upload stores data under path. Without Upsert an existing object is an
// error.
func (o *ObjectStore) Upload(ctx context.Context, path string, data []byte, opts aiextract.UploadOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path == "" {
		return apperrors.New(apperrors.CodeStore, "empty object path")
	}

	err := o.db.Update(func(txn *badger.Txn) error {
		if !opts.Upsert {
			_, err := txn.Get([]byte(objectPrefix + path))
			if err == nil {
				return fmt.Errorf("object %s already exists", path)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}

		if err := txn.SetEntry(badger.NewEntry([]byte(objectPrefix+path), data).WithTTL(o.ttl)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry([]byte(metaPrefix+path), []byte(opts.ContentType)).WithTTL(o.ttl))
	})
	if err != nil {
		return apperrors.New(apperrors.CodeStore, "failed to store object", err)
	}
	return nil
}

// PublicURL returns the URL the extraction service fetches path from
func (o *ObjectStore) PublicURL(path string) string {
	return o.baseURL + "/objects/" + path
}

// Remove deletes objects. Missing paths are not an error.
func (o *ObjectStore) Remove(ctx context.Context, paths []string) error {
	err := o.db.Update(func(txn *badger.Txn) error {
		for _, p := range paths {
			if err := txn.Delete([]byte(objectPrefix + p)); err != nil {
				return err
			}
			if err := txn.Delete([]byte(metaPrefix + p)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.New(apperrors.CodeStore, "failed to remove objects", err)
	}
	return nil
}

// Get returns an object's bytes and content type
func (o *ObjectStore) Get(path string) ([]byte, string, error) {
	var data []byte
	var contentType string

	err := o.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(objectPrefix + path))
		if err != nil {
			return err
		}
		if data, err = item.ValueCopy(nil); err != nil {
			return err
		}

		meta, err := txn.Get([]byte(metaPrefix + path))
		if err != nil {
			return nil
		}
		return meta.Value(func(v []byte) error {
			contentType = string(v)
			return nil
		})
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, "", apperrors.ErrObjectNotFound
	case err != nil:
		return nil, "", apperrors.New(apperrors.CodeStore, "failed to read object", err)
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// Count returns the number of live objects
func (o *ObjectStore) Count() (int, error) {
	n := 0
	err := o.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(objectPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// CollectGarbage reclaims value log space left by expired and removed
// objects. It returns how many value log files were rewritten.
func (o *ObjectStore) CollectGarbage(discardRatio float64) (int, error) {
	if o.inMemory {
		return 0, nil
	}

	rewritten := 0
	for {
		err := o.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return rewritten, nil
		}
		if err != nil {
			return rewritten, err
		}
		rewritten++
	}
}
