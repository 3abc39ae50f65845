package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuemby/shadowd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents")
	bucketSync      = []byte("sync")
)

// BoltStore implements Store using BoltDB as the underlying database.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a shadowd database under
// dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "shadowd.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDocuments, bucketSync} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func documentKey(id types.ShadowIdentity) []byte {
	return []byte(id.String())
}

// GetDocument returns the current document for id.
func (s *BoltStore) GetDocument(id types.ShadowIdentity) (*types.Document, error) {
	var doc types.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		data := b.Get(documentKey(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	doc.Identity = id
	return &doc, nil
}

// PutDocument persists doc as the current state for its identity.
func (s *BoltStore) PutDocument(doc *types.Document) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return b.Put(documentKey(doc.Identity), data)
	})
}

// DeleteDocument replaces the shadow with a tombstone that preserves its
// version rather than removing the record outright.
func (s *BoltStore) DeleteDocument(id types.ShadowIdentity, version int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		tombstone := &types.Document{
			Identity: id,
			Version:  version,
		}
		data, err := json.Marshal(tombstone)
		if err != nil {
			return err
		}
		return b.Put(documentKey(id), data)
	})
}

// ListNamedShadows returns the named shadows stored for thing, in lexical
// order, paged by offset/limit.
func (s *BoltStore) ListNamedShadows(thing types.ThingName, offset, limit int) ([]types.ShadowName, error) {
	prefix := string(thing) + "/"
	var names []string

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		return b.ForEach(func(k, _ []byte) error {
			key := string(k)
			if strings.HasPrefix(key, prefix) {
				names = append(names, strings.TrimPrefix(key, prefix))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(names)
	if offset >= len(names) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(names) {
		end = len(names)
	}

	out := make([]types.ShadowName, 0, end-offset)
	for _, n := range names[offset:end] {
		out = append(out, types.ShadowName(n))
	}
	return out, nil
}

func syncKey(id types.ShadowIdentity) []byte {
	return []byte(id.String())
}

// GetSyncRecord returns the sync bookkeeping record for id, or a
// zero-value record if none has been written yet.
func (s *BoltStore) GetSyncRecord(id types.ShadowIdentity) (*types.SyncRecord, error) {
	rec := &types.SyncRecord{Identity: id}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSync)
		data := b.Get(syncKey(id))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	rec.Identity = id
	return rec, nil
}

// PutSyncRecord persists rec as the current sync bookkeeping for its
// identity.
func (s *BoltStore) PutSyncRecord(rec *types.SyncRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSync)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(syncKey(rec.Identity), data)
	})
}
