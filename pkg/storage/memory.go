package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/shadowd/pkg/types"
)

// MemoryStore implements Store over a plain map, for tests and for
// embedding shadowd without a bbolt data directory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*types.Document
	sync map[string]*types.SyncRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*types.Document),
		sync: make(map[string]*types.SyncRecord),
	}
}

func (s *MemoryStore) GetDocument(id types.ShadowIdentity) (*types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id.String()]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *MemoryStore) PutDocument(doc *types.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *doc
	s.docs[doc.Identity.String()] = &copied
	return nil
}

func (s *MemoryStore) DeleteDocument(id types.ShadowIdentity, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[id.String()] = &types.Document{Identity: id, Version: version}
	return nil
}

func (s *MemoryStore) ListNamedShadows(thing types.ThingName, offset, limit int) ([]types.ShadowName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := string(thing) + "/"
	var names []string
	for key := range s.docs {
		if strings.HasPrefix(key, prefix) {
			names = append(names, strings.TrimPrefix(key, prefix))
		}
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

func (s *MemoryStore) GetSyncRecord(id types.ShadowIdentity) (*types.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sync[id.String()]
	if !ok {
		return &types.SyncRecord{Identity: id}, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) PutSyncRecord(rec *types.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.sync[rec.Identity.String()] = &copied
	return nil
}

func (s *MemoryStore) Close() error { return nil }
