package report

import (
	"fmt"
	"slices"
	"sync"
)

// LRUStore is an in-memory LRU cache of records that delegates to a
// backing Store on miss.
type LRUStore struct {
	mu   sync.Mutex
	cap  int
	back Store

	// most recent at head
	head, tail *lruEntry
	items      map[string]*lruEntry
}

type lruEntry struct {
	key  string
	rec  *Record
	prev *lruEntry
	next *lruEntry
}

// NewLRUStore creates an LRU cache with the given capacity that delegates
// to back on cache misses. Capacity must be >= 1. A nil back keeps
// records in memory only.
func NewLRUStore(cap int, back Store) *LRUStore {
	if cap < 1 {
		cap = 1
	}
	return &LRUStore{
		cap:   cap,
		back:  back,
		items: make(map[string]*lruEntry, cap),
	}
}

// Save writes the record to the LRU cache and delegates to the backing store.
func (s *LRUStore) Save(rec *Record) error {
	s.mu.Lock()
	s.put(rec.ID, rec)
	s.mu.Unlock()

	if s.back == nil {
		return nil
	}
	return s.back.Save(rec)
}

// Load checks the LRU cache first. On miss, loads from the backing store
// and promotes the record into the cache.
func (s *LRUStore) Load(runID string) (*Record, error) {
	s.mu.Lock()
	if e, ok := s.items[runID]; ok {
		s.moveToFront(e)
		r := e.rec
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	if s.back == nil {
		return nil, fmt.Errorf("loading %s: %w", runID, ErrNotFound)
	}
	rec, err := s.back.Load(runID)
	if err != nil {
		return nil, err
	}

	// A concurrent load may already have inserted it; put handles both.
	s.mu.Lock()
	s.put(runID, rec)
	s.mu.Unlock()

	return rec, nil
}

// Lister is implemented by stores that can list their newest records.
type Lister interface {
	Recent(n int) ([]*Record, error)
}

// Recent returns up to n records, newest start time first. It asks the
// backing store when that store can list; otherwise it orders the cache.
func (s *LRUStore) Recent(n int) ([]*Record, error) {
	if l, ok := s.back.(Lister); ok {
		return l.Recent(n)
	}

	s.mu.Lock()
	recs := make([]*Record, 0, len(s.items))
	for e := s.head; e != nil; e = e.next {
		recs = append(recs, e.rec)
	}
	s.mu.Unlock()

	slices.SortStableFunc(recs, func(a, b *Record) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if n < len(recs) {
		recs = recs[:max(n, 0)]
	}
	return recs, nil
}

// put inserts or refreshes key. The caller holds s.mu.
func (s *LRUStore) put(key string, rec *Record) {
	if e, ok := s.items[key]; ok {
		e.rec = rec
		s.moveToFront(e)
		return
	}
	e := &lruEntry{key: key, rec: rec}
	s.items[key] = e
	s.pushFront(e)
	if len(s.items) > s.cap {
		s.evict()
	}
}

func (s *LRUStore) pushFront(e *lruEntry) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *LRUStore) moveToFront(e *lruEntry) {
	if s.head == e {
		return
	}
	s.remove(e)
	s.pushFront(e)
}

func (s *LRUStore) remove(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (s *LRUStore) evict() {
	if s.tail == nil {
		return
	}
	e := s.tail
	s.remove(e)
	delete(s.items, e.key)
}
