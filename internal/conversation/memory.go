package conversation

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// MemoryStore accumulates partially-extracted booking fields per subject
// address. Implementations must isolate subjects from each other and expire
// abandoned conversations after the configured staleness horizon.
type MemoryStore interface {
	Get(ctx context.Context, subject string) (ExtractedFields, error)
	Merge(ctx context.Context, subject string, newer ExtractedFields) (ExtractedFields, error)
	Reset(ctx context.Context, subject string) error
}

const memoryShards = 16

type memoryEntry struct {
	fields    ExtractedFields
	expiresAt time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// InMemoryStore is a sharded in-process MemoryStore. Shard locking keeps
// distinct subjects from serializing on a single mutex.
type InMemoryStore struct {
	shards [memoryShards]*memoryShard
	ttl    time.Duration
	now    func() time.Time
}

// NewInMemoryStore creates an in-process memory store with the given
// staleness TTL. A non-positive TTL disables expiry.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	s := &InMemoryStore{ttl: ttl, now: time.Now}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[string]memoryEntry)}
	}
	return s
}

func (s *InMemoryStore) shard(subject string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subject))
	return s.shards[h.Sum32()%memoryShards]
}

// Get returns the accumulated fields for a subject, zero when absent or stale.
func (s *InMemoryStore) Get(_ context.Context, subject string) (ExtractedFields, error) {
	sh := s.shard(subject)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[subject]
	if !ok {
		return ExtractedFields{}, nil
	}
	if s.ttl > 0 && s.now().After(entry.expiresAt) {
		delete(sh.entries, subject)
		return ExtractedFields{}, nil
	}
	return entry.fields, nil
}

// Merge overlays newer onto the stored fields and returns the merged record.
// Each merge refreshes the staleness horizon.
func (s *InMemoryStore) Merge(_ context.Context, subject string, newer ExtractedFields) (ExtractedFields, error) {
	sh := s.shard(subject)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.now()
	entry, ok := sh.entries[subject]
	if ok && s.ttl > 0 && now.After(entry.expiresAt) {
		entry = memoryEntry{}
	}
	merged := entry.fields.Merge(newer)
	sh.entries[subject] = memoryEntry{
		fields:    merged,
		expiresAt: now.Add(s.ttl),
	}
	return merged, nil
}

// Reset discards a subject's accumulated fields. Called when a booking is
// confirmed or cancelled.
func (s *InMemoryStore) Reset(_ context.Context, subject string) error {
	sh := s.shard(subject)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.entries, subject)
	return nil
}
