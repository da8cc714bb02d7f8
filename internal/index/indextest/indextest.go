// Package indextest provides in-memory fakes of the index backend and the
// paragraph store for tests, with hooks for injecting failures.
package indextest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"parasearch/internal/store"
	apperrors "parasearch/pkg/errors"
	pkgredis "parasearch/pkg/redis"
)

// ErrBackendDown is returned by every MemBackend operation while the backend
// is marked down.
var ErrBackendDown = errors.New("backend down")

// MemBackend is an in-memory index backend with the same semantics as the
// Redis client, including the reverse-lex tie order of top-N counter reads.
type MemBackend struct {
	mu       sync.Mutex
	sets     map[string]map[string]struct{}
	counters map[string]map[string]int64

	down       bool
	failWrites int
}

// NewMemBackend creates an empty healthy backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		sets:     make(map[string]map[string]struct{}),
		counters: make(map[string]map[string]int64),
	}
}

// SetDown marks every subsequent operation as failing (or recovers it).
func (b *MemBackend) SetDown(down bool) {
	b.mu.Lock()
	b.down = down
	b.mu.Unlock()
}

// FailWrites makes the next n SetAddBatch calls fail.
func (b *MemBackend) FailWrites(n int) {
	b.mu.Lock()
	b.failWrites = n
	b.mu.Unlock()
}

func (b *MemBackend) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return ErrBackendDown
	}
	return nil
}

func (b *MemBackend) SetAddBatch(ctx context.Context, member string, setKeys []string, counterKey string, increments map[string]int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return ErrBackendDown
	}
	if b.failWrites > 0 {
		b.failWrites--
		return ErrBackendDown
	}
	for _, key := range setKeys {
		if b.sets[key] == nil {
			b.sets[key] = make(map[string]struct{})
		}
		b.sets[key][member] = struct{}{}
	}
	if b.counters[counterKey] == nil {
		b.counters[counterKey] = make(map[string]int64)
	}
	for word, n := range increments {
		b.counters[counterKey][word] += n
	}
	return nil
}

func (b *MemBackend) SetUnion(ctx context.Context, keys ...string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, ErrBackendDown
	}
	union := make(map[string]struct{})
	for _, key := range keys {
		for m := range b.sets[key] {
			union[m] = struct{}{}
		}
	}
	return setToSlice(union), nil
}

func (b *MemBackend) SetInter(ctx context.Context, keys ...string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, ErrBackendDown
	}
	if len(keys) == 0 {
		return nil, nil
	}
	inter := make(map[string]struct{})
	for m := range b.sets[keys[0]] {
		inter[m] = struct{}{}
	}
	for _, key := range keys[1:] {
		for m := range inter {
			if _, ok := b.sets[key][m]; !ok {
				delete(inter, m)
			}
		}
	}
	return setToSlice(inter), nil
}

func (b *MemBackend) SetCount(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return 0, ErrBackendDown
	}
	return int64(len(b.sets[key])), nil
}

func (b *MemBackend) CounterCard(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return 0, ErrBackendDown
	}
	return int64(len(b.counters[key])), nil
}

func (b *MemBackend) CounterTop(ctx context.Context, key string, n int64) ([]pkgredis.ScoredMember, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, ErrBackendDown
	}
	members := make([]pkgredis.ScoredMember, 0, len(b.counters[key]))
	for word, score := range b.counters[key] {
		members = append(members, pkgredis.ScoredMember{Member: word, Score: score})
	}
	// Redis ZREVRANGE breaks score ties in reverse lexical order.
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member > members[j].Member
	})
	if int64(len(members)) > n {
		members = members[:n]
	}
	return members, nil
}

func (b *MemBackend) CounterMembersAt(ctx context.Context, key string, score int64) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, ErrBackendDown
	}
	var members []string
	for word, s := range b.counters[key] {
		if s == score {
			members = append(members, word)
		}
	}
	return members, nil
}

func (b *MemBackend) CounterScore(ctx context.Context, key string, member string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return 0, ErrBackendDown
	}
	return b.counters[key][member], nil
}

func (b *MemBackend) Del(ctx context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return ErrBackendDown
	}
	for _, key := range keys {
		delete(b.sets, key)
		delete(b.counters, key)
	}
	return nil
}

func (b *MemBackend) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return 0, ErrBackendDown
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var deleted int64
	for key := range b.sets {
		if strings.HasPrefix(key, prefix) {
			delete(b.sets, key)
			deleted++
		}
	}
	return deleted, nil
}

func (b *MemBackend) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return nil, ErrBackendDown
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for key := range b.sets {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	return out
}

// MemStore is an in-memory store.Store.
type MemStore struct {
	mu         sync.Mutex
	paragraphs []store.Paragraph
	down       bool
}

// NewMemStore creates a MemStore seeded with one paragraph per content
// string, ids assigned sequentially from 1.
func NewMemStore(contents ...string) *MemStore {
	s := &MemStore{}
	for _, content := range contents {
		s.paragraphs = append(s.paragraphs, store.Paragraph{
			ID:      int64(len(s.paragraphs) + 1),
			Content: content,
		})
	}
	return s
}

// SetDown makes every subsequent operation fail with ErrStoreUnavailable.
func (s *MemStore) SetDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *MemStore) Insert(ctx context.Context, content string) (*store.Paragraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, apperrors.ErrStoreUnavailable
	}
	p := store.Paragraph{ID: int64(len(s.paragraphs) + 1), Content: content}
	s.paragraphs = append(s.paragraphs, p)
	return &p, nil
}

func (s *MemStore) GetByID(ctx context.Context, id int64) (*store.Paragraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, apperrors.ErrStoreUnavailable
	}
	for _, p := range s.paragraphs {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}
	return nil, apperrors.ErrParagraphNotFound
}

func (s *MemStore) GetByIDs(ctx context.Context, ids []int64) ([]store.Paragraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, apperrors.ErrStoreUnavailable
	}
	var out []store.Paragraph
	for _, p := range s.paragraphs {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (s *MemStore) ScanAll(ctx context.Context, fn func(store.Paragraph) error) error {
	s.mu.Lock()
	if s.down {
		s.mu.Unlock()
		return apperrors.ErrStoreUnavailable
	}
	snapshot := make([]store.Paragraph, len(s.paragraphs))
	copy(snapshot, s.paragraphs)
	s.mu.Unlock()

	for _, p := range snapshot {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, apperrors.ErrStoreUnavailable
	}
	return int64(len(s.paragraphs)), nil
}

var _ store.Store = (*MemStore)(nil)
