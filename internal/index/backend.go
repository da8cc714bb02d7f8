package index

import (
	"context"

	pkgredis "parasearch/pkg/redis"
)

// Backend is the primitive surface the index cache needs from its backing
// store: set-add batched with counter increments, set algebra, top-N counter
// reads, and a liveness probe. pkg/redis implements it over Redis SETs and a
// ZSET; tests substitute an in-memory implementation.
type Backend interface {
	Ping(ctx context.Context) error

	// SetAddBatch must apply the whole write or none of it.
	SetAddBatch(ctx context.Context, member string, setKeys []string, counterKey string, increments map[string]int64) error

	SetUnion(ctx context.Context, keys ...string) ([]string, error)
	SetInter(ctx context.Context, keys ...string) ([]string, error)
	SetCount(ctx context.Context, key string) (int64, error)

	CounterCard(ctx context.Context, key string) (int64, error)
	CounterTop(ctx context.Context, key string, n int64) ([]pkgredis.ScoredMember, error)
	CounterMembersAt(ctx context.Context, key string, score int64) ([]string, error)
	CounterScore(ctx context.Context, key string, member string) (int64, error)

	Del(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

var _ Backend = (*pkgredis.Client)(nil)
