package bucketing

import (
	"hash"
	"sync"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"haruup-service/internal/config"
)

// BucketingManager spreads members over a fixed number of partition buckets.
type BucketingManager struct {
	memberBuckets int
	hasherPool    sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	buckets := cfg.Bucketing.MemberBuckets
	if buckets <= 0 {
		buckets = 1
	}
	bm := &BucketingManager{memberBuckets: buckets}

	// Create pool of hash functions to avoid allocation overhead
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return bm
}

// GetMemberBucket returns a stable bucket in [0, memberBuckets).
func (bm *BucketingManager) GetMemberBucket(memberID uuid.UUID) int {
	return int(bm.getHash(memberID[:]) % uint64(bm.memberBuckets))
}

func (bm *BucketingManager) MemberBuckets() int {
	return bm.memberBuckets
}

func (bm *BucketingManager) getHash(key []byte) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write(key)
	return hasher.Sum64()
}
