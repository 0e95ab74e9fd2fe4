package bucketstore

import (
	"errors"
	"sync"
	"time"

	"github.com/skiff-works/skiff/pkg/limiter"
)

// ErrNoSuchBucket is returned when a bucket was requested that does not
// exist. Use CreateWaitForBucket to create missing buckets on demand.
var ErrNoSuchBucket = errors.New("bucket does not exist")

// BucketStore manages named duration limiters.
type BucketStore struct {
	mu      sync.RWMutex
	buckets map[string]*limiter.DurationLimiter
}

// NewBucketStore creates an empty bucket store.
func NewBucketStore() *BucketStore {
	return &BucketStore{
		buckets: make(map[string]*limiter.DurationLimiter),
	}
}

// CreateBucket creates a bucket with the given allowance, keeping any
// existing bucket with the same name.
func (bs *BucketStore) CreateBucket(name string, limit int32, duration time.Duration) *limiter.DurationLimiter {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bucket, ok := bs.buckets[name]; ok {
		return bucket
	}

	bucket := limiter.NewDurationLimiter(limit, duration)
	bs.buckets[name] = bucket

	return bucket
}

// WaitForBucket blocks until the named bucket grants a slot.
func (bs *BucketStore) WaitForBucket(name string) error {
	bs.mu.RLock()
	bucket, ok := bs.buckets[name]
	bs.mu.RUnlock()

	if !ok {
		return ErrNoSuchBucket
	}

	bucket.Lock()

	return nil
}

// CreateWaitForBucket creates the bucket if missing, then waits on it.
func (bs *BucketStore) CreateWaitForBucket(name string, limit int32, duration time.Duration) error {
	bs.mu.RLock()
	bucket, ok := bs.buckets[name]
	bs.mu.RUnlock()

	if !ok {
		bucket = bs.CreateBucket(name, limit, duration)
	}

	bucket.Lock()

	return nil
}
