package bucketstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForMissingBucket(t *testing.T) {
	bs := NewBucketStore()

	assert.ErrorIs(t, bs.WaitForBucket("missing"), ErrNoSuchBucket)
}

func TestCreateBucketKeepsExisting(t *testing.T) {
	bs := NewBucketStore()

	first := bs.CreateBucket("identify", 1, time.Second)
	second := bs.CreateBucket("identify", 99, time.Hour)

	assert.Same(t, first, second)
}

func TestCreateWaitForBucket(t *testing.T) {
	bs := NewBucketStore()

	require.NoError(t, bs.CreateWaitForBucket("identify", 2, time.Second))
	require.NoError(t, bs.WaitForBucket("identify"))
}

func TestBucketEnforcesAllowance(t *testing.T) {
	bs := NewBucketStore()

	window := 50 * time.Millisecond

	require.NoError(t, bs.CreateWaitForBucket("identify", 1, window))

	start := time.Now()
	require.NoError(t, bs.CreateWaitForBucket("identify", 1, window))

	assert.GreaterOrEqual(t, time.Since(start), window/2)
}
