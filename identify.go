package skiff

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skiff-works/skiff/pkg/bucketstore"
	"github.com/skiff-works/skiff/pkg/wirejson"
)

var (
	// The platform allows one identify per 5 seconds per concurrency
	// bucket. A small margin keeps clock skew from tripping the limit.
	StandardIdentifyLimit = 5 * time.Second
	IdentifyRateLimit     = StandardIdentifyLimit + (time.Millisecond * 500)
)

// IdentifyProvider sequences shard identifies across the identify budget.
type IdentifyProvider interface {
	Identify(ctx context.Context, shard *Shard) error
}

// IdentifyViaBuckets sequences identifies with in-process buckets keyed by
// token hash and concurrency bucket. Sufficient for a single process; use
// IdentifyViaURL when multiple processes share one token.
type IdentifyViaBuckets struct {
	bucketStore *bucketstore.BucketStore
}

func NewIdentifyViaBuckets() *IdentifyViaBuckets {
	return &IdentifyViaBuckets{
		bucketStore: bucketstore.NewBucketStore(),
	}
}

func (i *IdentifyViaBuckets) Identify(_ context.Context, shard *Shard) error {
	maxConcurrency := int32(1)
	if gateway := shard.manager.gateway.Load(); gateway != nil && gateway.SessionStartLimit.MaxConcurrency > 0 {
		maxConcurrency = gateway.SessionStartLimit.MaxConcurrency
	}

	bucketName := fmt.Sprintf(
		"identify:%s:%d",
		hashToken(shard.manager.configuration.Load().BotToken),
		shard.shardID%maxConcurrency,
	)

	err := i.bucketStore.CreateWaitForBucket(bucketName, 1, IdentifyRateLimit)
	if err != nil {
		return fmt.Errorf("failed to wait for bucket: %w", err)
	}

	return nil
}

// IdentifyViaURL coordinates identifies through an external endpoint. It
// POSTs shard_id, shard_count, max_concurrency, token and token_hash and
// expects a 200 or 204; any other response is retried after the
// X-Retry-After-Ms header, or the standard limit when absent.
type IdentifyViaURL struct {
	URL     string
	Headers map[string]string

	client *http.Client
}

func NewIdentifyViaURL(url string, headers map[string]string) *IdentifyViaURL {
	return &IdentifyViaURL{
		URL:     url,
		Headers: headers,

		client: http.DefaultClient,
	}
}

func (i *IdentifyViaURL) Identify(ctx context.Context, shard *Shard) error {
	configuration := shard.manager.configuration.Load()
	tokenHash := hashToken(configuration.BotToken)

	maxConcurrency := int32(1)
	if gateway := shard.manager.gateway.Load(); gateway != nil && gateway.SessionStartLimit.MaxConcurrency > 0 {
		maxConcurrency = gateway.SessionStartLimit.MaxConcurrency
	}

	identifyURL := i.URL
	identifyURL = strings.Replace(identifyURL, "{shard_id}", strconv.Itoa(int(shard.shardID)), 1)
	identifyURL = strings.Replace(identifyURL, "{shard_count}", strconv.Itoa(int(shard.manager.shardCount.Load())), 1)
	identifyURL = strings.Replace(identifyURL, "{token}", configuration.BotToken, 1)
	identifyURL = strings.Replace(identifyURL, "{token_hash}", tokenHash, 1)
	identifyURL = strings.Replace(identifyURL, "{max_concurrency}", strconv.Itoa(int(maxConcurrency)), 1)

	identifyPayload := struct {
		ShardID        int    `json:"shard_id"`
		ShardCount     int    `json:"shard_count"`
		MaxConcurrency int    `json:"max_concurrency"`
		Token          string `json:"token"`
		TokenHash      string `json:"token_hash"`
	}{
		ShardID:        int(shard.shardID),
		ShardCount:     int(shard.manager.shardCount.Load()),
		MaxConcurrency: int(maxConcurrency),
		Token:          configuration.BotToken,
		TokenHash:      tokenHash,
	}

	body, err := wirejson.Marshal(identifyPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal identify payload: %w", err)
	}

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, identifyURL, bytes.NewBuffer(body))
		if err != nil {
			return fmt.Errorf("failed to create identify request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")

		for key, value := range i.Headers {
			req.Header.Set(key, value)
		}

		resp, err := i.client.Do(req)

		var retryAfter time.Duration

		if err == nil {
			if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
				resp.Body.Close()

				return nil
			}

			retryAfterHeader := resp.Header.Get("X-Retry-After-Ms")
			retryAfterInt, _ := strconv.Atoi(retryAfterHeader)

			if retryAfterInt > 0 {
				retryAfter = time.Duration(retryAfterInt) * time.Millisecond
			} else {
				retryAfter = StandardIdentifyLimit
			}

			resp.Body.Close()
		} else {
			retryAfter = StandardIdentifyLimit
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
	}
}

func hashToken(token string) string {
	digest := sha256.New()
	digest.Write([]byte(token))

	return hex.EncodeToString(digest.Sum(nil))
}
