package skiff

import (
	"context"
	"sync"
	"time"
)

// DedupeProvider guards against an event being processed twice, which can
// happen when a resume replays a window that was already partially
// delivered. Deduplicate returns false when the key was already seen.
type DedupeProvider interface {
	Deduplicate(ctx context.Context, key string, ttl time.Duration) bool
	Release(ctx context.Context, key string)
}

// noopDedupeProvider always lets events through.
type noopDedupeProvider struct{}

func NewNoopDedupeProvider() *noopDedupeProvider {
	return &noopDedupeProvider{}
}

func (n *noopDedupeProvider) Deduplicate(_ context.Context, _ string, _ time.Duration) bool {
	return true
}

func (n *noopDedupeProvider) Release(_ context.Context, _ string) {}

// inMemoryDedupeProvider tracks keys and their expiry in a map, with a
// periodic sweep so the map stays bounded.
type inMemoryDedupeProvider struct {
	keys map[string]time.Time
	mu   sync.Mutex
}

func NewInMemoryDedupeProvider() *inMemoryDedupeProvider {
	p := &inMemoryDedupeProvider{
		keys: make(map[string]time.Time),
	}

	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			p.cleanup()
		}
	}()

	return p
}

func (p *inMemoryDedupeProvider) Deduplicate(_ context.Context, key string, ttl time.Duration) bool {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if expiry, ok := p.keys[key]; ok && now.Before(expiry) {
		return false
	}

	p.keys[key] = now.Add(ttl)

	return true
}

func (p *inMemoryDedupeProvider) Release(_ context.Context, key string) {
	p.mu.Lock()
	delete(p.keys, key)
	p.mu.Unlock()
}

func (p *inMemoryDedupeProvider) cleanup() {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for key, expiry := range p.keys {
		if now.After(expiry) {
			delete(p.keys, key)
		}
	}
}
