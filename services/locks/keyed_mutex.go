package locks

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailpulse/internal/enum"
	"github.com/customeros/mailpulse/internal/tracing"
)

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex serializes work per key inside one process. Entries are dropped
// once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Mode() string {
	return enum.LockModeLocal.String()
}

func (k *KeyedMutex) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "KeyedMutex.WithLock")
	defer span.Finish()
	tracing.TagEntity(span, key)

	entry := k.acquireEntry(key)
	defer k.releaseEntry(key, entry)

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		tracing.TraceErr(span, ctx.Err())
		return ctx.Err()
	}
	defer func() { <-entry.ch }()

	return fn(ctx)
}

func (k *KeyedMutex) acquireEntry(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (k *KeyedMutex) releaseEntry(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}

func (k *KeyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
