package memstore

import (
	"sync"

	"github.com/jrsteele09/smart-launch/sessions"
)

var _ sessions.KV = (*KV)(nil)

// KV is a thread-safe in-memory storage tier. It backs tests and the
// discover command, where there is no browser to hold cookies.
type KV struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty in-memory tier.
func New() *KV {
	return &KV{
		values: make(map[string]string),
	}
}

func (kv *KV) Get(key string) (string, bool) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	v, ok := kv.values[key]
	return v, ok
}

func (kv *KV) Set(key, value string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.values[key] = value
}

func (kv *KV) Delete(key string) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.values, key)
}

// Len returns the number of stored keys.
func (kv *KV) Len() int {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	return len(kv.values)
}

// Snapshot returns a copy of every stored value.
func (kv *KV) Snapshot() map[string]string {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	out := make(map[string]string, len(kv.values))
	for k, v := range kv.values {
		out[k] = v
	}
	return out
}
