package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// fastPathEntry remembers which store record resolved a raw query and how.
// It deliberately holds no copy of the answer: on a hit the result is
// rebuilt from the live record, so an overwrite or eviction is never masked
// by this layer.
type fastPathEntry struct {
	fingerprint   string
	similarity    float64
	viaSimilarity bool
}

// fastPath is a small bounded recency cache keyed by the raw
// (question, contextTag) pair. It short-circuits normalization, hashing and
// similarity scanning for literal repeat queries. Purely an optimization:
// size zero disables it and every lookup falls through to the store.
type fastPath struct {
	cache *lru.Cache
}

func newFastPath(size int) *fastPath {
	if size <= 0 {
		return &fastPath{}
	}
	// lru.New only errors on non-positive size, which is excluded above.
	c, _ := lru.New(size)
	return &fastPath{cache: c}
}

// key joins question and context tag with a separator that cannot occur in
// either (questions are validated printable text).
func (f *fastPath) key(question, contextTag string) string {
	return question + "\x00" + contextTag
}

func (f *fastPath) get(question, contextTag string) (fastPathEntry, bool) {
	if f.cache == nil {
		return fastPathEntry{}, false
	}
	v, ok := f.cache.Get(f.key(question, contextTag))
	if !ok {
		return fastPathEntry{}, false
	}
	entry, ok := v.(fastPathEntry)
	return entry, ok
}

func (f *fastPath) add(question, contextTag string, entry fastPathEntry) {
	if f.cache == nil {
		return
	}
	f.cache.Add(f.key(question, contextTag), entry)
}

func (f *fastPath) remove(question, contextTag string) {
	if f.cache == nil {
		return
	}
	f.cache.Remove(f.key(question, contextTag))
}

func (f *fastPath) purge() {
	if f.cache != nil {
		f.cache.Purge()
	}
}
