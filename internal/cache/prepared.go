// Package cache implements the two cache abstractions spec §4.8
// names: an elastic query-parse cache and a strict prepared-statement
// cache with an eviction callback that schedules COM_STMT_CLOSE.
// Backed by github.com/hashicorp/golang-lru/v2, a direct dependency of
// the gravitational-teleport example repo, given a concrete home here.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// OnEvict is invoked with the evicted prepared-statement id so the
// caller can enqueue a COM_STMT_CLOSE for it (spec §4.8).
type OnEvict func(evictedID uint32)

// Prepared is the strict-consistency prepared-statement cache keyed by
// SQL text, capacity-bounded to respect the server's
// max_prepared_stmt_count (spec §4.8).
type Prepared struct {
	capacity int
	lru      *lru.Cache[string, uint32]
	onEvict  OnEvict
	disabled bool
}

// NewPrepared builds a cache with the given capacity: 0 disables
// caching entirely, -1 means unbounded (spec §4.8 "0 disables;
// −1 unbounded").
func NewPrepared(capacity int, onEvict OnEvict) (*Prepared, error) {
	p := &Prepared{capacity: capacity, onEvict: onEvict}
	if capacity == 0 {
		p.disabled = true
		return p, nil
	}
	size := capacity
	if capacity < 0 {
		size = 1 << 20 // effectively unbounded for practical SQL-text counts
	}
	l, err := lru.NewWithEvict(size, func(_ string, id uint32) {
		if onEvict != nil {
			onEvict(id)
		}
	})
	if err != nil {
		return nil, err
	}
	p.lru = l
	return p, nil
}

// GetIfPresent returns the cached statement id for sql, if any
// (spec §8 "get_if_present(sql) == Some(id)").
func (p *Prepared) GetIfPresent(sql string) (uint32, bool) {
	if p.disabled {
		return 0, false
	}
	return p.lru.Get(sql)
}

// PutIfAbsent inserts (sql, id) if sql is not already cached, returning
// true on insert. If the insertion causes an eviction, onEvict already
// fired synchronously inside Add; PutIfAbsent additionally returns
// false when the cache is disabled so id was never actually retained
// and the caller must close it itself (spec §4.8
// "put_if_absent(sql, id, on_evict) returns false if the id was
// rejected").
func (p *Prepared) PutIfAbsent(sql string, id uint32) bool {
	if p.disabled {
		return false
	}
	if _, ok := p.lru.Get(sql); ok {
		return false
	}
	p.lru.Add(sql, id)
	return true
}

// Remove explicitly evicts sql (e.g. on a server-reported invalidation),
// invoking onEvict as usual.
func (p *Prepared) Remove(sql string) {
	if p.disabled {
		return
	}
	p.lru.Remove(sql)
}

// Len reports the current number of cached entries.
func (p *Prepared) Len() int {
	if p.disabled {
		return 0
	}
	return p.lru.Len()
}
