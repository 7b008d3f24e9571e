package cache

import lru "github.com/hashicorp/golang-lru/v2"

// Query is the eventual-consistency (elastic) SQL-parse cache
// (spec §4.8): unlike Prepared, it has no eviction-callback contract -
// a parsed query dropped from cache is simply re-parsed on next use.
type Query[V any] struct {
	lru      *lru.Cache[string, V]
	disabled bool
}

// NewQuery builds a parse cache with the given capacity (0 disables,
// -1 unbounded).
func NewQuery[V any](capacity int) (*Query[V], error) {
	q := &Query[V]{}
	if capacity == 0 {
		q.disabled = true
		return q, nil
	}
	size := capacity
	if capacity < 0 {
		size = 1 << 16
	}
	l, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	q.lru = l
	return q, nil
}

func (q *Query[V]) Get(sql string) (V, bool) {
	if q.disabled {
		var zero V
		return zero, false
	}
	return q.lru.Get(sql)
}

func (q *Query[V]) Put(sql string, v V) {
	if q.disabled {
		return
	}
	q.lru.Add(sql, v)
}
