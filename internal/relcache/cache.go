package relcache

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/benbjohnson/immutable"

	"github.com/roach88/relq/internal/ir"
)

// ErrUnsupported is matched by every UnsupportedError via errors.Is.
var ErrUnsupported = errors.New("operation not supported for this cardinality")

// UnsupportedError reports a removal the cache's cardinality forbids.
// It is a contract violation and is never returned as a silent no-op.
type UnsupportedError struct {
	// Op is the rejected operation: "remove" or "remove-value".
	Op string

	// Cardinality is the rejecting cache's cardinality.
	Cardinality ir.Cardinality
}

// Error implements the error interface.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("relcache: %s not supported for %s-owner cache", e.Op, e.Cardinality)
}

// Is lets errors.Is match ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

// IsUnsupported returns true if err is a cardinality rejection.
// Uses errors.Is to handle wrapped errors.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// Cache is one entity type's relation cache: a hash index and an ordered
// index over the same key/row pairs.
//
// Cache is persistent. Every mutation returns a new *Cache built on
// structurally shared index nodes and leaves the receiver untouched, so a
// reader holding an older *Cache keeps a complete, consistent snapshot.
//
// Thread-safety: all methods are safe for concurrent use. Publishing a
// new instance to other goroutines is the Registry's job.
//
// INVARIANTS:
//   - byHash and byKey hold exactly the same key/row pairs
//   - cardinality never changes; mutations inherit it
type Cache struct {
	card   ir.Cardinality
	byHash *immutable.Map[Key, Row]
	byKey  *immutable.SortedMap[Key, Row]
}

var (
	emptySingle = newCache(ir.SingleOwner)
	emptyMulti  = newCache(ir.MultiOwner)
)

func newCache(card ir.Cardinality) *Cache {
	return &Cache{
		card:   card,
		byHash: immutable.NewMap[Key, Row](keyHasher{}),
		byKey:  immutable.NewSortedMap[Key, Row](keyComparer{}),
	}
}

// Empty returns the shared empty cache for card. It is never mutated;
// the first Put on it allocates a new instance. Unknown cardinalities
// are treated as single-owner.
func Empty(card ir.Cardinality) *Cache {
	if card == ir.MultiOwner {
		return emptyMulti
	}
	return emptySingle
}

// Cardinality returns the cache's cardinality.
func (c *Cache) Cardinality() ir.Cardinality {
	return c.card
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	return c.byHash.Len()
}

// Get returns the row at k using the hash index.
func (c *Cache) Get(k Key) (Row, bool) {
	return c.byHash.Get(k)
}

// GetOrdered returns the row at k using the ordered index. It always
// agrees with Get.
func (c *Cache) GetOrdered(k Key) (Row, bool) {
	return c.byKey.Get(k)
}

// ContainsKey reports whether k is present in both indexes.
func (c *Cache) ContainsKey(k Key) bool {
	_, inHash := c.byHash.Get(k)
	_, inOrder := c.byKey.Get(k)
	return inHash && inOrder
}

// Put stores row at k and returns the new cache with the previous row, if
// any. A previous row is replaced, never merged. In a multi-owner cache
// the same row may be put under several keys.
func (c *Cache) Put(k Key, row Row) (next *Cache, prev Row, replaced bool) {
	prev, replaced = c.byHash.Get(k)
	return &Cache{
		card:   c.card,
		byHash: c.byHash.Set(k, row),
		byKey:  c.byKey.Set(k, row),
	}, prev, replaced
}

// PutRow stores row under its own key.
func (c *Cache) PutRow(row Row) (*Cache, error) {
	k, err := KeyOf(row)
	if err != nil {
		return nil, err
	}
	next, _, _ := c.Put(k, row)
	return next, nil
}

// Remove deletes the entry at k and returns the removed row.
//
// Single-owner caches reject it with UnsupportedError: their rows are
// retired only through RemoveOld. Removing an absent key returns c.
func (c *Cache) Remove(k Key) (*Cache, Row, error) {
	if c.card != ir.MultiOwner {
		return nil, nil, &UnsupportedError{Op: "remove", Cardinality: c.card}
	}
	prev, ok := c.byHash.Get(k)
	if !ok {
		return c, nil, nil
	}
	return c.without(k), prev, nil
}

// RemoveValue would delete k only while it maps to row. Both
// cardinalities reject it: single-owner caches allow no ad hoc removal,
// and in multi-owner caches the row may be reachable under other keys.
func (c *Cache) RemoveValue(k Key, row Row) (*Cache, error) {
	return nil, &UnsupportedError{Op: "remove-value", Cardinality: c.card}
}

// RemoveOld retires the entry at k if it still holds old, compared by
// identity. This is the change-tracking path and is allowed for both
// cardinalities. It reports whether an entry was removed; when the entry
// has already moved on, c is returned unchanged.
func (c *Cache) RemoveOld(k Key, old Row) (*Cache, bool) {
	cur, ok := c.byHash.Get(k)
	if !ok || !sameRow(cur, old) {
		return c, false
	}
	return c.without(k), true
}

// sameRow reports whether a and b are the same row. Rows of a type that
// is not comparable have no identity and never match.
func sameRow(a, b Row) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// sameValue compares rows of a non-comparable type by content.
func sameValue(a, b Row) bool {
	t := reflect.TypeOf(a)
	return t != nil && !t.Comparable() && reflect.DeepEqual(a, b)
}

func (c *Cache) without(k Key) *Cache {
	return &Cache{
		card:   c.card,
		byHash: c.byHash.Delete(k),
		byKey:  c.byKey.Delete(k),
	}
}

// Ascend calls fn for every entry in key order until fn returns false.
func (c *Cache) Ascend(fn func(Key, Row) bool) {
	itr := c.byKey.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		if !fn(k, v) {
			return
		}
	}
}

// Range calls fn in key order for entries with from <= key < to, until fn
// returns false. A zero from starts at the first key; a zero to runs to
// the end.
func (c *Cache) Range(from, to Key, fn func(Key, Row) bool) {
	itr := c.byKey.Iterator()
	if !from.IsZero() {
		itr.Seek(from)
	}
	for !itr.Done() {
		k, v, _ := itr.Next()
		if !to.IsZero() && k.Compare(to) >= 0 {
			return
		}
		if !fn(k, v) {
			return
		}
	}
}

// Keys returns every key in order.
func (c *Cache) Keys() []Key {
	keys := make([]Key, 0, c.byKey.Len())
	c.Ascend(func(k Key, _ Row) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Rows returns every row in key order.
func (c *Cache) Rows() []Row {
	rows := make([]Row, 0, c.byKey.Len())
	c.Ascend(func(_ Key, r Row) bool {
		rows = append(rows, r)
		return true
	})
	return rows
}

// Consistent checks that both indexes hold the same key/row pairs.
func (c *Cache) Consistent() error {
	if c.byHash.Len() != c.byKey.Len() {
		return fmt.Errorf("index sizes differ: hash=%d ordered=%d", c.byHash.Len(), c.byKey.Len())
	}
	itr := c.byHash.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		ov, ok := c.byKey.Get(k)
		if !ok {
			return fmt.Errorf("key %s missing from ordered index", k)
		}
		if !sameRow(ov, v) && !sameValue(ov, v) {
			return fmt.Errorf("key %s maps to different rows", k)
		}
	}
	return nil
}
