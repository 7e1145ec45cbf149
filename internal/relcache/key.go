package relcache

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// Row is a cacheable entity: anything that knows its entity type and its
// primary-key values. *ir.Record implements Row.
//
// Rows are held by reference. Implementations should be pointer types so
// that RemoveOld can compare identities; a row whose type is not
// comparable is never matched by RemoveOld.
type Row interface {
	EntityType() string
	PrimaryKey() ir.IRArray
}

// Key is the structural identity of a cached row: its entity type plus
// its primary-key values.
//
// Keys from different entity types are never equal, even with identical
// values. Key element values are limited to string, int and bool, and
// strings compare byte for byte, as the database does: "café" in NFC and
// NFD are two keys.
//
// Key is immutable and safe to share between goroutines.
type Key struct {
	entity string
	values ir.IRArray
	enc    string
	hash   uint32
}

// NewKey builds a key for entity from primary-key values.
// Returns an error for an empty entity, an empty key, NULL or non-scalar
// elements.
func NewKey(entity string, values ...ir.IRValue) (Key, error) {
	if entity == "" {
		return Key{}, fmt.Errorf("key: empty entity type")
	}
	if len(values) == 0 {
		return Key{}, fmt.Errorf("key %s: no primary-key values", entity)
	}

	elems := make(ir.IRArray, len(values))
	copy(elems, values)

	enc, err := ir.KeyEncoding(entity, elems)
	if err != nil {
		return Key{}, fmt.Errorf("key %s: %w", entity, err)
	}

	return Key{
		entity: entity,
		values: elems,
		enc:    string(enc),
		hash:   ir.HashWithDomain(ir.DomainKey, enc),
	}, nil
}

// MustKey is NewKey that panics on error. For tests and literals.
func MustKey(entity string, values ...ir.IRValue) Key {
	k, err := NewKey(entity, values...)
	if err != nil {
		panic(err)
	}
	return k
}

// KeyOf builds the key of row.
func KeyOf(row Row) (Key, error) {
	if row == nil {
		return Key{}, fmt.Errorf("key: nil row")
	}
	return NewKey(row.EntityType(), row.PrimaryKey()...)
}

// Entity returns the entity type.
func (k Key) Entity() string {
	return k.entity
}

// Values returns a copy of the primary-key values.
func (k Key) Values() ir.IRArray {
	out := make(ir.IRArray, len(k.values))
	copy(out, k.values)
	return out
}

// Encoding returns the byte-exact key encoding as a string. Unlike Key it
// is comparable, so it can key a Go map.
func (k Key) Encoding() string {
	return k.enc
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k.entity == ""
}

// Equal reports structural equality.
func (k Key) Equal(other Key) bool {
	return k.hash == other.hash && k.enc == other.enc
}

// Hash returns the 32-bit murmur3 hash of the key encoding.
func (k Key) Hash() uint32 {
	return k.hash
}

// Compare orders keys by entity type, then element-wise by value.
// Compare(a, b) == 0 iff a.Equal(b).
func (k Key) Compare(other Key) int {
	if c := strings.Compare(k.entity, other.entity); c != 0 {
		return c
	}
	return ir.Compare(k.values, other.values)
}

// String renders the key for logs: entity(v1, v2).
func (k Key) String() string {
	parts := make([]string, len(k.values))
	for i, v := range k.values {
		switch val := v.(type) {
		case ir.IRString:
			parts[i] = fmt.Sprintf("%q", string(val))
		case ir.IRInt:
			parts[i] = fmt.Sprintf("%d", int64(val))
		case ir.IRBool:
			parts[i] = fmt.Sprintf("%t", bool(val))
		}
	}
	return k.entity + "(" + strings.Join(parts, ", ") + ")"
}

// keyHasher adapts Key to immutable.Hasher.
type keyHasher struct{}

func (keyHasher) Hash(k Key) uint32   { return k.Hash() }
func (keyHasher) Equal(a, b Key) bool { return a.Equal(b) }

// keyComparer adapts Key to immutable.Comparer.
type keyComparer struct{}

func (keyComparer) Compare(a, b Key) int { return a.Compare(b) }
