package relcache

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/testutil"
)

var keyCmp = cmp.Comparer(func(a, b Key) bool { return a.Equal(b) })

func userKey(id int64) Key {
	return MustKey("users", ir.IRInt(id))
}

func TestSingleOwner_PutReplaces(t *testing.T) {
	spec := testutil.UsersTable()
	v1 := testutil.User(spec, 1, "Ann", "")
	v2 := testutil.User(spec, 1, "Ann B.", "")
	k := userKey(1)

	c, prev, replaced := Empty(ir.SingleOwner).Put(k, v1)
	assert.Nil(t, prev)
	assert.False(t, replaced)

	c, prev, replaced = c.Put(k, v2)
	assert.True(t, replaced)
	assert.Same(t, v1, prev)

	got, ok := c.Get(k)
	require.True(t, ok)
	assert.Same(t, v2, got)
	assert.Equal(t, 1, c.Len())
}

func TestSingleOwner_RejectsRemovals(t *testing.T) {
	spec := testutil.UsersTable()
	v := testutil.User(spec, 1, "Ann", "")
	k := userKey(1)
	c, _, _ := Empty(ir.SingleOwner).Put(k, v)

	_, _, err := c.Remove(k)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
	var unsupported *UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "remove", unsupported.Op)
	assert.Equal(t, ir.SingleOwner, unsupported.Cardinality)

	_, err = c.RemoveValue(k, v)
	assert.True(t, IsUnsupported(err))

	// The rejection does not touch the cache.
	assert.True(t, c.ContainsKey(k))
}

func TestMultiOwner_SharedValue(t *testing.T) {
	spec := testutil.UsersTable()
	v := testutil.User(spec, 1, "Ann", "")
	k1, k2 := userKey(1), userKey(2)

	c, _, _ := Empty(ir.MultiOwner).Put(k1, v)
	c, _, _ = c.Put(k2, v)

	g1, _ := c.Get(k1)
	g2, _ := c.Get(k2)
	assert.Same(t, v, g1)
	assert.Same(t, v, g2)

	_, err := c.RemoveValue(k1, v)
	assert.True(t, IsUnsupported(err))

	next, removed, err := c.Remove(k1)
	require.NoError(t, err)
	assert.Same(t, v, removed)

	_, ok := next.Get(k1)
	assert.False(t, ok)
	g2, ok = next.Get(k2)
	assert.True(t, ok)
	assert.Same(t, v, g2)
}

func TestMultiOwner_RemoveAbsentIsNoop(t *testing.T) {
	c := Empty(ir.MultiOwner)
	next, removed, err := c.Remove(userKey(1))
	require.NoError(t, err)
	assert.Nil(t, removed)
	assert.Same(t, c, next)
}

func TestRemoveOld_Identity(t *testing.T) {
	spec := testutil.UsersTable()
	for _, card := range []ir.Cardinality{ir.SingleOwner, ir.MultiOwner} {
		t.Run(string(card), func(t *testing.T) {
			v := testutil.User(spec, 1, "Ann", "")
			twin := testutil.User(spec, 1, "Ann", "")
			k := userKey(1)
			c, _, _ := Empty(card).Put(k, v)

			same, removed := c.RemoveOld(k, twin)
			assert.False(t, removed, "structurally equal but different row")
			assert.Same(t, c, same)

			next, removed := c.RemoveOld(k, v)
			assert.True(t, removed)
			assert.False(t, next.ContainsKey(k))
			assert.Equal(t, card, next.Cardinality())
		})
	}
}

// listRow is a value-type row holding a slice, so its type is not
// comparable.
type listRow struct {
	id   int64
	tags []string
}

func (r listRow) EntityType() string { return "lists" }
func (r listRow) PrimaryKey() ir.IRArray { return ir.IRArray{ir.IRInt(r.id)} }

func TestRemoveOld_NonComparableRow(t *testing.T) {
	row := listRow{id: 1, tags: []string{"a"}}
	k := MustKey("lists", ir.IRInt(1))
	c, _, _ := Empty(ir.MultiOwner).Put(k, row)

	var same *Cache
	var removed bool
	require.NotPanics(t, func() { same, removed = c.RemoveOld(k, row) })
	assert.False(t, removed)
	assert.Same(t, c, same)

	var err error
	require.NotPanics(t, func() { err = c.Consistent() })
	assert.NoError(t, err)
}

func TestSnapshotIsolation(t *testing.T) {
	spec := testutil.UsersTable()
	v1 := testutil.User(spec, 1, "Ann", "")
	v2 := testutil.User(spec, 1, "Bob", "")
	k := userKey(1)

	before, _, _ := Empty(ir.SingleOwner).Put(k, v1)
	after, _, _ := before.Put(k, v2)
	after, _ = after.RemoveOld(k, v2)

	got, ok := before.Get(k)
	require.True(t, ok)
	assert.Same(t, v1, got)
	assert.Equal(t, 1, before.Len())
	assert.Equal(t, 0, after.Len())
}

func TestEmpty_IsNeverMutated(t *testing.T) {
	for _, card := range []ir.Cardinality{ir.SingleOwner, ir.MultiOwner} {
		empty := Empty(card)
		assert.Same(t, empty, Empty(card))

		next, _, _ := empty.Put(userKey(1), testutil.User(testutil.UsersTable(), 1, "Ann", ""))
		assert.NotSame(t, empty, next)
		assert.Equal(t, 0, empty.Len())
		assert.Equal(t, 1, next.Len())
	}
	assert.NotSame(t, Empty(ir.SingleOwner), Empty(ir.MultiOwner))
}

func TestPutRow(t *testing.T) {
	spec := testutil.UsersTable()
	v := testutil.User(spec, 5, "Eve", "")

	c, err := Empty(ir.SingleOwner).PutRow(v)
	require.NoError(t, err)
	got, ok := c.GetOrdered(userKey(5))
	require.True(t, ok)
	assert.Same(t, v, got)

	_, err = c.PutRow(ir.NewRecord(spec, ir.IRObject{"name": ir.IRString("no id")}))
	assert.Error(t, err)
}

func TestOrderedTraversal(t *testing.T) {
	spec := testutil.UsersTable()
	c := Empty(ir.SingleOwner)
	for _, id := range []int64{7, 2, 9, 4, 1, 3, 8, 6, 10, 5} {
		c, _, _ = c.Put(userKey(id), testutil.User(spec, id, "u", ""))
	}

	var ids []int64
	c.Range(userKey(3), userKey(7), func(k Key, _ Row) bool {
		ids = append(ids, int64(k.Values()[0].(ir.IRInt)))
		return true
	})
	assert.Equal(t, []int64{3, 4, 5, 6}, ids)

	ids = nil
	c.Range(Key{}, userKey(3), func(k Key, _ Row) bool {
		ids = append(ids, int64(k.Values()[0].(ir.IRInt)))
		return true
	})
	assert.Equal(t, []int64{1, 2}, ids)

	ids = nil
	c.Range(userKey(9), Key{}, func(k Key, _ Row) bool {
		ids = append(ids, int64(k.Values()[0].(ir.IRInt)))
		return true
	})
	assert.Equal(t, []int64{9, 10}, ids)

	n := 0
	c.Ascend(func(Key, Row) bool {
		n++
		return n < 4
	})
	assert.Equal(t, 4, n)

	want := make([]Key, 0, 10)
	for id := int64(1); id <= 10; id++ {
		want = append(want, userKey(id))
	}
	if diff := cmp.Diff(want, c.Keys(), keyCmp); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, c.Rows(), 10)
}

// hashKeys lists the hash index keys sorted, for comparison with the
// ordered index.
func hashKeys(c *Cache) []Key {
	keys := make([]Key, 0, c.byHash.Len())
	itr := c.byHash.Iterator()
	for !itr.Done() {
		k, _, _ := itr.Next()
		keys = append(keys, k)
	}
	sorted := Empty(ir.SingleOwner)
	for _, k := range keys {
		sorted, _, _ = sorted.Put(k, nil)
	}
	return sorted.Keys()
}

func TestProperty_DualIndexConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	spec := testutil.UsersTable()
	rows := make([]*ir.Record, 8)
	for i := range rows {
		rows[i] = testutil.User(spec, int64(i), "u", "")
	}

	// Each op encodes kind = op % 3 and key = op / 3 % 8.
	apply := func(card ir.Cardinality, ops []int) *Cache {
		c := Empty(card)
		for _, op := range ops {
			id := op / 3 % len(rows)
			k := userKey(int64(id))
			switch op % 3 {
			case 0:
				c, _, _ = c.Put(k, rows[id])
			case 1:
				c, _ = c.RemoveOld(k, rows[id])
			case 2:
				if next, _, err := c.Remove(k); err == nil {
					c = next
				}
			}
		}
		return c
	}

	for _, card := range []ir.Cardinality{ir.SingleOwner, ir.MultiOwner} {
		card := card
		properties.Property(string(card)+" indexes hold the same pairs", prop.ForAll(
			func(ops []int) bool {
				c := apply(card, ops)
				if c.Consistent() != nil {
					return false
				}
				if !cmp.Equal(hashKeys(c), c.Keys(), keyCmp) {
					return false
				}
				for id := range rows {
					k := userKey(int64(id))
					hv, hok := c.Get(k)
					ov, ook := c.GetOrdered(k)
					if hok != ook || hv != ov || c.ContainsKey(k) != hok {
						return false
					}
				}
				return true
			},
			gen.SliceOf(gen.IntRange(0, 3*len(rows)-1)),
		))
	}

	properties.TestingRun(t)
}
