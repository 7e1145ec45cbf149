package alias

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
)

func TestName_KnownValues(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "a"},
		{1, "b"},
		{25, "z"},
		{26, "aa"},
		{27, "ab"},
		{51, "az"},
		{52, "ba"},
		{701, "zz"},
		{702, "aaa"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Name(tt.index), "index %d", tt.index)
	}
}

func TestName_NegativePanics(t *testing.T) {
	assert.Panics(t, func() { Name(-1) })
}

func TestIndex_RejectsNonNames(t *testing.T) {
	for _, s := range []string{"", "A", "a1", "é"} {
		_, ok := Index(s)
		assert.False(t, ok, s)
	}
}

// shortlex orders by length, then lexicographically.
func shortlex(a, b string) int {
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func TestProperty_NameInjectiveAndOrdered(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("distinct indices give distinct names", prop.ForAll(
		func(i, j int) bool {
			if i == j {
				return Name(i) == Name(j)
			}
			return Name(i) != Name(j)
		},
		gen.IntRange(0, 50000),
		gen.IntRange(0, 50000),
	))

	properties.Property("name order follows index order", prop.ForAll(
		func(i, j int) bool {
			c := shortlex(Name(i), Name(j))
			switch {
			case i < j:
				return c < 0
			case i > j:
				return c > 0
			}
			return c == 0
		},
		gen.IntRange(0, 50000),
		gen.IntRange(0, 50000),
	))

	properties.Property("same length class is lexicographic", prop.ForAll(
		func(i, j int) bool {
			a, b := Name(i), Name(j)
			if len(a) != len(b) || i >= j {
				return true
			}
			return a < b
		},
		gen.IntRange(0, 20000),
		gen.IntRange(0, 20000),
	))

	properties.Property("Index inverts Name", prop.ForAll(
		func(i int) bool {
			got, ok := Index(Name(i))
			return ok && got == i
		},
		gen.IntRange(0, 100000),
	))

	properties.TestingRun(t)
}

func TestAlias_DelegatesToSubject(t *testing.T) {
	users := &ir.TableSpec{
		Name:    "users",
		Columns: []ir.ColumnSpec{{Name: "id", Type: "int"}},
	}

	a := New(users, 0)
	assert.Equal(t, "a", a.Name())
	assert.Equal(t, "users", a.SubjectName())
	assert.Same(t, users, a.Subject())

	col, ok := a.Column("id")
	require.True(t, ok)
	assert.Equal(t, "int", col.Type)

	// Column subjects have no columns of their own.
	c := New(ir.ColumnSpec{Name: "id"}, 1)
	_, ok = c.Column("id")
	assert.False(t, ok)
	assert.Equal(t, "id", c.SubjectName())
}

func TestAlias_EqualityUsesNameOnly(t *testing.T) {
	users := &ir.TableSpec{Name: "users"}
	orders := &ir.TableSpec{Name: "orders"}

	a1 := New(users, 3)
	a2 := New(orders, 3)
	b := New(users, 4)

	assert.True(t, a1.Equal(a2))
	assert.Equal(t, a1.Hash(), a2.Hash())
	assert.False(t, a1.Equal(b))
}

func TestAlias_Nested(t *testing.T) {
	inner := New(&ir.TableSpec{Name: "users"}, 0)
	outer := New(inner, 1)
	assert.Equal(t, "users", outer.SubjectName())
	assert.Equal(t, "b", outer.Name())
}

func TestScope_NextIsSequentialAndConcurrent(t *testing.T) {
	s := NewScope()
	users := &ir.TableSpec{Name: "users"}

	const workers = 8
	const perWorker = 50

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				a := s.Next(users)
				mu.Lock()
				seen[a.Name()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, s.Len())
	assert.Len(t, seen, workers*perWorker)
	for i := 0; i < workers*perWorker; i++ {
		assert.True(t, seen[Name(i)], "missing %s", Name(i))
	}
}
