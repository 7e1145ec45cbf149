package relcache

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/roach88/relq/internal/ir"
)

// Relation publishes the current Cache of one entity type.
//
// Readers call Load and keep the snapshot as long as they like. Writers
// go through Update, which retries on a lost compare-and-swap so that no
// update is lost.
//
// Thread-safety: safe for concurrent use.
type Relation struct {
	entity string
	cur    atomic.Pointer[Cache]
}

func newRelation(entity string, card ir.Cardinality) *Relation {
	r := &Relation{entity: entity}
	r.cur.Store(Empty(card))
	return r
}

// Entity returns the entity type the relation caches.
func (r *Relation) Entity() string {
	return r.entity
}

// Load returns the current snapshot.
func (r *Relation) Load() *Cache {
	return r.cur.Load()
}

// Update applies fn to the current snapshot and publishes the result.
//
// fn must be a pure function of its argument: it may run more than once
// when writers race. An error from fn aborts the update and nothing is
// published.
func (r *Relation) Update(fn func(*Cache) (*Cache, error)) (*Cache, error) {
	for attempt := 1; ; attempt++ {
		old := r.cur.Load()
		next, err := fn(old)
		if err != nil {
			return nil, err
		}
		if next == old || r.cur.CompareAndSwap(old, next) {
			return next, nil
		}
		slog.Debug("relation cache swap lost, retrying",
			"entity", r.entity,
			"attempt", attempt,
		)
	}
}

// Registry holds one Relation per entity type, nested per schema.
//
// Tables with a Schema are routed to the child registry of that schema;
// entity type names are qualified ("schema.table").
//
// Thread-safety: safe for concurrent use. The mutex only guards creation
// of relations and child schemas; cache reads and writes are lock-free.
type Registry struct {
	schema string

	mu        sync.Mutex
	relations map[string]*Relation
	schemas   map[string]*Registry
}

// NewRegistry creates an empty root registry.
func NewRegistry() *Registry {
	return newRegistry("")
}

func newRegistry(schema string) *Registry {
	return &Registry{
		schema:    schema,
		relations: make(map[string]*Relation),
		schemas:   make(map[string]*Registry),
	}
}

// Schema returns the child registry for name, creating it on first use.
// On a child registry it returns the receiver when name matches, and
// panics otherwise: schemas do not nest further.
func (g *Registry) Schema(name string) *Registry {
	if g.schema != "" {
		if name != g.schema {
			panic(fmt.Sprintf("relcache: schema %q has no child schema %q", g.schema, name))
		}
		return g
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	child, ok := g.schemas[name]
	if !ok {
		child = newRegistry(name)
		g.schemas[name] = child
	}
	return child
}

// Relation returns the relation for spec, creating it with spec's
// cardinality on first use.
func (g *Registry) Relation(spec *ir.TableSpec) *Relation {
	if spec.Schema != "" && g.schema == "" {
		return g.Schema(spec.Schema).Relation(spec)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.relations[spec.Name]
	if !ok {
		r = newRelation(spec.QualifiedName(), spec.Cardinality)
		g.relations[spec.Name] = r
	}
	return r
}

// Lookup returns the relation for a qualified entity type, if registered.
func (g *Registry) Lookup(entity string) (*Relation, bool) {
	if g.schema == "" {
		if schema, table, ok := strings.Cut(entity, "."); ok {
			g.mu.Lock()
			child, found := g.schemas[schema]
			g.mu.Unlock()
			if !found {
				return nil, false
			}
			return child.lookupLocal(table)
		}
	} else {
		entity = strings.TrimPrefix(entity, g.schema+".")
	}
	return g.lookupLocal(entity)
}

func (g *Registry) lookupLocal(name string) (*Relation, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.relations[name]
	return r, ok
}

// Replace publishes a row change reported by change tracking: old is
// retired with RemoveOld under its own key, then current is put under
// its key. Either side may be nil for a pure insert or a pure delete.
//
// Replacing an old row the cache no longer holds still stores current.
// The relation must have been registered with Relation.
func (g *Registry) Replace(old, current Row) error {
	entity := ""
	switch {
	case current != nil:
		entity = current.EntityType()
	case old != nil:
		entity = old.EntityType()
	default:
		return fmt.Errorf("replace: both rows are nil")
	}
	if old != nil && current != nil && old.EntityType() != current.EntityType() {
		return fmt.Errorf("replace: entity type changed from %s to %s", old.EntityType(), current.EntityType())
	}

	rel, ok := g.Lookup(entity)
	if !ok {
		return fmt.Errorf("replace: no relation cache for %s", entity)
	}

	var oldKey, newKey Key
	var err error
	if old != nil {
		if oldKey, err = KeyOf(old); err != nil {
			return fmt.Errorf("replace: %w", err)
		}
	}
	if current != nil {
		if newKey, err = KeyOf(current); err != nil {
			return fmt.Errorf("replace: %w", err)
		}
	}

	_, err = rel.Update(func(c *Cache) (*Cache, error) {
		if old != nil {
			c, _ = c.RemoveOld(oldKey, old)
		}
		if current != nil {
			c, _, _ = c.Put(newKey, current)
		}
		return c, nil
	})
	return err
}
