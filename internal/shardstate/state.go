package shardstate

import (
	"fmt"
	"sync"

	"github.com/dreamware/k9db/internal/record"
)

// ForeignResolver answers "what shard owns the row in table identified by
// pk" for Transitive and Variable ownership, which must follow a foreign
// key to another table's already-computed shard rather than reading it off
// the row directly. internal/engine implements this against the live
// table data; shardstate itself has no storage access.
type ForeignResolver interface {
	ShardOf(table string, pk record.Value) (shardName string, err error)
}

// State is k9db's schema-and-shard registry: the generalization of the
// teacher's ShardRegistry (which mapped a hash bucket to a node) to mapping
// a table to its ownership Descriptor and a subject name to its runtime
// Shard.
type State struct {
	mu     sync.RWMutex
	tables map[string]*TableMeta
	shards map[string]*Shard
}

// NewState returns an empty registry.
func NewState() *State {
	return &State{
		tables: make(map[string]*TableMeta),
		shards: make(map[string]*Shard),
	}
}

// DefineTable registers a table's schema with no ownership or access edges.
// SetOwners/SetAccessors attach those afterward, since a table's FK targets
// must already be registered before an edge pointing at them can be
// validated.
func (s *State) DefineTable(schema *record.Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[schema.TableName] = &TableMeta{Schema: schema}
}

func (s *State) Table(name string) (*TableMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	return t, ok
}

// SetOwners attaches an OWNS descriptor to table, validating that any
// ForeignTable it names is already registered, and records table as a
// dependent of that foreign table. It does not check table's own
// Dependents: a table that others depend on can still be re-owned.
func (s *State) SetOwners(table string, desc Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		return fmt.Errorf("shardstate: unknown table %q", table)
	}
	if err := s.validateDescriptorLocked(desc); err != nil {
		return fmt.Errorf("shardstate: table %q: %w", table, err)
	}
	t.Descriptor = desc
	s.addDependentsLocked(table, desc)
	return nil
}

func (s *State) validateDescriptorLocked(desc Descriptor) error {
	switch desc.Kind {
	case Unowned, Direct:
		return nil
	case Transitive:
		if _, ok := s.tables[desc.ForeignTable]; !ok {
			return fmt.Errorf("foreign table %q not registered", desc.ForeignTable)
		}
		return nil
	case Variable:
		if len(desc.Variants) == 0 {
			return fmt.Errorf("variable ownership requires at least one variant")
		}
		for variant, sub := range desc.Variants {
			if sub.ForeignTable == "" {
				return fmt.Errorf("variant %q: missing foreign table", variant)
			}
			if _, ok := s.tables[sub.ForeignTable]; !ok {
				return fmt.Errorf("variant %q: foreign table %q not registered", variant, sub.ForeignTable)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown ownership kind %v", desc.Kind)
	}
}

func (s *State) addDependentsLocked(table string, desc Descriptor) {
	switch desc.Kind {
	case Transitive:
		s.appendDependentLocked(desc.ForeignTable, table)
	case Variable:
		for _, sub := range desc.Variants {
			s.appendDependentLocked(sub.ForeignTable, table)
		}
	}
}

func (s *State) appendDependentLocked(foreignTable, dependent string) {
	ft, ok := s.tables[foreignTable]
	if !ok {
		return
	}
	for _, d := range ft.Dependents {
		if d == dependent {
			return
		}
	}
	ft.Dependents = append(ft.Dependents, dependent)
}

// SetAccessors attaches an ACCESSES edge to table, validating and
// recording dependents the same way SetOwners does.
func (s *State) SetAccessors(table string, access AccessDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table]
	if !ok {
		return fmt.Errorf("shardstate: unknown table %q", table)
	}
	if _, ok := s.tables[access.ForeignTable]; !ok {
		return fmt.Errorf("shardstate: table %q: foreign table %q not registered", table, access.ForeignTable)
	}
	t.Accesses = append(t.Accesses, access)
	s.appendDependentLocked(access.ForeignTable, table)
	return nil
}

// ResolveOwner computes the shard name a row of table belongs to.
func (s *State) ResolveOwner(table string, row *record.Record, resolver ForeignResolver) (string, error) {
	t, ok := s.Table(table)
	if !ok {
		return "", fmt.Errorf("shardstate: unknown table %q", table)
	}
	return s.resolve(t.Schema, t.Descriptor, row, resolver)
}

func (s *State) resolve(schema *record.Schema, desc Descriptor, row *record.Record, resolver ForeignResolver) (string, error) {
	switch desc.Kind {
	case Unowned:
		return "", fmt.Errorf("shardstate: table %q is unowned", schema.TableName)
	case Direct:
		idx := schema.IndexOf(desc.ShardColumn)
		if idx < 0 {
			return "", fmt.Errorf("shardstate: column %q not found in %q", desc.ShardColumn, schema.TableName)
		}
		return valueToShardName(row.Values[idx])
	case Transitive:
		idx := schema.IndexOf(desc.ShardColumn)
		if idx < 0 {
			return "", fmt.Errorf("shardstate: column %q not found in %q", desc.ShardColumn, schema.TableName)
		}
		return resolver.ShardOf(desc.ForeignTable, row.Values[idx])
	case Variable:
		idx := schema.IndexOf(desc.DiscriminatorColumn)
		if idx < 0 {
			return "", fmt.Errorf("shardstate: discriminator column %q not found in %q", desc.DiscriminatorColumn, schema.TableName)
		}
		discriminator, err := valueToShardName(row.Values[idx])
		if err != nil {
			return "", err
		}
		sub, ok := desc.Variants[discriminator]
		if !ok {
			return "", fmt.Errorf("shardstate: no ownership variant for discriminator %q in %q", discriminator, schema.TableName)
		}
		return s.resolve(schema, sub, row, resolver)
	default:
		return "", fmt.Errorf("shardstate: unknown ownership kind %v", desc.Kind)
	}
}

func valueToShardName(v record.Value) (string, error) {
	switch v.Kind {
	case record.KindText:
		return v.S, nil
	case record.KindUint:
		return fmt.Sprintf("%d", v.U), nil
	case record.KindInt:
		return fmt.Sprintf("%d", v.I), nil
	default:
		return "", fmt.Errorf("shardstate: cannot use %s column as shard name", v.Kind)
	}
}

// GetOrCreateShard returns the runtime Shard for name, creating an Active
// one on first use. Readers take the shared lock; the first caller to see
// a shard absent upgrades to the exclusive lock and rechecks before
// creating, the same double-checked pattern internal/crypto's subjectAEAD
// uses for per-subject key creation.
func (s *State) GetOrCreateShard(name string) *Shard {
	s.mu.RLock()
	sh, ok := s.shards[name]
	s.mu.RUnlock()
	if ok {
		return sh
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shards[name]; ok {
		return sh
	}
	sh = NewShard(name)
	s.shards[name] = sh
	return sh
}

// Forget marks name's shard Forgotten and drops it from the live registry;
// a later write under the same name creates a fresh Active shard.
func (s *State) Forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shards[name]; ok {
		sh.MarkForgotten()
	}
	delete(s.shards, name)
}
