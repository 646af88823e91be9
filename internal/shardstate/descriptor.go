package shardstate

import "fmt"

// OwnershipKind classifies how a table's rows are assigned to a shard.
type OwnershipKind uint8

const (
	// Unowned tables have no shard of their own; their rows live in the
	// default shard until an ACCESSES or OWNS edge claims them.
	Unowned OwnershipKind = iota

	// Direct ownership: the shard name is one of the row's own column
	// values (the classic case — a users table OWNS its own rows keyed by
	// user id).
	Direct

	// Transitive ownership: the shard name is found by following a
	// foreign key to another table and using its owner. An order OWNS
	// transitively via its customer_id FK into customers, which itself
	// OWNS Direct.
	Transitive

	// Variable ownership: which column (and therefore which owning
	// table) determines the shard depends on the row itself — e.g. a
	// polymorphic attachments table whose shard is decided by an
	// owner_type discriminator column alongside the FK value.
	Variable
)

func (k OwnershipKind) String() string {
	switch k {
	case Unowned:
		return "unowned"
	case Direct:
		return "direct"
	case Transitive:
		return "transitive"
	case Variable:
		return "variable"
	default:
		return fmt.Sprintf("ownership(%d)", uint8(k))
	}
}

// Descriptor records how to compute the owning shard name for a row of one
// table, per spec.md section 2's OWNS annotation.
type Descriptor struct {
	Kind OwnershipKind

	// ShardColumn is the column holding the shard name directly (Direct)
	// or the foreign key value to resolve (Transitive, Variable).
	ShardColumn string

	// ForeignTable is the table ShardColumn references, for Transitive
	// and Variable ownership. Empty for Direct and Unowned.
	ForeignTable string

	// DiscriminatorColumn, for Variable ownership only, names the column
	// that selects which ForeignTable/ShardColumn pair applies to a given
	// row; Variants holds the table-per-discriminator-value mapping.
	DiscriminatorColumn string
	Variants            map[string]Descriptor
}

// AccessDescriptor records an ACCESSES edge: table grants read access (but
// not ownership) to the shard reachable by following AccessColumn to
// ForeignTable.
type AccessDescriptor struct {
	AccessColumn string
	ForeignTable string
}
