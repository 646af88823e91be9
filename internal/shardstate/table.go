package shardstate

import "github.com/dreamware/k9db/internal/record"

// TableMeta is everything shardstate.State knows about one table: its row
// schema, how its ownership is computed, which other tables it grants
// read access to, and which tables depend on its ownership decision.
type TableMeta struct {
	Schema     *record.Schema
	Descriptor Descriptor
	Accesses   []AccessDescriptor

	// Dependents lists tables whose ownership (Descriptor.ForeignTable or
	// a Variable variant's) or ACCESSES edge points at this table.
	// Populated by State.SetOwners/SetAccessors; those methods do not
	// consult it, so a table with dependents can still be re-owned.
	Dependents []string
}

// IsOwned reports whether rows of this table belong to some subject's
// shard at all.
func (t *TableMeta) IsOwned() bool {
	return t.Descriptor.Kind != Unowned
}
