// Package record defines k9db's in-memory row representation and the
// dataflow delta polarity that rides along with every row as it moves
// through an operator graph (spec.md section 4.1 and 4.3).
//
// Record deliberately avoids an interface-per-column-type design: a Value
// is a single tagged struct carrying every possible column type inline,
// the same "tagged struct instead of vtable" shape the original C++
// implementation's dataflow/record.h and dataflow/key.h use to avoid a
// heap allocation and a virtual dispatch per cell. A Record is a flat slice
// of Values plus the one polarity bit (spec.md section 4.3's "positive or
// negative").
package record
