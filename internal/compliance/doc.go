// Package compliance implements the GDPR commit gate spec.md section 4.10
// describes: a scope bound to one logical client operation that tracks rows
// written to the reserved default shard during that operation and refuses
// to let the operation commit while any of them is still unowned.
//
// There is no teacher or pack analogue for this component — it is k9db's
// own GDPR bookkeeping — so Transaction is built in the teacher's idiom
// (mutex-guarded struct, typed sentinel/struct errors, testify tests)
// while its state machine and checkpoint-stack semantics are ported from
// original_source/pelton/ctx.{h,cc}'s ComplianceTransaction.
package compliance
