// Package revert provides a step-wise rollback helper for multi-step
// operations that can fail partway through: vgops.VgCreate, PvAdd,
// PvRemove and LvCreateLinear each create a Reverter, register an undo function after
// every side-effecting step, and defer Fail() so an early return runs
// every registered undo in reverse order. Grounded on the teacher's own
// revert package (lxd/revert), inferred from its exported-example test
// since only that file survived retrieval.
package revert

// Reverter accumulates a stack of rollback functions and runs them in
// reverse order when Fail is called, unless Success has already disarmed
// it.
type Reverter struct {
	fns       []func()
	succeeded bool
}

// New returns an empty, armed Reverter.
func New() *Reverter {
	return &Reverter{}
}

// Add pushes fn onto the rollback stack.
func (r *Reverter) Add(fn func()) {
	r.fns = append(r.fns, fn)
}

// Fail runs every registered function in reverse (most-recent-first)
// order, unless Success was already called. Intended to be deferred
// immediately after New().
func (r *Reverter) Fail() {
	if r.succeeded {
		return
	}

	for i := len(r.fns) - 1; i >= 0; i-- {
		r.fns[i]()
	}
}

// Success disarms the Reverter: a subsequent Fail (e.g. a deferred call)
// becomes a no-op.
func (r *Reverter) Success() {
	r.succeeded = true
}
