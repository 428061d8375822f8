package approvals

import "tubbly/core/ledger"

// Authorization checks run before any mutation. A failed check aborts the
// instruction with every account untouched.

// requireOwner admits only the identity stored as the program owner.
func requireOwner(st *ledger.ProgramState, caller ledger.Identity) error {
	if st == nil || caller.IsZero() || caller != st.Owner {
		return ledger.ErrUnauthorized
	}
	return nil
}

// requireSelf admits only the identity the record was created by.
func requireSelf(claimed, actual ledger.Identity) error {
	if claimed.IsZero() || claimed != actual {
		return ledger.ErrUnauthorized
	}
	return nil
}
