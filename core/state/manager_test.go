package state

import (
	"errors"
	"testing"

	"tubbly/core/ledger"
	"tubbly/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() {
		db.Close()
	})
	return NewManager(db)
}

func testIdentity(fill byte) ledger.Identity {
	var id ledger.Identity
	for i := range id {
		id[i] = fill
	}
	return id
}

func TestProgramStateLifecycle(t *testing.T) {
	manager := newTestManager(t)

	if _, err := manager.ProgramStateGet(); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found before init, got %v", err)
	}

	owner := testIdentity(1)
	if err := manager.ProgramStateCreate(&ledger.ProgramState{Owner: owner}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := manager.ProgramStateCreate(&ledger.ProgramState{Owner: testIdentity(2)}); !errors.Is(err, ledger.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}

	st, err := manager.ProgramStateGet()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Owner != owner || st.RequestCounter != 0 {
		t.Fatalf("unexpected state: %+v", st)
	}

	st.RequestCounter = 7
	if err := manager.ProgramStatePut(st); err != nil {
		t.Fatalf("put: %v", err)
	}
	reloaded, err := manager.ProgramStateGet()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RequestCounter != 7 {
		t.Fatalf("unexpected counter: got %d want 7", reloaded.RequestCounter)
	}
}

func TestRequestCreateCollision(t *testing.T) {
	manager := newTestManager(t)

	id := ledger.RequestIDFromUint64(42)
	first := &ledger.Request{ID: id, Caller: testIdentity(1), Amount: 100, Active: true}
	if err := manager.RequestCreate(first); err != nil {
		t.Fatalf("create: %v", err)
	}

	second := &ledger.Request{ID: id, Caller: testIdentity(2), Amount: 999, Active: true}
	if err := manager.RequestCreate(second); !errors.Is(err, ledger.ErrAlreadyExists) {
		t.Fatalf("expected creation collision, got %v", err)
	}

	stored, err := manager.RequestGet(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Caller != first.Caller || stored.Amount != first.Amount {
		t.Fatalf("collision overwrote request: %+v", stored)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	manager := newTestManager(t)

	id := ledger.RequestIDFromUint64(7)
	if _, err := manager.RequestGet(id); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	req := &ledger.Request{ID: id, Caller: testIdentity(3), Amount: 12345, Active: true}
	if err := manager.RequestCreate(req); err != nil {
		t.Fatalf("create: %v", err)
	}
	stored, err := manager.RequestGet(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ID != req.ID || stored.Caller != req.Caller || stored.Amount != req.Amount || !stored.Active {
		t.Fatalf("round trip mismatch: %+v", stored)
	}

	stored.Active = false
	if err := manager.RequestPut(stored); err != nil {
		t.Fatalf("put: %v", err)
	}
	closed, err := manager.RequestGet(id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if closed.Active {
		t.Fatalf("expected inactive request")
	}

	manager.RequestDelete(id)
	if _, err := manager.RequestGet(id); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestUserBalanceLazyCreation(t *testing.T) {
	manager := newTestManager(t)

	user := testIdentity(9)
	if _, ok, err := manager.UserBalanceGet(user); err != nil || ok {
		t.Fatalf("expected absent balance, got ok=%v err=%v", ok, err)
	}

	if err := manager.UserBalancePut(&ledger.UserBalance{Owner: user, Balance: 555}); err != nil {
		t.Fatalf("put: %v", err)
	}
	balance, ok, err := manager.UserBalanceGet(user)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if balance.Owner != user || balance.Balance != 555 {
		t.Fatalf("unexpected balance record: %+v", balance)
	}
}

func TestCommitAndDiscard(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })

	staged := NewManager(db)
	if err := staged.ProgramStateCreate(&ledger.ProgramState{Owner: testIdentity(1)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Nothing reaches the database before commit.
	fresh := NewManager(db)
	if _, err := fresh.ProgramStateGet(); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected staged write to be invisible, got %v", err)
	}

	if err := staged.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := fresh.ProgramStateGet(); err != nil {
		t.Fatalf("expected committed state to be visible: %v", err)
	}

	id := ledger.RequestIDFromUint64(1)
	if err := staged.RequestCreate(&ledger.Request{ID: id, Caller: testIdentity(2), Amount: 1, Active: true}); err != nil {
		t.Fatalf("create request: %v", err)
	}
	staged.Discard()
	if err := staged.Commit(); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	if _, err := fresh.RequestGet(id); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("discarded write leaked: %v", err)
	}
}

func TestDeleteStagedUntilCommit(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })

	manager := NewManager(db)
	id := ledger.RequestIDFromUint64(3)
	if err := manager.RequestCreate(&ledger.Request{ID: id, Caller: testIdentity(1), Amount: 10, Active: false}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := manager.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	manager.RequestDelete(id)
	fresh := NewManager(db)
	if _, err := fresh.RequestGet(id); err != nil {
		t.Fatalf("delete should be staged only: %v", err)
	}
	if err := manager.Commit(); err != nil {
		t.Fatalf("commit delete: %v", err)
	}
	if _, err := fresh.RequestGet(id); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected deletion after commit, got %v", err)
	}
}
