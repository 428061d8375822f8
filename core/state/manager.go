package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"tubbly/core/ledger"
	"tubbly/storage"
)

// Manager reads and writes ledger records against a key-value database.
// Mutations are staged in an overlay and only reach the database when Commit
// flushes them in a single atomic batch; Discard drops everything staged.
// A failed instruction therefore leaves the database byte-for-byte unchanged.
//
// Manager is not safe for concurrent use; the node serializes instructions.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
	deleted map[string]struct{}
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		overlay: make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (m *Manager) get(addr Address) ([]byte, error) {
	key := string(addr[:])
	if _, ok := m.deleted[key]; ok {
		return nil, storage.ErrKeyNotFound
	}
	if staged, ok := m.overlay[key]; ok {
		return staged, nil
	}
	return m.db.Get(addr[:])
}

func (m *Manager) put(addr Address, value []byte) {
	key := string(addr[:])
	delete(m.deleted, key)
	m.overlay[key] = value
}

func (m *Manager) del(addr Address) {
	key := string(addr[:])
	delete(m.overlay, key)
	m.deleted[key] = struct{}{}
}

func (m *Manager) exists(addr Address) (bool, error) {
	_, err := m.get(addr)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Commit flushes staged mutations to the database atomically and resets the
// overlay.
func (m *Manager) Commit() error {
	batch := new(storage.Batch)
	for key, value := range m.overlay {
		batch.Put([]byte(key), value)
	}
	for key := range m.deleted {
		batch.Delete([]byte(key))
	}
	if batch.Len() > 0 {
		if err := m.db.Write(batch); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	m.reset()
	return nil
}

// Discard drops all staged mutations.
func (m *Manager) Discard() {
	m.reset()
}

func (m *Manager) reset() {
	m.overlay = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
}

// Stored record shapes. Field order and widths are fixed; any change breaks
// compatibility with existing data.

type storedProgramState struct {
	Owner          [32]byte
	RequestCounter uint64
}

type storedRequest struct {
	ID     [16]byte
	Caller [32]byte
	Amount uint64
	Active bool
}

type storedUserBalance struct {
	Owner   [32]byte
	Balance uint64
}

// ProgramStateCreate persists the singleton control record. It fails with
// ErrAlreadyInitialized when a record already occupies the state address.
func (m *Manager) ProgramStateCreate(st *ledger.ProgramState) error {
	if st == nil {
		return fmt.Errorf("state: nil program state")
	}
	addr := StateAddress()
	occupied, err := m.exists(addr)
	if err != nil {
		return err
	}
	if occupied {
		return ledger.ErrAlreadyInitialized
	}
	return m.writeProgramState(addr, st)
}

// ProgramStateGet loads the singleton control record.
func (m *Manager) ProgramStateGet() (*ledger.ProgramState, error) {
	data, err := m.get(StateAddress())
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	stored := new(storedProgramState)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode program state: %w", err)
	}
	return &ledger.ProgramState{
		Owner:          ledger.Identity(stored.Owner),
		RequestCounter: stored.RequestCounter,
	}, nil
}

// ProgramStatePut overwrites the singleton control record.
func (m *Manager) ProgramStatePut(st *ledger.ProgramState) error {
	if st == nil {
		return fmt.Errorf("state: nil program state")
	}
	return m.writeProgramState(StateAddress(), st)
}

func (m *Manager) writeProgramState(addr Address, st *ledger.ProgramState) error {
	encoded, err := rlp.EncodeToBytes(&storedProgramState{
		Owner:          st.Owner,
		RequestCounter: st.RequestCounter,
	})
	if err != nil {
		return err
	}
	m.put(addr, encoded)
	return nil
}

// RequestCreate persists a new request record. Creation fails with
// ErrAlreadyExists when the derived address is already occupied, so two
// submissions racing on the same id can never silently overwrite each other.
func (m *Manager) RequestCreate(r *ledger.Request) error {
	if r == nil {
		return fmt.Errorf("state: nil request")
	}
	addr := RequestAddress(r.ID)
	occupied, err := m.exists(addr)
	if err != nil {
		return err
	}
	if occupied {
		return ledger.ErrAlreadyExists
	}
	return m.writeRequest(addr, r)
}

// RequestGet loads the request stored under the given id.
func (m *Manager) RequestGet(id ledger.RequestID) (*ledger.Request, error) {
	data, err := m.get(RequestAddress(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	stored := new(storedRequest)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode request: %w", err)
	}
	return &ledger.Request{
		ID:     ledger.RequestID(stored.ID),
		Caller: ledger.Identity(stored.Caller),
		Amount: stored.Amount,
		Active: stored.Active,
	}, nil
}

// RequestPut overwrites an existing request record.
func (m *Manager) RequestPut(r *ledger.Request) error {
	if r == nil {
		return fmt.Errorf("state: nil request")
	}
	return m.writeRequest(RequestAddress(r.ID), r)
}

// RequestDelete removes the request record, freeing its storage.
func (m *Manager) RequestDelete(id ledger.RequestID) {
	m.del(RequestAddress(id))
}

func (m *Manager) writeRequest(addr Address, r *ledger.Request) error {
	encoded, err := rlp.EncodeToBytes(&storedRequest{
		ID:     r.ID,
		Caller: r.Caller,
		Amount: r.Amount,
		Active: r.Active,
	})
	if err != nil {
		return err
	}
	m.put(addr, encoded)
	return nil
}

// UserBalanceGet loads the balance record for an identity. The boolean
// reports whether the record exists; absence is a legitimate state, not a
// fault.
func (m *Manager) UserBalanceGet(user ledger.Identity) (*ledger.UserBalance, bool, error) {
	data, err := m.get(UserAddress(user))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	stored := new(storedUserBalance)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, fmt.Errorf("state: decode user balance: %w", err)
	}
	return &ledger.UserBalance{
		Owner:   ledger.Identity(stored.Owner),
		Balance: stored.Balance,
	}, true, nil
}

// UserBalancePut writes the balance record for its owner identity.
func (m *Manager) UserBalancePut(b *ledger.UserBalance) error {
	if b == nil {
		return fmt.Errorf("state: nil user balance")
	}
	encoded, err := rlp.EncodeToBytes(&storedUserBalance{
		Owner:   b.Owner,
		Balance: b.Balance,
	})
	if err != nil {
		return err
	}
	m.put(UserAddress(b.Owner), encoded)
	return nil
}
