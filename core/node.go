package core

import (
	"log/slog"
	"sync"

	"tubbly/core/events"
	"tubbly/core/ledger"
	"tubbly/core/state"
	"tubbly/native/approvals"
	"tubbly/storage"
)

const defaultEventRetention = 256

// Node executes ledger instructions one at a time. Each instruction runs
// against a staged state overlay: on success the overlay commits to the
// database in a single atomic batch and buffered events flow to the sink; on
// any error both are discarded. Either every mutation of an instruction
// lands, or none do.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	manager *state.Manager
	engine  *approvals.Engine
	buffer  *events.Buffer
	sink    events.Emitter
	ring    *events.Ring
}

// Option adjusts node construction.
type Option func(*Node)

// WithRestrictedReads gates request reads behind the owner check.
func WithRestrictedReads() Option {
	return func(n *Node) { n.engine.SetRestrictReads(true) }
}

// WithLogger mirrors every committed event onto the given logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		n.sink = events.Multi{n.ring, events.LogEmitter{Logger: logger}}
	}
}

// WithEventRetention sizes the in-memory event tail.
func WithEventRetention(capacity int) Option {
	return func(n *Node) {
		n.ring = events.NewRing(capacity)
		n.sink = events.Multi{n.ring}
	}
}

// NewNode wires the state manager and approvals engine over the database.
func NewNode(db storage.Database, opts ...Option) *Node {
	node := &Node{
		db:      db,
		manager: state.NewManager(db),
		engine:  approvals.NewEngine(),
		buffer:  new(events.Buffer),
		ring:    events.NewRing(defaultEventRetention),
	}
	node.sink = events.Multi{node.ring}
	node.engine.SetState(node.manager)
	node.engine.SetEmitter(node.buffer)
	for _, opt := range opts {
		opt(node)
	}
	return node
}

// run executes one instruction under the node mutex with commit-or-discard
// semantics. Events never escape a failed instruction.
func (n *Node) run(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := fn(); err != nil {
		n.manager.Discard()
		n.buffer.Discard()
		return err
	}
	if err := n.manager.Commit(); err != nil {
		n.buffer.Discard()
		return err
	}
	for _, evt := range n.buffer.Drain() {
		n.sink.Emit(evt)
	}
	return nil
}

// Initialize bootstraps the program state with the caller as owner.
func (n *Node) Initialize(caller ledger.Identity, stateAddr state.Address) (*ledger.ProgramState, error) {
	var st *ledger.ProgramState
	err := n.run(func() error {
		var err error
		st, err = n.engine.Initialize(caller, stateAddr)
		return err
	})
	return st, err
}

// Submit records a new credit request under the caller-chosen id.
func (n *Node) Submit(caller ledger.Identity, id ledger.RequestID, amount uint64, reqAddr state.Address) (*ledger.Request, error) {
	var req *ledger.Request
	err := n.run(func() error {
		var err error
		req, err = n.engine.Submit(caller, id, amount, reqAddr)
		return err
	})
	return req, err
}

// Confirm closes a request and credits the submitter's balance. It returns
// the closed request and the balance after the credit.
func (n *Node) Confirm(caller ledger.Identity, id ledger.RequestID, reqAddr state.Address) (*ledger.Request, uint64, error) {
	var (
		req        *ledger.Request
		newBalance uint64
	)
	err := n.run(func() error {
		var err error
		req, newBalance, err = n.engine.Confirm(caller, id, reqAddr)
		return err
	})
	return req, newBalance, err
}

// BalanceOf reads the accumulated balance for an identity.
func (n *Node) BalanceOf(user ledger.Identity, userAddr state.Address) (uint64, error) {
	var balance uint64
	err := n.run(func() error {
		var err error
		balance, err = n.engine.BalanceOf(user, userAddr)
		return err
	})
	return balance, err
}

// GetRequest reads a stored request.
func (n *Node) GetRequest(viewer ledger.Identity, id ledger.RequestID, reqAddr state.Address) (*ledger.Request, error) {
	var req *ledger.Request
	err := n.run(func() error {
		var err error
		req, err = n.engine.GetRequest(viewer, id, reqAddr)
		return err
	})
	return req, err
}

// ChangeOwnership hands program control to a new identity.
func (n *Node) ChangeOwnership(caller, newOwner ledger.Identity) (*ledger.ProgramState, error) {
	var st *ledger.ProgramState
	err := n.run(func() error {
		var err error
		st, err = n.engine.ChangeOwnership(caller, newOwner)
		return err
	})
	return st, err
}

// Reclaim deletes a confirmed request record.
func (n *Node) Reclaim(caller ledger.Identity, id ledger.RequestID, reqAddr state.Address) error {
	return n.run(func() error {
		return n.engine.Reclaim(caller, id, reqAddr)
	})
}

// StateInfo reads the program control record.
func (n *Node) StateInfo() (*ledger.ProgramState, error) {
	var st *ledger.ProgramState
	err := n.run(func() error {
		var err error
		st, err = n.manager.ProgramStateGet()
		return err
	})
	return st, err
}

// Events returns up to limit recent committed events, oldest first.
func (n *Node) Events(limit int) []events.Event {
	return n.ring.Recent(limit)
}
