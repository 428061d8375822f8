package approvals

import (
	"errors"

	"tubbly/core/events"
	"tubbly/core/ledger"
	"tubbly/core/state"
)

var errNilState = errors.New("approvals engine: state not configured")

// engineState is the slice of the state manager the engine needs. Creation
// methods enforce occupancy semantics (AlreadyExists / AlreadyInitialized);
// gets surface ErrNotFound.
type engineState interface {
	ProgramStateCreate(*ledger.ProgramState) error
	ProgramStateGet() (*ledger.ProgramState, error)
	ProgramStatePut(*ledger.ProgramState) error
	RequestCreate(*ledger.Request) error
	RequestGet(ledger.RequestID) (*ledger.Request, error)
	RequestPut(*ledger.Request) error
	RequestDelete(ledger.RequestID)
	UserBalanceGet(ledger.Identity) (*ledger.UserBalance, bool, error)
	UserBalancePut(*ledger.UserBalance) error
}

// Engine wires the approval workflow's business logic with external state and
// event emitters. Every instruction validates the caller-supplied address
// against the derived one and checks authorization before mutating anything.
type Engine struct {
	state         engineState
	emitter       events.Emitter
	restrictReads bool
}

// NewEngine creates an engine with a no-op emitter. Callers can override the
// emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(st engineState) { e.state = st }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetRestrictReads gates GetRequest behind the owner check when enabled.
func (e *Engine) SetRestrictReads(restrict bool) { e.restrictReads = restrict }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) loadProgramState() (*ledger.ProgramState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.ProgramStateGet()
}

// Initialize bootstraps the program: the first caller becomes owner and the
// request counter starts at zero. It fails with ErrAlreadyInitialized when
// the state record already exists.
func (e *Engine) Initialize(caller ledger.Identity, stateAddr state.Address) (*ledger.ProgramState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := state.CheckAddress(stateAddr, state.StateAddress()); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ledger.ErrUnauthorized
	}
	st := &ledger.ProgramState{Owner: caller, RequestCounter: 0}
	if err := e.state.ProgramStateCreate(st); err != nil {
		return nil, err
	}
	e.emit(NewOwnershipChangedEvent(ledger.Identity{}, caller))
	return st, nil
}

// Submit creates a request for amount under the caller-chosen id and
// increments the submission counter. The id's derived address must be vacant;
// a colliding id fails with ErrAlreadyExists and never overwrites.
func (e *Engine) Submit(caller ledger.Identity, id ledger.RequestID, amount uint64, reqAddr state.Address) (*ledger.Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := state.CheckAddress(reqAddr, state.RequestAddress(id)); err != nil {
		return nil, err
	}
	if caller.IsZero() {
		return nil, ledger.ErrUnauthorized
	}
	if amount == 0 {
		return nil, ledger.ErrInvalidAmount
	}
	st, err := e.loadProgramState()
	if err != nil {
		return nil, err
	}
	req := &ledger.Request{
		ID:     id,
		Caller: caller,
		Amount: amount,
		Active: true,
	}
	if err := e.state.RequestCreate(req); err != nil {
		return nil, err
	}
	st.RequestCounter++
	if err := e.state.ProgramStatePut(st); err != nil {
		return nil, err
	}
	e.emit(NewSubmissionEvent(req))
	return req.Clone(), nil
}

// Confirm closes an active request and credits its amount to the submitting
// user's balance, creating the balance record on first use. Only the owner
// may confirm, only once per request, and the credit is overflow-checked.
func (e *Engine) Confirm(caller ledger.Identity, id ledger.RequestID, reqAddr state.Address) (*ledger.Request, uint64, error) {
	if e == nil || e.state == nil {
		return nil, 0, errNilState
	}
	if err := state.CheckAddress(reqAddr, state.RequestAddress(id)); err != nil {
		return nil, 0, err
	}
	st, err := e.loadProgramState()
	if err != nil {
		return nil, 0, err
	}
	if err := requireOwner(st, caller); err != nil {
		return nil, 0, err
	}
	req, err := e.state.RequestGet(id)
	if err != nil {
		return nil, 0, err
	}
	if req.ID != id {
		return nil, 0, ledger.ErrAddressMismatch
	}
	if !req.Active {
		return nil, 0, ledger.ErrRequestNotActive
	}
	balance, ok, err := e.state.UserBalanceGet(req.Caller)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		balance = &ledger.UserBalance{Owner: req.Caller}
	}
	credited, err := ledger.Credit(balance.Balance, req.Amount)
	if err != nil {
		return nil, 0, err
	}
	balance.Balance = credited
	if err := e.state.UserBalancePut(balance); err != nil {
		return nil, 0, err
	}
	req.Active = false
	if err := e.state.RequestPut(req); err != nil {
		return nil, 0, err
	}
	e.emit(NewConfirmationEvent(req, credited))
	return req.Clone(), credited, nil
}

// BalanceOf returns the accumulated balance for an identity. An absent
// balance record reads as zero; never having been credited is a legitimate
// state, not a fault.
func (e *Engine) BalanceOf(user ledger.Identity, userAddr state.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := state.CheckAddress(userAddr, state.UserAddress(user)); err != nil {
		return 0, err
	}
	balance, ok, err := e.state.UserBalanceGet(user)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return balance.Balance, nil
}

// GetRequest returns the stored request for an id. When read restriction is
// enabled only the owner may view requests.
func (e *Engine) GetRequest(viewer ledger.Identity, id ledger.RequestID, reqAddr state.Address) (*ledger.Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := state.CheckAddress(reqAddr, state.RequestAddress(id)); err != nil {
		return nil, err
	}
	if e.restrictReads {
		st, err := e.loadProgramState()
		if err != nil {
			return nil, err
		}
		if err := requireOwner(st, viewer); err != nil {
			return nil, err
		}
	}
	req, err := e.state.RequestGet(id)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// ChangeOwnership hands program control to a new identity. Only the current
// owner may invoke it and the new owner must not be the zero identity. The
// swap is atomic; there is no window with two valid owners.
func (e *Engine) ChangeOwnership(caller, newOwner ledger.Identity) (*ledger.ProgramState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st, err := e.loadProgramState()
	if err != nil {
		return nil, err
	}
	if err := requireOwner(st, caller); err != nil {
		return nil, err
	}
	if newOwner.IsZero() {
		return nil, ledger.ErrZeroOwner
	}
	prev := st.Owner
	st.Owner = newOwner
	if err := e.state.ProgramStatePut(st); err != nil {
		return nil, err
	}
	e.emit(NewOwnershipChangedEvent(prev, newOwner))
	return st, nil
}

// Reclaim deletes a confirmed request record, freeing its storage. Only the
// request's submitter or the program owner may reclaim, and never while the
// request is still active.
func (e *Engine) Reclaim(caller ledger.Identity, id ledger.RequestID, reqAddr state.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := state.CheckAddress(reqAddr, state.RequestAddress(id)); err != nil {
		return err
	}
	st, err := e.loadProgramState()
	if err != nil {
		return err
	}
	req, err := e.state.RequestGet(id)
	if err != nil {
		return err
	}
	if req.Active {
		return ledger.ErrRequestStillActive
	}
	if requireSelf(caller, req.Caller) != nil && requireOwner(st, caller) != nil {
		return ledger.ErrUnauthorized
	}
	e.state.RequestDelete(id)
	e.emit(NewRequestReclaimedEvent(req, caller))
	return nil
}
