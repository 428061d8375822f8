package approvals

import (
	"encoding/hex"
	"strconv"

	"tubbly/core/events"
	"tubbly/core/ledger"
	"tubbly/crypto"
)

const (
	EventTypeSubmission       = "approvals.submission"
	EventTypeConfirmation     = "approvals.confirmation"
	EventTypeOwnershipChanged = "approvals.ownership_changed"
	EventTypeRequestReclaimed = "approvals.request_reclaimed"
)

// NewSubmissionEvent returns the canonical payload emitted when a request is
// created.
func NewSubmissionEvent(r *ledger.Request) events.Event {
	return events.Event{
		Type: EventTypeSubmission,
		Attributes: map[string]string{
			"id":     hex.EncodeToString(r.ID[:]),
			"caller": crypto.EncodeIdentity(r.Caller),
			"amount": strconv.FormatUint(r.Amount, 10),
		},
	}
}

// NewConfirmationEvent returns the canonical payload emitted when the owner
// confirms a request and the user balance is credited.
func NewConfirmationEvent(r *ledger.Request, newBalance uint64) events.Event {
	return events.Event{
		Type: EventTypeConfirmation,
		Attributes: map[string]string{
			"id":         hex.EncodeToString(r.ID[:]),
			"caller":     crypto.EncodeIdentity(r.Caller),
			"amount":     strconv.FormatUint(r.Amount, 10),
			"newBalance": strconv.FormatUint(newBalance, 10),
		},
	}
}

// NewOwnershipChangedEvent returns the canonical payload emitted when program
// ownership moves. Initialization emits it with a zero previous owner.
func NewOwnershipChangedEvent(prev, next ledger.Identity) events.Event {
	attrs := map[string]string{
		"newOwner": crypto.EncodeIdentity(next),
	}
	if !prev.IsZero() {
		attrs["prevOwner"] = crypto.EncodeIdentity(prev)
	}
	return events.Event{Type: EventTypeOwnershipChanged, Attributes: attrs}
}

// NewRequestReclaimedEvent returns the canonical payload emitted when a
// confirmed request's storage is reclaimed.
func NewRequestReclaimedEvent(r *ledger.Request, reclaimer ledger.Identity) events.Event {
	return events.Event{
		Type: EventTypeRequestReclaimed,
		Attributes: map[string]string{
			"id":        hex.EncodeToString(r.ID[:]),
			"caller":    crypto.EncodeIdentity(r.Caller),
			"reclaimer": crypto.EncodeIdentity(reclaimer),
		},
	}
}
