package state

import (
	"errors"
	"testing"

	"tubbly/core/ledger"
)

func TestAddressDerivationIsDeterministic(t *testing.T) {
	if StateAddress() != StateAddress() {
		t.Fatalf("state address not stable")
	}

	id := ledger.RequestIDFromUint64(99)
	if RequestAddress(id) != RequestAddress(id) {
		t.Fatalf("request address not stable")
	}

	other := ledger.RequestIDFromUint64(100)
	if RequestAddress(id) == RequestAddress(other) {
		t.Fatalf("distinct ids collided")
	}

	user := testIdentity(5)
	if UserAddress(user) == UserAddress(testIdentity(6)) {
		t.Fatalf("distinct users collided")
	}

	// Entity namespaces never overlap even with crafted key material.
	if StateAddress() == RequestAddress(ledger.RequestID{}) {
		t.Fatalf("state and request namespaces collided")
	}
}

func TestCheckAddress(t *testing.T) {
	id := ledger.RequestIDFromUint64(1)
	derived := RequestAddress(id)
	if err := CheckAddress(derived, derived); err != nil {
		t.Fatalf("matching address rejected: %v", err)
	}
	wrong := RequestAddress(ledger.RequestIDFromUint64(2))
	if err := CheckAddress(wrong, derived); !errors.Is(err, ledger.ErrAddressMismatch) {
		t.Fatalf("expected address mismatch, got %v", err)
	}
}
