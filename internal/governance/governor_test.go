package governance

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestNewValidates(t *testing.T) {
	if _, err := New(common.Address{}, 30); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected ErrInvalidOwner, got %v", err)
	}
	if _, err := New(owner, 1001); !errors.Is(err, ErrFeeOutOfRange) {
		t.Fatalf("expected ErrFeeOutOfRange, got %v", err)
	}
}

func TestSetFee(t *testing.T) {
	g, err := New(owner, 30)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tests := []struct {
		name   string
		caller common.Address
		fee    uint16
		want   error
		expect uint16
	}{
		{name: "stranger", caller: stranger, fee: 50, want: ErrUnauthorized, expect: 30},
		{name: "too high", caller: owner, fee: 1001, want: ErrFeeOutOfRange, expect: 30},
		{name: "max", caller: owner, fee: 1000, expect: 1000},
		{name: "zero", caller: owner, fee: 0, expect: 0},
	}
	for _, tt := range tests {
		err := g.SetFee(tt.caller, tt.fee)
		if tt.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
		if got := g.FeeBps(); got != tt.expect {
			t.Fatalf("%s: fee %d, want %d", tt.name, got, tt.expect)
		}
	}
}

func TestPauseUnpause(t *testing.T) {
	g, _ := New(owner, 30)
	if err := g.Pause(stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := g.Pause(owner); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := g.RequireActive(); !errors.Is(err, ErrPoolPaused) {
		t.Fatalf("expected ErrPoolPaused, got %v", err)
	}
	if err := g.Unpause(stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := g.Unpause(owner); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := g.RequireActive(); err != nil {
		t.Fatalf("expected active, got %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	g, _ := New(owner, 30)
	if err := g.TransferOwnership(stranger, stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := g.TransferOwnership(owner, common.Address{}); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected ErrInvalidOwner, got %v", err)
	}
	if err := g.TransferOwnership(owner, stranger); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if g.Owner() != stranger {
		t.Fatalf("owner not updated")
	}
	if err := g.SetFee(owner, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old owner kept rights: %v", err)
	}
}
