package formula

import (
	"testing"

	"github.com/holiman/uint256"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestComputeOutputReferenceSwap(t *testing.T) {
	reserveIn, reserveOut, amountIn := u(1_000_000), u(500_000), u(10_000)

	if got := AmountInAfterFee(amountIn, 30); got.Uint64() != 9_970 {
		t.Fatalf("after fee: got %s", got)
	}
	num, den, overflow := Fraction(reserveIn, reserveOut, amountIn, 30)
	if overflow {
		t.Fatalf("unexpected overflow")
	}
	if num.Uint64() != 4_985_000_000 || den.Uint64() != 1_009_970 {
		t.Fatalf("fraction: got %s/%s", num, den)
	}
	if got := ComputeOutput(reserveIn, reserveOut, amountIn, 30); got.Uint64() != 4_935 {
		t.Fatalf("output: got %s", got)
	}
}

func TestComputeOutputZeroCases(t *testing.T) {
	tests := []struct {
		name                          string
		reserveIn, reserveOut, amount *uint256.Int
		fee                           uint16
	}{
		{name: "empty reserve in", reserveIn: u(0), reserveOut: u(100), amount: u(10), fee: 30},
		{name: "empty reserve out", reserveIn: u(100), reserveOut: u(0), amount: u(10), fee: 30},
		{name: "zero amount", reserveIn: u(100), reserveOut: u(100), amount: u(0), fee: 30},
		{name: "full fee", reserveIn: u(100), reserveOut: u(100), amount: u(10), fee: BasisPoints},
		{name: "nil", reserveIn: nil, reserveOut: u(100), amount: u(10), fee: 30},
		{name: "dust", reserveIn: u(1_000_000), reserveOut: u(10), amount: u(1), fee: 30},
	}
	for _, tt := range tests {
		if got := ComputeOutput(tt.reserveIn, tt.reserveOut, tt.amount, tt.fee); !got.IsZero() {
			t.Fatalf("%s: expected zero, got %s", tt.name, got)
		}
	}
}

func TestComputeOutputMonotonic(t *testing.T) {
	reserveIn, reserveOut := u(1_000_000), u(500_000)
	prev := new(uint256.Int)
	for amount := uint64(0); amount <= 200_000; amount += 997 {
		out := ComputeOutput(reserveIn, reserveOut, u(amount), 30)
		if out.Lt(prev) {
			t.Fatalf("output decreased at %d: %s < %s", amount, out, prev)
		}
		if !out.Lt(reserveOut) {
			t.Fatalf("output %s reached reserve", out)
		}
		prev = out
	}
}

func TestComputeOutputDeterministic(t *testing.T) {
	a := ComputeOutput(u(123_456_789), u(987_654_321), u(55_555), 25)
	b := ComputeOutput(u(123_456_789), u(987_654_321), u(55_555), 25)
	if !a.Eq(b) {
		t.Fatalf("non-deterministic: %s vs %s", a, b)
	}
}

func TestComputeOutputWide(t *testing.T) {
	// 2^200 on each side overflows the numerator product.
	big := new(uint256.Int).Lsh(u(1), 200)
	amount := new(uint256.Int).Lsh(u(1), 190)

	if _, _, overflow := Fraction(big, big, amount, 0); !overflow {
		t.Fatalf("expected overflow")
	}
	out := ComputeOutput(big, big, amount, 0)
	if out.IsZero() || !out.Lt(big) {
		t.Fatalf("unexpected output %s", out)
	}

	wantNum, wantDen := FractionBig(big, big, amount, 0)
	want := wantNum.Quo(wantNum, wantDen)
	if out.ToBig().Cmp(want) != 0 {
		t.Fatalf("got %s, want %s", out, want)
	}
}

func TestFeeAmount(t *testing.T) {
	tests := []struct {
		amount uint64
		fee    uint16
		want   uint64
	}{
		{amount: 10_000, fee: 30, want: 30},
		{amount: 333, fee: 30, want: 0},
		{amount: 334, fee: 300, want: 10},
		{amount: 1_000, fee: 0, want: 0},
	}
	for _, tt := range tests {
		if got := FeeAmount(u(tt.amount), tt.fee); got.Uint64() != tt.want {
			t.Fatalf("fee(%d, %d): got %s, want %d", tt.amount, tt.fee, got, tt.want)
		}
	}
}
