// Package fhe provides an in-process ciphertext coprocessor. Values live
// behind opaque 32-byte handles; callers can only combine them through the
// homomorphic operations below, and only principals granted in the ACL
// ledger can decrypt them.
package fhe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/blake3"
)

// Handle references a ciphertext.
type Handle = common.Hash

// Type is the plaintext type carried by a ciphertext.
type Type uint8

const (
	TypeEbool    Type = 0
	TypeEuint256 Type = 8
)

func (t Type) String() string {
	switch t {
	case TypeEbool:
		return "ebool"
	case TypeEuint256:
		return "euint256"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext handle")
	ErrTypeMismatch      = errors.New("ciphertext type mismatch")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrAccessDenied      = errors.New("ciphertext access denied")
)

// Grants is the permission ledger consulted on decryption.
type Grants interface {
	Grant(handle common.Hash, principals ...common.Address)
	IsGranted(handle common.Hash, principal common.Address) bool
}

// op codes mixed into handle derivation
const (
	opEncrypt byte = iota + 1
	opTrivial
	opAdd
	opSub
	opMul
	opScalarMul
	opScalarDiv
	opEq
	opGe
	opLe
	opLt
	opAnd
	opOr
	opNot
	opSelect
)

type ciphertext struct {
	typ   Type
	value uint256.Int
}

// Coprocessor evaluates operations over stored ciphertexts. Arithmetic wraps
// modulo 2^256. It is safe for concurrent use.
type Coprocessor struct {
	grants Grants

	mu     sync.RWMutex
	values map[Handle]ciphertext
	nonce  uint64
}

func NewCoprocessor(grants Grants) *Coprocessor {
	return &Coprocessor{
		grants: grants,
		values: make(map[Handle]ciphertext),
	}
}

// Encrypt registers a client-supplied input and grants it to owner.
func (c *Coprocessor) Encrypt(value *uint256.Int, owner common.Address) Handle {
	h := c.store(opEncrypt, ciphertext{typ: TypeEuint256, value: *value}, nil)
	if c.grants != nil {
		c.grants.Grant(h, owner)
	}
	return h
}

// EncryptBool registers a client-supplied boolean input.
func (c *Coprocessor) EncryptBool(value bool, owner common.Address) Handle {
	ct := ciphertext{typ: TypeEbool}
	if value {
		ct.value.SetOne()
	}
	h := c.store(opEncrypt, ct, nil)
	if c.grants != nil {
		c.grants.Grant(h, owner)
	}
	return h
}

// TrivialEncrypt wraps a public constant. Nobody is granted the result.
func (c *Coprocessor) TrivialEncrypt(value *uint256.Int) Handle {
	return c.store(opTrivial, ciphertext{typ: TypeEuint256, value: *value}, nil)
}

// TypeOf returns the type of a stored ciphertext.
func (c *Coprocessor) TypeOf(h Handle) (Type, bool) {
	c.mu.RLock()
	ct, ok := c.values[h]
	c.mu.RUnlock()
	return ct.typ, ok
}

// Decrypt returns the plaintext to a requester holding a grant.
func (c *Coprocessor) Decrypt(h Handle, requester common.Address) (*uint256.Int, error) {
	if c.grants == nil || !c.grants.IsGranted(h, requester) {
		return nil, fmt.Errorf("%w: %s for %s", ErrAccessDenied, h.Hex(), requester.Hex())
	}
	ct, err := c.load(h)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(&ct.value), nil
}

func (c *Coprocessor) Add(lhs, rhs Handle) (Handle, error) {
	return c.binary(opAdd, lhs, rhs, TypeEuint256, TypeEuint256, func(z, x, y *uint256.Int) {
		z.Add(x, y)
	})
}

func (c *Coprocessor) Sub(lhs, rhs Handle) (Handle, error) {
	return c.binary(opSub, lhs, rhs, TypeEuint256, TypeEuint256, func(z, x, y *uint256.Int) {
		z.Sub(x, y)
	})
}

func (c *Coprocessor) Mul(lhs, rhs Handle) (Handle, error) {
	return c.binary(opMul, lhs, rhs, TypeEuint256, TypeEuint256, func(z, x, y *uint256.Int) {
		z.Mul(x, y)
	})
}

// ScalarMul multiplies a ciphertext by a public constant.
func (c *Coprocessor) ScalarMul(ct Handle, scalar *uint256.Int) (Handle, error) {
	return c.scalar(opScalarMul, ct, scalar, func(z, x, k *uint256.Int) {
		z.Mul(x, k)
	})
}

// ScalarDiv divides a ciphertext by a public non-zero constant, flooring.
func (c *Coprocessor) ScalarDiv(ct Handle, scalar *uint256.Int) (Handle, error) {
	if scalar == nil || scalar.IsZero() {
		return Handle{}, ErrDivisionByZero
	}
	return c.scalar(opScalarDiv, ct, scalar, func(z, x, k *uint256.Int) {
		z.Div(x, k)
	})
}

// Eq compares two ciphertexts of the same type.
func (c *Coprocessor) Eq(lhs, rhs Handle) (Handle, error) {
	l, r, err := c.loadPair(lhs, rhs)
	if err != nil {
		return Handle{}, err
	}
	if l.typ != r.typ {
		return Handle{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, l.typ, r.typ)
	}
	return c.store(opEq, boolCiphertext(l.value.Eq(&r.value)), []Handle{lhs, rhs}), nil
}

func (c *Coprocessor) Ge(lhs, rhs Handle) (Handle, error) {
	return c.compare(opGe, lhs, rhs, func(x, y *uint256.Int) bool { return !x.Lt(y) })
}

func (c *Coprocessor) Le(lhs, rhs Handle) (Handle, error) {
	return c.compare(opLe, lhs, rhs, func(x, y *uint256.Int) bool { return !x.Gt(y) })
}

func (c *Coprocessor) Lt(lhs, rhs Handle) (Handle, error) {
	return c.compare(opLt, lhs, rhs, func(x, y *uint256.Int) bool { return x.Lt(y) })
}

func (c *Coprocessor) And(lhs, rhs Handle) (Handle, error) {
	return c.binary(opAnd, lhs, rhs, TypeEbool, TypeEbool, func(z, x, y *uint256.Int) {
		z.And(x, y)
	})
}

func (c *Coprocessor) Or(lhs, rhs Handle) (Handle, error) {
	return c.binary(opOr, lhs, rhs, TypeEbool, TypeEbool, func(z, x, y *uint256.Int) {
		z.Or(x, y)
	})
}

func (c *Coprocessor) Not(ct Handle) (Handle, error) {
	v, err := c.loadTyped(ct, TypeEbool)
	if err != nil {
		return Handle{}, err
	}
	return c.store(opNot, boolCiphertext(v.value.IsZero()), []Handle{ct}), nil
}

// Select returns a fresh handle holding ifTrue when cond is true and ifFalse
// otherwise. The result handle is derived the same way in both cases.
func (c *Coprocessor) Select(cond, ifTrue, ifFalse Handle) (Handle, error) {
	control, err := c.loadTyped(cond, TypeEbool)
	if err != nil {
		return Handle{}, err
	}
	t, f, err := c.loadPair(ifTrue, ifFalse)
	if err != nil {
		return Handle{}, err
	}
	if t.typ != f.typ {
		return Handle{}, fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, t.typ, f.typ)
	}
	chosen := f
	if !control.value.IsZero() {
		chosen = t
	}
	return c.store(opSelect, chosen, []Handle{cond, ifTrue, ifFalse}), nil
}

func (c *Coprocessor) binary(op byte, lhs, rhs Handle, want Type, out Type, fn func(z, x, y *uint256.Int)) (Handle, error) {
	l, r, err := c.loadPair(lhs, rhs)
	if err != nil {
		return Handle{}, err
	}
	if l.typ != want || r.typ != want {
		return Handle{}, fmt.Errorf("%w: want %s, got %s and %s", ErrTypeMismatch, want, l.typ, r.typ)
	}
	res := ciphertext{typ: out}
	fn(&res.value, &l.value, &r.value)
	return c.store(op, res, []Handle{lhs, rhs}), nil
}

func (c *Coprocessor) scalar(op byte, h Handle, k *uint256.Int, fn func(z, x, k *uint256.Int)) (Handle, error) {
	if k == nil {
		return Handle{}, fmt.Errorf("nil scalar")
	}
	v, err := c.loadTyped(h, TypeEuint256)
	if err != nil {
		return Handle{}, err
	}
	res := ciphertext{typ: TypeEuint256}
	fn(&res.value, &v.value, k)
	return c.store(op, res, []Handle{h}), nil
}

func (c *Coprocessor) compare(op byte, lhs, rhs Handle, fn func(x, y *uint256.Int) bool) (Handle, error) {
	l, r, err := c.loadPair(lhs, rhs)
	if err != nil {
		return Handle{}, err
	}
	if l.typ != TypeEuint256 || r.typ != TypeEuint256 {
		return Handle{}, fmt.Errorf("%w: compare needs %s", ErrTypeMismatch, TypeEuint256)
	}
	return c.store(op, boolCiphertext(fn(&l.value, &r.value)), []Handle{lhs, rhs}), nil
}

func (c *Coprocessor) load(h Handle) (ciphertext, error) {
	c.mu.RLock()
	ct, ok := c.values[h]
	c.mu.RUnlock()
	if !ok {
		return ciphertext{}, fmt.Errorf("%w: %s", ErrInvalidCiphertext, h.Hex())
	}
	return ct, nil
}

func (c *Coprocessor) loadTyped(h Handle, want Type) (ciphertext, error) {
	ct, err := c.load(h)
	if err != nil {
		return ciphertext{}, err
	}
	if ct.typ != want {
		return ciphertext{}, fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, want, ct.typ)
	}
	return ct, nil
}

func (c *Coprocessor) loadPair(lhs, rhs Handle) (ciphertext, ciphertext, error) {
	l, err := c.load(lhs)
	if err != nil {
		return ciphertext{}, ciphertext{}, err
	}
	r, err := c.load(rhs)
	if err != nil {
		return ciphertext{}, ciphertext{}, err
	}
	return l, r, nil
}

// store assigns a fresh handle. Handles depend only on the op, its operand
// handles and a counter, never on the plaintext.
func (c *Coprocessor) store(op byte, ct ciphertext, operands []Handle) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nonce++
	h := blake3.New()
	h.Write([]byte{op, byte(ct.typ)})
	for _, operand := range operands {
		h.Write(operand[:])
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], c.nonce)
	h.Write(nonce[:])

	var id Handle
	h.Digest().Read(id[:])
	c.values[id] = ct
	return id
}

func boolCiphertext(v bool) ciphertext {
	ct := ciphertext{typ: TypeEbool}
	if v {
		ct.value.SetOne()
	}
	return ct
}
