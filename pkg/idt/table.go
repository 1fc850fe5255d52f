// Copyright 2024 The Jadro Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package idt

import (
	"errors"
	"fmt"
	"unsafe"
)

// Size is the number of vectors in a Table. It covers the exception vectors
// reserved by the architecture; the hardware accepts up to 256.
const Size = 32

// The table must at least span the vectors the trap core populates.
var _ [Size - 16]struct{}

var (
	// ErrVectorOutOfRange is returned when a vector does not index the
	// table.
	ErrVectorOutOfRange = errors.New("vector out of table range")

	// ErrInvalidOptions is returned when options would install a gate that
	// is not present or not a valid 64-bit gate.
	ErrInvalidOptions = errors.New("invalid gate options")
)

// Pointer is the operand of the LIDT instruction.
type Pointer struct {
	// Limit is the offset of the last valid byte of the table.
	Limit uint16

	// Base is the linear address of the first gate.
	Base uint64
}

// String implements fmt.Stringer.
func (p Pointer) String() string {
	return fmt.Sprintf("base=%#x limit=%#x", p.Base, p.Limit)
}

// Loader loads a descriptor table register.
type Loader interface {
	// LoadIDT loads p into IDTR.
	LoadIDT(p Pointer)
}

// Table is an interrupt descriptor table indexed by vector.
//
// Once installed, a Table is read by the processor at any instruction
// boundary. It must never move or be freed, and it should not be modified
// except by re-running the code that built it.
type Table [Size]Gate

// NewTable returns a table with every gate missing.
func NewTable() *Table {
	t := new(Table)
	t.Reset()
	return t
}

// Reset marks every gate missing.
func (t *Table) Reset() {
	for i := range t {
		t[i] = MissingGate()
	}
}

func checkVector(v Vector) error {
	if int(v) >= Size {
		return fmt.Errorf("vector %d, table size %d: %w", v, Size, ErrVectorOutOfRange)
	}
	return nil
}

// SetHandler installs a present interrupt gate for v pointing at handler in
// the code segment sel. Any previous gate for v is overwritten.
//
// If v is outside the table, no gate is modified and ErrVectorOutOfRange is
// returned.
func (t *Table) SetHandler(v Vector, sel Selector, handler uintptr) error {
	if err := checkVector(v); err != nil {
		return err
	}
	t[v] = NewGate(sel, handler)
	return nil
}

// SetHandlerWithOptions is SetHandler followed by replacing the gate options
// with opts. opts must be valid and present: a slot is either missing or
// installed, never a not-present gate with a target.
func (t *Table) SetHandlerWithOptions(v Vector, sel Selector, handler uintptr, opts GateOptions) error {
	if err := checkVector(v); err != nil {
		return err
	}
	if !opts.Valid() || !opts.Present() {
		return fmt.Errorf("vector %d, options %v: %w", v, opts, ErrInvalidOptions)
	}
	t[v] = NewGate(sel, handler).WithOptions(opts)
	return nil
}

// Gate returns the gate for v.
func (t *Table) Gate(v Vector) (Gate, error) {
	if err := checkVector(v); err != nil {
		return Gate{}, err
	}
	return t[v], nil
}

// Present returns the vectors with a present gate, in ascending order.
func (t *Table) Present() []Vector {
	var vs []Vector
	for i, g := range t {
		if g.Present() {
			vs = append(vs, Vector(i))
		}
	}
	return vs
}

// Pointer returns the IDTR operand for t.
func (t *Table) Pointer() Pointer {
	return Pointer{
		Limit: uint16(len(t)*GateSize - 1),
		Base:  uint64(uintptr(unsafe.Pointer(t))),
	}
}

// Install loads t into the processor through l.
//
// Precondition: t lives for the remainder of the process. The processor
// keeps only the address, so installing a table that is later reused for
// something else has undefined results.
func (t *Table) Install(l Loader) {
	l.LoadIDT(t.Pointer())
}

// Encode returns the in-memory image of the table.
func (t *Table) Encode() []byte {
	b := make([]byte, 0, len(t)*GateSize)
	for _, g := range t {
		b = g.AppendTo(b)
	}
	return b
}
