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

// Package idt encodes the x86-64 interrupt descriptor table.
//
// The encoding is explicit: a Gate holds the sixteen hardware bytes as four
// little-endian words and every field is packed and unpacked by hand. Nothing
// relies on the memory layout of a Go struct with named fields.
package idt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

// GateSize is the size in bytes of one long-mode gate descriptor.
const GateSize = 16

// Gate must be exactly GateSize bytes; the CPU reads the table directly.
var _ = [1]struct{}{}[unsafe.Sizeof(Gate{})-GateSize]

var (
	// ErrShortBuffer is returned when decoding from fewer than GateSize
	// bytes.
	ErrShortBuffer = errors.New("buffer shorter than a gate descriptor")

	// ErrReservedBits is returned when a decoded gate has a non-zero
	// reserved word.
	ErrReservedBits = errors.New("reserved bits set in gate descriptor")
)

// PrivilegeLevel is a descriptor or requested privilege level.
type PrivilegeLevel uint8

// Privilege levels.
const (
	Ring0 PrivilegeLevel = iota
	Ring1
	Ring2
	Ring3
)

// Valid returns true if the level fits the two-bit hardware field.
func (p PrivilegeLevel) Valid() bool {
	return p <= Ring3
}

// Selector is a segment selector.
type Selector uint16

// maxSelectorIndex is the largest descriptor index a selector can carry.
const maxSelectorIndex = 1<<13 - 1

// NewSelector returns a GDT selector for the given descriptor index.
//
// It panics if index does not fit in thirteen bits or rpl is not a valid
// privilege level.
func NewSelector(index uint16, rpl PrivilegeLevel) Selector {
	if index > maxSelectorIndex {
		panic(fmt.Sprintf("selector index %d out of range", index))
	}
	if !rpl.Valid() {
		panic(fmt.Sprintf("requested privilege level %d out of range", rpl))
	}
	return Selector(index<<3 | uint16(rpl))
}

// Index returns the descriptor index.
func (s Selector) Index() uint16 {
	return uint16(s) >> 3
}

// LDT returns true if the selector refers to the local descriptor table.
func (s Selector) LDT() bool {
	return s&(1<<2) != 0
}

// RPL returns the requested privilege level.
func (s Selector) RPL() PrivilegeLevel {
	return PrivilegeLevel(s & 3)
}

// IsNull returns true for the null selector.
func (s Selector) IsNull() bool {
	return s.Index() == 0 && !s.LDT()
}

// String implements fmt.Stringer.
func (s Selector) String() string {
	table := "GDT"
	if s.LDT() {
		table = "LDT"
	}
	return fmt.Sprintf("%s[%d] RPL%d", table, s.Index(), s.RPL())
}

// Gate is a 64-bit interrupt or trap gate.
//
// Layout, in bytes:
//
//	0  handler offset 15:0
//	2  code segment selector
//	4  options (IST, type, DPL, present)
//	6  handler offset 31:16
//	8  handler offset 63:32
//	12 reserved, zero
type Gate struct {
	bits [4]uint32
}

// NewGate returns a present interrupt gate for handler in the segment sel,
// with DPL 0 and no interrupt stack.
//
// It panics if handler is zero: a present gate must have a target.
func NewGate(sel Selector, handler uintptr) Gate {
	if handler == 0 {
		panic("present gate with nil handler")
	}
	var g Gate
	g.setOffset(uint64(handler))
	g.bits[0] |= uint32(sel) << 16
	g.setOptions(DefaultOptions())
	return g
}

// MissingGate returns a not-present gate with a null selector.
func MissingGate() Gate {
	var g Gate
	g.setOptions(MinimalOptions())
	return g
}

func (g *Gate) setOffset(offset uint64) {
	g.bits[0] = g.bits[0]&0xFFFF0000 | uint32(offset&0xFFFF)
	g.bits[1] = g.bits[1]&0x0000FFFF | uint32(offset)&0xFFFF0000
	g.bits[2] = uint32(offset >> 32)
}

func (g *Gate) setOptions(opts GateOptions) {
	g.bits[1] = g.bits[1]&0xFFFF0000 | uint32(opts)
}

// WithOptions returns a copy of g with its options replaced.
func (g Gate) WithOptions(opts GateOptions) Gate {
	g.setOptions(opts)
	return g
}

// Handler returns the handler address.
func (g Gate) Handler() uintptr {
	return uintptr(uint64(g.bits[2])<<32 | uint64(g.bits[1]&0xFFFF0000) | uint64(g.bits[0]&0xFFFF))
}

// Selector returns the code segment selector.
func (g Gate) Selector() Selector {
	return Selector(g.bits[0] >> 16)
}

// Options returns the option bits.
func (g Gate) Options() GateOptions {
	return GateOptions(g.bits[1] & 0xFFFF)
}

// Present returns true if the gate is marked present.
func (g Gate) Present() bool {
	return g.Options().Present()
}

// Encode returns the hardware bytes of the gate.
func (g Gate) Encode() [GateSize]byte {
	var b [GateSize]byte
	for i, w := range g.bits {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

// AppendTo appends the hardware bytes of the gate to dst.
func (g Gate) AppendTo(dst []byte) []byte {
	for _, w := range g.bits {
		dst = binary.LittleEndian.AppendUint32(dst, w)
	}
	return dst
}

// DecodeGate decodes the first GateSize bytes of src.
func DecodeGate(src []byte) (Gate, error) {
	var g Gate
	if len(src) < GateSize {
		return g, fmt.Errorf("decoding %d bytes: %w", len(src), ErrShortBuffer)
	}
	for i := range g.bits {
		g.bits[i] = binary.LittleEndian.Uint32(src[i*4:])
	}
	if g.bits[3] != 0 {
		return g, fmt.Errorf("reserved word %#x: %w", g.bits[3], ErrReservedBits)
	}
	return g, nil
}

// String implements fmt.Stringer.
func (g Gate) String() string {
	if !g.Present() {
		return "missing"
	}
	return fmt.Sprintf("handler=%#x sel=%v %v", g.Handler(), g.Selector(), g.Options())
}
