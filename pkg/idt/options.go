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
	"fmt"
	"strings"
)

// GateOptions is the sixteen-bit options word of a gate.
type GateOptions uint16

// Option bits.
const (
	optStackIndexMask GateOptions = 0x7     // Bits 0-2: IST index.
	optTrapGate       GateOptions = 1 << 8  // Interrupts stay enabled on entry.
	optMustBeOne      GateOptions = 7 << 9  // Bits 9-11: fixed type pattern.
	optDPLShift                   = 13      // Bits 13-14: descriptor privilege.
	optDPLMask        GateOptions = 3 << optDPLShift
	optPresent        GateOptions = 1 << 15 // Present.

	// MaxStackIndex is the largest interrupt stack table index.
	MaxStackIndex = 7
)

// MinimalOptions returns options with only the must-be-one bits set. The gate
// is not present.
func MinimalOptions() GateOptions {
	return optMustBeOne
}

// DefaultOptions returns the options used by NewGate: present, interrupts
// disabled on entry, DPL 0, no interrupt stack.
func DefaultOptions() GateOptions {
	return MinimalOptions().SetPresent(true).SetInterruptsEnabled(false)
}

// SetPresent returns o with the present bit set or cleared.
func (o GateOptions) SetPresent(present bool) GateOptions {
	if present {
		return o | optPresent
	}
	return o &^ optPresent
}

// SetInterruptsEnabled returns o describing a trap gate (interrupts stay
// enabled on entry) or an interrupt gate (interrupts are disabled on entry).
func (o GateOptions) SetInterruptsEnabled(enabled bool) GateOptions {
	if enabled {
		return o | optTrapGate
	}
	return o &^ optTrapGate
}

// SetPrivilegeLevel returns o with the descriptor privilege level set.
//
// Values outside Ring0..Ring3 are rejected with a panic rather than masked.
func (o GateOptions) SetPrivilegeLevel(dpl PrivilegeLevel) GateOptions {
	if !dpl.Valid() {
		panic(fmt.Sprintf("gate privilege level %d out of range", dpl))
	}
	return o&^optDPLMask | GateOptions(dpl)<<optDPLShift
}

// SetStackIndex returns o with the interrupt stack table index set. Zero
// means the current stack is used.
//
// Values above MaxStackIndex are rejected with a panic rather than masked.
func (o GateOptions) SetStackIndex(index uint8) GateOptions {
	if index > MaxStackIndex {
		panic(fmt.Sprintf("gate stack index %d out of range", index))
	}
	return o&^optStackIndexMask | GateOptions(index)
}

// Present returns true if the present bit is set.
func (o GateOptions) Present() bool {
	return o&optPresent != 0
}

// InterruptsEnabled returns true for a trap gate.
func (o GateOptions) InterruptsEnabled() bool {
	return o&optTrapGate != 0
}

// PrivilegeLevel returns the descriptor privilege level.
func (o GateOptions) PrivilegeLevel() PrivilegeLevel {
	return PrivilegeLevel((o & optDPLMask) >> optDPLShift)
}

// StackIndex returns the interrupt stack table index.
func (o GateOptions) StackIndex() uint8 {
	return uint8(o & optStackIndexMask)
}

// Valid returns true if the fixed bits have their mandated values.
func (o GateOptions) Valid() bool {
	const zeroBits = 0x1F<<3 | 1<<12
	return o&optMustBeOne == optMustBeOne && o&zeroBits == 0
}

// String implements fmt.Stringer.
func (o GateOptions) String() string {
	var parts []string
	if o.Present() {
		parts = append(parts, "P")
	}
	if o.InterruptsEnabled() {
		parts = append(parts, "trap")
	} else {
		parts = append(parts, "intr")
	}
	parts = append(parts, fmt.Sprintf("DPL%d", o.PrivilegeLevel()))
	if ist := o.StackIndex(); ist != 0 {
		parts = append(parts, fmt.Sprintf("IST%d", ist))
	}
	return fmt.Sprintf("%#04x(%s)", uint16(o), strings.Join(parts, ","))
}
