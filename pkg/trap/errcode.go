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

package trap

import (
	"fmt"
	"strings"
)

// PageFaultErrorCode is the error code pushed for a page fault.
type PageFaultErrorCode uint64

// Page fault error code bits.
const (
	// ProtectionViolation is set when the fault was a protection check
	// on a present page, and clear when the page was not present.
	ProtectionViolation PageFaultErrorCode = 1 << iota

	// CausedByWrite is set for write accesses.
	CausedByWrite

	// UserMode is set when the access came from CPL 3.
	UserMode

	// MalformedTable is set when a paging structure had reserved bits
	// set.
	MalformedTable

	// InstructionFetch is set when the access was an instruction fetch.
	InstructionFetch

	// ProtectionKey is set for protection key violations.
	ProtectionKey

	// ShadowStack is set for shadow stack accesses.
	ShadowStack
)

var pageFaultBitNames = []struct {
	bit  PageFaultErrorCode
	name string
}{
	{ProtectionViolation, "PROTECTION_VIOLATION"},
	{CausedByWrite, "CAUSED_BY_WRITE"},
	{UserMode, "USER_MODE"},
	{MalformedTable, "MALFORMED_TABLE"},
	{InstructionFetch, "INSTRUCTION_FETCH"},
	{ProtectionKey, "PROTECTION_KEY"},
	{ShadowStack, "SHADOW_STACK"},
}

const knownPageFaultBits = ProtectionViolation | CausedByWrite | UserMode |
	MalformedTable | InstructionFetch | ProtectionKey | ShadowStack

// PageFaultFlags is a decoded page fault error code.
type PageFaultFlags struct {
	ProtectionViolation bool
	CausedByWrite       bool
	UserMode            bool
	MalformedTable      bool
	InstructionFetch    bool
	ProtectionKey       bool
	ShadowStack         bool

	// Unknown holds the bits with no defined meaning. They are kept so
	// they can be reported.
	Unknown uint64
}

// Flags decodes the error code.
func (c PageFaultErrorCode) Flags() PageFaultFlags {
	return PageFaultFlags{
		ProtectionViolation: c&ProtectionViolation != 0,
		CausedByWrite:       c&CausedByWrite != 0,
		UserMode:            c&UserMode != 0,
		MalformedTable:      c&MalformedTable != 0,
		InstructionFetch:    c&InstructionFetch != 0,
		ProtectionKey:       c&ProtectionKey != 0,
		ShadowStack:         c&ShadowStack != 0,
		Unknown:             uint64(c &^ knownPageFaultBits),
	}
}

// String renders the set bits, e.g. "CAUSED_BY_WRITE | USER_MODE". Unknown
// bits are appended in hex. A zero code, a read of a page that is not
// present, renders as "0x0".
func (c PageFaultErrorCode) String() string {
	if c == 0 {
		return "0x0"
	}
	var parts []string
	for _, b := range pageFaultBitNames {
		if c&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if unknown := c &^ knownPageFaultBits; unknown != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint64(unknown)))
	}
	return strings.Join(parts, " | ")
}
