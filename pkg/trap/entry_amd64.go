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

//go:build amd64

package trap

import (
	"jadro.dev/jadro/pkg/idt"
)

// Entry stubs, see entry_amd64.s. These are never called from Go.
func divideByZero()
func breakpoint()
func invalidOpcode()
func pageFault()

// Stub addresses (ABI0).
func addrOfDivideByZero() uintptr
func addrOfBreakpoint() uintptr
func addrOfInvalidOpcode() uintptr
func addrOfPageFault() uintptr

func archStubs() []Stub {
	return []Stub{
		{Vector: idt.DivideByZero, Variant: NoErrorCode, Addr: addrOfDivideByZero()},
		{Vector: idt.Breakpoint, Variant: NoErrorCode, Addr: addrOfBreakpoint()},
		{Vector: idt.InvalidOpcode, Variant: NoErrorCode, Addr: addrOfInvalidOpcode()},
		{Vector: idt.PageFault, Variant: WithErrorCode, Addr: addrOfPageFault()},
	}
}
