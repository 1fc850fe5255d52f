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

//go:build !amd64

package trap

import (
	"reflect"

	"jadro.dev/jadro/pkg/idt"
)

// Go stand-ins for the amd64 entry stubs. They give every stub a distinct
// address so tables can be built and inspected; executing them is an error.
func divideByZero()  { panic("trap: entry stub executed on a non-amd64 build") }
func breakpoint()    { panic("trap: entry stub executed on a non-amd64 build") }
func invalidOpcode() { panic("trap: entry stub executed on a non-amd64 build") }
func pageFault()     { panic("trap: entry stub executed on a non-amd64 build") }

func addrOf(fn func()) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

func archStubs() []Stub {
	return []Stub{
		{Vector: idt.DivideByZero, Variant: NoErrorCode, Addr: addrOf(divideByZero)},
		{Vector: idt.Breakpoint, Variant: NoErrorCode, Addr: addrOf(breakpoint)},
		{Vector: idt.InvalidOpcode, Variant: NoErrorCode, Addr: addrOf(invalidOpcode)},
		{Vector: idt.PageFault, Variant: WithErrorCode, Addr: addrOf(pageFault)},
	}
}
