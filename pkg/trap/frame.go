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

// Package trap installs the exception handlers of the kernel.
//
// Control reaches this package in two steps. The processor first enters a
// small assembly stub through the gate installed in the IDT; the stub knows
// the shape of the frame the processor pushed for its vector and turns it
// into an ordinary call to trapEntry or trapEntryWithCode. Those functions
// then run the portable handler registered for the vector.
//
// Every populated vector except the breakpoint terminates the machine
// through the debug exit port; the breakpoint handler returns and the stub
// resumes the interrupted code with IRETQ.
package trap

import (
	"fmt"
	"unsafe"

	"jadro.dev/jadro/pkg/console"
)

// ExceptionFrame is the frame pushed by the processor on exception entry,
// lowest address first.
type ExceptionFrame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// FrameSize is the size of the processor-pushed frame.
const FrameSize = 40

var _ = [1]struct{}{}[unsafe.Sizeof(ExceptionFrame{})-FrameSize]

// DumpTo prints the frame.
func (f *ExceptionFrame) DumpTo(p console.Printer) {
	p.Printf("RIP = %016x CS  = %016x\n", f.RIP, f.CS)
	p.Printf("RSP = %016x SS  = %016x\n", f.RSP, f.SS)
	p.Printf("RFL = %016x\n", f.RFlags)
}

// String implements fmt.Stringer.
func (f *ExceptionFrame) String() string {
	return fmt.Sprintf("{RIP:%#x CS:%#x RFLAGS:%#x RSP:%#x SS:%#x}", f.RIP, f.CS, f.RFlags, f.RSP, f.SS)
}
