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
	"jadro.dev/jadro/pkg/console"
	"jadro.dev/jadro/pkg/idt"
	"jadro.dev/jadro/pkg/qemu"
)

// Machine is the processor state the trap path needs.
type Machine interface {
	idt.Loader
	qemu.PortWriter

	// CodeSelector returns the current code segment selector.
	CodeSelector() idt.Selector

	// ReadCR2 returns the faulting address of the last page fault.
	ReadCR2() uintptr

	// Halt stops the processor until the next interrupt.
	Halt()
}

// Env is the environment handlers run in.
type Env struct {
	CPU Machine
	Out console.Printer
}

// Never marks functions that do not return to their caller. Go cannot
// forbid constructing a value, so the type only documents the contract: a
// terminating handler ends with "return env.Exit(...)", and Exit never
// actually returns because it halts forever after signaling.
type Never struct {
	_ [0]func()
}

// Exit signals code on the debug exit port and halts forever.
func (e *Env) Exit(code qemu.ExitCode) Never {
	qemu.Exit(e.CPU, code)
	for {
		e.CPU.Halt()
	}
}
