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
	"jadro.dev/jadro/pkg/idt"
	"jadro.dev/jadro/pkg/qemu"
)

// Handler handles an exception and returns to the interrupted code.
type Handler func(env *Env, frame *ExceptionFrame)

// FatalHandler handles an exception without an error code and does not
// return.
type FatalHandler func(env *Env, frame *ExceptionFrame) Never

// FaultHandler handles an exception with an error code and does not
// return.
type FaultHandler func(env *Env, frame *ExceptionFrame, code uint64) Never

func report(env *Env, v idt.Vector, frame *ExceptionFrame) {
	env.Out.Printf("EXCEPTION: %s at %#x\n", v.Name(), frame.RIP)
	frame.DumpTo(env.Out)
}

func divideByZeroHandler(env *Env, frame *ExceptionFrame) Never {
	report(env, idt.DivideByZero, frame)
	return env.Exit(qemu.Success)
}

// breakpointHandler returns; execution continues after the int3.
func breakpointHandler(env *Env, frame *ExceptionFrame) {
	report(env, idt.Breakpoint, frame)
}

func invalidOpcodeHandler(env *Env, frame *ExceptionFrame) Never {
	report(env, idt.InvalidOpcode, frame)
	return env.Exit(qemu.Success)
}

func pageFaultHandler(env *Env, frame *ExceptionFrame, code uint64) Never {
	env.Out.Printf("EXCEPTION: %s while accessing %#x\n", idt.PageFault.Name(), env.CPU.ReadCR2())
	env.Out.Printf("error code: %v\n", PageFaultErrorCode(code))
	frame.DumpTo(env.Out)
	return env.Exit(qemu.Success)
}

// unhandled reports an exception nobody registered for. Only reachable
// through a stub whose vector has no registration.
func unhandled(env *Env, v idt.Vector, frame *ExceptionFrame) Never {
	env.Out.Printf("EXCEPTION: UNHANDLED %s at %#x\n", v.Name(), frame.RIP)
	frame.DumpTo(env.Out)
	return env.Exit(qemu.Failed)
}
