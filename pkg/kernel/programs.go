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

package kernel

import (
	"sort"

	"jadro.dev/jadro/pkg/idt"
	"jadro.dev/jadro/pkg/qemu"
	"jadro.dev/jadro/pkg/trap"
)

// PageFaultAddress is the address the page-fault program writes to.
const PageFaultAddress = 0xcafebabe

func didNotPanic(k *Kernel) trap.Never {
	k.Serialf("[test did not panic]\n")
	return k.Exit(qemu.Failed)
}

var programs = map[string]*Program{
	"boot": {
		Description: "install the IDT and greet",
		Main: func(k *Kernel) trap.Never {
			trap.Init(k.Env)
			k.Printf("Wake UP, %s\n", "NEO!")
			return k.Exit(qemu.Success)
		},
	},
	"divide-by-zero": {
		Description: "divide by zero; the handler exits with success",
		Main: func(k *Kernel) trap.Never {
			trap.Init(k.Env)
			k.CPU.DivideByZero()
			return didNotPanic(k)
		},
		Panic: ExpectPanic,
	},
	"breakpoint": {
		Description: "execute int3 and continue after the handler returns",
		Main: func(k *Kernel) trap.Never {
			trap.Init(k.Env)
			k.CPU.Breakpoint()
			k.Serialf("resumed after breakpoint\n")
			return k.Exit(qemu.Success)
		},
		Panic: PanicHandler,
	},
	"invalid-opcode": {
		Description: "execute ud2; the handler exits with success",
		Main: func(k *Kernel) trap.Never {
			trap.Init(k.Env)
			k.CPU.InvalidOpcode()
			return didNotPanic(k)
		},
		Panic: ExpectPanic,
	},
	"page-fault": {
		Description: "write to an unmapped address; the handler exits with success",
		Main: func(k *Kernel) trap.Never {
			trap.Init(k.Env)
			k.CPU.Store64(PageFaultAddress, 69)
			return didNotPanic(k)
		},
		Panic: ExpectPanic,
	},
	"double-init": {
		Description: "install the IDT twice, then take a breakpoint",
		Main: func(k *Kernel) trap.Never {
			trap.Init(k.Env)
			trap.Init(k.Env)
			k.CPU.Breakpoint()
			return k.Exit(qemu.Success)
		},
		Panic: PanicHandler,
	},
	"should-panic": {
		Description: "fail an assertion; reported through the panic handler",
		Main: func(k *Kernel) trap.Never {
			k.Serialf("should_panic::should_fail...\t")
			AssertEqual(0, 1)
			return didNotPanic(k)
		},
		Panic: ExpectPanic,
	},
	"self-test": {
		Description: "run the in-kernel test suite",
		Main: func(k *Kernel) trap.Never {
			return k.RunTests(selfTests)
		},
		Panic: PanicHandler,
	},
}

func init() {
	for name, p := range programs {
		p.Name = name
	}
}

var selfTests = []Test{
	{
		Name: "trivial_assertion",
		Fn: func(*Kernel) {
			AssertEqual(1, 1)
		},
	},
	{
		Name: "println_many",
		Fn: func(k *Kernel) {
			for i := 0; i < 200; i++ {
				k.Screen.Write([]byte("println_many output\n"))
			}
		},
	},
	{
		Name: "idt_installed",
		Fn: func(k *Kernel) {
			trap.Init(k.Env)
			tbl, ok := trap.Installed()
			AssertEqual(ok, true)
			AssertEqual(len(tbl.Present()), len(trap.Registry()))
			for _, r := range trap.Registry() {
				g, err := tbl.Gate(r.Vector)
				AssertEqual(err, nil)
				AssertEqual(g.Selector(), k.CPU.CodeSelector())
			}
		},
	},
	{
		Name: "breakpoint_resumes",
		Fn: func(k *Kernel) {
			trap.Init(k.Env)
			k.CPU.Breakpoint()
		},
	},
	{
		Name: "missing_gate_not_present",
		Fn: func(*Kernel) {
			tbl, _ := trap.Installed()
			g, _ := tbl.Gate(idt.GeneralProtectionFault)
			AssertEqual(g.Present(), false)
		},
	},
}

// Lookup returns the program called name.
func Lookup(name string) (*Program, bool) {
	p, ok := programs[name]
	return p, ok
}

// Programs returns all programs sorted by name.
func Programs() []*Program {
	ps := make([]*Program, 0, len(programs))
	for _, p := range programs {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps
}
