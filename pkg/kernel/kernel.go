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

// Package kernel contains the kernel entry point and the programs it can
// run.
package kernel

import (
	"fmt"

	"jadro.dev/jadro/pkg/console"
	"jadro.dev/jadro/pkg/qemu"
	"jadro.dev/jadro/pkg/serial"
	"jadro.dev/jadro/pkg/trap"
	"jadro.dev/jadro/pkg/vga"
)

// CPU is the processor the kernel runs on.
type CPU interface {
	trap.Machine
	serial.PortIO

	// DivideByZero executes a division by zero.
	DivideByZero()

	// Breakpoint executes int3.
	Breakpoint()

	// InvalidOpcode executes ud2.
	InvalidOpcode()

	// Store64 writes v to the linear address addr.
	Store64(addr uintptr, v uint64)

	// TextBuffer returns the text-mode frame buffer.
	TextBuffer() []uint16
}

// Kernel is the state of a booted kernel.
type Kernel struct {
	CPU    CPU
	Serial *serial.Port
	Screen *vga.Writer

	// Console writes to both the serial port and the screen.
	Console *console.Console

	// Env is the environment exception handlers run in.
	Env *trap.Env
}

// New brings up the serial port and the screen on cpu.
func New(cpu CPU) *Kernel {
	port := serial.New(cpu, serial.COM1)
	port.Init()
	screen := vga.NewWriter(cpu.TextBuffer())
	screen.Clear()
	c := console.New(port, screen)
	return &Kernel{
		CPU:     cpu,
		Serial:  port,
		Screen:  screen,
		Console: c,
		Env:     &trap.Env{CPU: cpu, Out: c},
	}
}

// Printf prints to the console.
func (k *Kernel) Printf(format string, args ...any) {
	k.Console.Printf(format, args...)
}

// Serialf prints to the serial port only.
func (k *Kernel) Serialf(format string, args ...any) {
	fmt.Fprintf(k.Serial, format, args...)
}

// Exit ends the run with code.
func (k *Kernel) Exit(code qemu.ExitCode) trap.Never {
	return k.Env.Exit(code)
}

// Hang halts forever.
func (k *Kernel) Hang() trap.Never {
	for {
		k.CPU.Halt()
	}
}

// Program is something the kernel runs after boot.
type Program struct {
	Name        string
	Description string

	// Main runs the program.
	Main func(k *Kernel) trap.Never

	// Panic is called with the value of a panic in Main. If nil, the
	// panic is printed and the kernel hangs.
	Panic func(k *Kernel, v any) trap.Never
}

// Main boots the kernel on cpu and runs p.
func Main(cpu CPU, p *Program) trap.Never {
	return New(cpu).Run(p)
}

// Run runs p.
func (k *Kernel) Run(p *Program) (n trap.Never) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if p.Panic != nil {
			n = p.Panic(k, r)
			return
		}
		k.Printf("panic: %v\n", r)
		n = k.Hang()
	}()
	return p.Main(k)
}
