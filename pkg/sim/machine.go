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

// Package sim is a software x86-64 machine for running the kernel on the
// host.
//
// The machine executes kernel code as ordinary Go and models only what the
// exception path observes: IDTR, CS, CR2, the memory map, the serial port,
// the text buffer and the debug exit device. Exceptions are delivered the
// way the processor does it, by reading the gate for the vector out of the
// table IDTR points at and entering the stub found there. A gate that
// cannot be used escalates to a general protection fault, then a double
// fault and finally a reset.
package sim

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
	"unsafe"

	"jadro.dev/jadro/pkg/idt"
	"jadro.dev/jadro/pkg/log"
	"jadro.dev/jadro/pkg/qemu"
	"jadro.dev/jadro/pkg/serial"
	"jadro.dev/jadro/pkg/trap"
	"jadro.dev/jadro/pkg/vga"
)

// KernelCodeSelector is the only code segment the machine has.
var KernelCodeSelector = idt.NewSelector(1, idt.Ring0)

// Initial register state.
const (
	TextBase   = 0x200000
	StackTop   = 0x3ff000
	initRFlags = 0x2
)

// Instruction lengths of the fault triggers.
const (
	divLen   = 2 // div ecx
	int3Len  = 1
	ud2Len   = 2
	storeLen = 3 // mov [rax], rbx
)

var (
	// ErrTripleFault is returned by Run when the machine resets.
	ErrTripleFault = errors.New("triple fault")

	// ErrUsed is returned by Run on a machine that already ran.
	ErrUsed = errors.New("machine already ran")
)

// Delivery records an exception entering the table.
type Delivery struct {
	Vector    idt.Vector
	ErrorCode uint64
	Frame     trap.ExceptionFrame
}

// Machine is a software x86-64 machine.
type Machine struct {
	mem    *Memory
	screen []uint16
	serial bytes.Buffer
	lcr    uint8

	idtr      idt.Pointer
	idtLoaded bool
	cr2       uintptr
	rip       uint64
	rsp       uint64

	// handling is the stack of exceptions whose handlers are running.
	handling []idt.Vector

	deliveries []Delivery
	faults     []string

	exited   bool
	exitCode qemu.ExitCode
	reset    bool
	hung     bool
	ran      bool

	warn log.Logger
}

// New returns a machine with the default memory map.
func New() *Machine {
	m := &Machine{
		mem:    NewMemory(),
		screen: make([]uint16, vga.Width*vga.Height),
		rip:    TextBase,
		rsp:    StackTop,
		warn:   log.BasicRateLimitedLogger(time.Second),
	}
	for _, r := range []struct {
		name     string
		start    uint64
		length   uint64
		writable bool
	}{
		{"vga", vga.BufferAddress, uint64(2 * len(m.screen)), true},
		{"rodata", 0x100000, 0x100000, false},
		{"kernel", TextBase, StackTop - TextBase, true},
	} {
		if err := m.mem.Map(r.name, r.start, r.length, r.writable); err != nil {
			panic(fmt.Sprintf("default memory map: %v", err))
		}
	}
	return m
}

// Memory returns the address space of the machine.
func (m *Machine) Memory() *Memory {
	return m.mem
}

// LoadIDT implements idt.Loader.LoadIDT.
func (m *Machine) LoadIDT(p idt.Pointer) {
	log.Debugf("sim: LIDT %v", p)
	m.idtr = p
	m.idtLoaded = true
}

// IDTR returns the loaded IDTR value.
func (m *Machine) IDTR() (idt.Pointer, bool) {
	return m.idtr, m.idtLoaded
}

// CodeSelector implements trap.Machine.CodeSelector.
func (m *Machine) CodeSelector() idt.Selector {
	return KernelCodeSelector
}

// ReadCR2 implements trap.Machine.ReadCR2.
func (m *Machine) ReadCR2() uintptr {
	return m.cr2
}

// Out32 implements qemu.PortWriter.Out32. A write to the debug exit port
// ends the run.
func (m *Machine) Out32(port uint16, val uint32) {
	if port != qemu.DebugExitPort {
		m.warn.Warningf("sim: 32-bit write of %#x to unknown port %#x", val, port)
		return
	}
	m.exited = true
	m.exitCode = qemu.ExitCode(val)
	runtime.Goexit()
}

// Out8 implements serial.PortIO.Out8.
func (m *Machine) Out8(port uint16, val uint8) {
	switch port {
	case serial.COM1 + serial.RegData:
		if m.lcr&serial.LineControlDLAB == 0 {
			m.serial.WriteByte(val)
		}
	case serial.COM1 + serial.RegLineControl:
		m.lcr = val
	case serial.COM1 + serial.RegIntEnable, serial.COM1 + serial.RegFIFOControl, serial.COM1 + serial.RegModemCtrl:
	default:
		m.warn.Warningf("sim: write of %#x to unknown port %#x", val, port)
	}
}

// In8 implements serial.PortIO.In8.
func (m *Machine) In8(port uint16) uint8 {
	if port == serial.COM1+serial.RegLineStatus {
		return serial.LineStatusTHRE | 0x40
	}
	return 0xff
}

// Halt implements trap.Machine.Halt. Nothing on the machine raises
// interrupts, so a halted processor never resumes and the run ends.
func (m *Machine) Halt() {
	if !m.exited {
		m.hung = true
	}
	runtime.Goexit()
}

// TextBuffer returns the text-mode frame buffer.
func (m *Machine) TextBuffer() []uint16 {
	return m.screen
}

// DivideByZero executes a division by zero.
func (m *Machine) DivideByZero() {
	m.execute(idt.DivideByZero, divLen)
}

// Breakpoint executes int3.
func (m *Machine) Breakpoint() {
	m.execute(idt.Breakpoint, int3Len)
}

// InvalidOpcode executes ud2.
func (m *Machine) InvalidOpcode() {
	m.execute(idt.InvalidOpcode, ud2Len)
}

// Store64 writes v to addr, raising a page fault if the address is not
// mapped writable.
func (m *Machine) Store64(addr uintptr, v uint64) {
	pc := m.rip
	code, ok := m.mem.Store64(uint64(addr), v)
	if !ok {
		m.cr2 = addr
		m.raise(idt.PageFault, uint64(code), pc, pc)
		m.restarted(idt.PageFault)
	}
	m.rip = pc + storeLen
}

// execute runs an instruction of length n that raises v.
func (m *Machine) execute(v idt.Vector, n uint64) {
	pc := m.rip
	saved := pc + n
	if v.IsFault() {
		saved = pc
	}
	m.raise(v, 0, pc, saved)
	if v.IsFault() {
		m.restarted(v)
	}
	m.rip = pc + n
}

// restarted is called when a fault handler returned. The processor would
// execute the faulting instruction again, forever.
func (m *Machine) restarted(v idt.Vector) {
	m.faults = append(m.faults, fmt.Sprintf("%v handler returned, instruction restarts", v))
	m.hung = true
	runtime.Goexit()
}

func isContributory(v idt.Vector) bool {
	switch v {
	case idt.DivideByZero, idt.InvalidTSS, idt.SegmentNotPresent, idt.StackSegmentFault, idt.GeneralProtectionFault:
		return true
	}
	return false
}

// raise delivers v. pc is the address of the instruction that raised it and
// rip the instruction pointer saved in the frame.
func (m *Machine) raise(v idt.Vector, code uint64, pc, rip uint64) {
	if n := len(m.handling); n > 0 {
		prev := m.handling[n-1]
		switch {
		case prev == idt.DoubleFault:
			m.tripleFault(fmt.Sprintf("%v while handling a double fault", v))
		case (isContributory(prev) || prev == idt.PageFault) && (isContributory(v) || v == idt.PageFault):
			m.faults = append(m.faults, fmt.Sprintf("%v while handling %v", v, prev))
			m.raise(idt.DoubleFault, 0, pc, pc)
			return
		}
	}

	stub, err := m.gate(v)
	if err != nil {
		m.faults = append(m.faults, fmt.Sprintf("delivering %v: %v", v, err))
		m.warn.Warningf("sim: cannot deliver %v: %v", v, err)
		switch {
		case v == idt.DoubleFault:
			m.tripleFault("double fault not deliverable")
		case isContributory(v) || v == idt.PageFault:
			m.raise(idt.DoubleFault, 0, pc, pc)
		default:
			m.raise(idt.GeneralProtectionFault, 0, pc, pc)
		}
		return
	}

	frame := trap.ExceptionFrame{
		RIP:    rip,
		CS:     uint64(KernelCodeSelector),
		RFlags: initRFlags,
		RSP:    m.rsp,
		SS:     0,
	}
	m.deliveries = append(m.deliveries, Delivery{Vector: v, ErrorCode: code, Frame: frame})
	log.Debugf("sim: delivering %v at %#x to stub %#x", v, rip, stub.Addr)

	m.handling = append(m.handling, v)
	stub.Enter(&frame, code)
	m.handling = m.handling[:len(m.handling)-1]
}

// gate returns the stub the gate for v leads to, checking everything the
// processor checks on the way and that the stub expects the frame shape
// the processor pushes for v.
func (m *Machine) gate(v idt.Vector) (trap.Stub, error) {
	if !m.idtLoaded {
		return trap.Stub{}, errors.New("IDTR not loaded")
	}
	off := uint64(v) * idt.GateSize
	if off+idt.GateSize-1 > uint64(m.idtr.Limit) {
		return trap.Stub{}, fmt.Errorf("gate at offset %#x beyond limit %#x", off, m.idtr.Limit)
	}
	g, err := idt.DecodeGate(readGate(m.idtr.Base + off))
	if err != nil {
		return trap.Stub{}, err
	}
	if !g.Present() {
		return trap.Stub{}, errors.New("gate not present")
	}
	if !g.Options().Valid() {
		return trap.Stub{}, fmt.Errorf("gate options %v are not a 64-bit interrupt gate", g.Options())
	}
	if g.Selector() != KernelCodeSelector {
		return trap.Stub{}, fmt.Errorf("selector %v is not a code segment", g.Selector())
	}
	stub, ok := trap.LookupStub(g.Handler())
	if !ok {
		return trap.Stub{}, fmt.Errorf("handler %#x is not an entry stub", g.Handler())
	}
	if stub.Vector != v {
		return trap.Stub{}, fmt.Errorf("handler %#x is the stub for %v", g.Handler(), stub.Vector)
	}
	if want := trap.VariantFor(v); stub.Variant != want {
		return trap.Stub{}, fmt.Errorf("%v stub installed, frame has shape %v", stub.Variant, want)
	}
	return stub, nil
}

// readGate returns the gate bytes at the linear address addr. Tables are
// built in host memory, so the address is a host pointer.
//
//go:nocheckptr
func readGate(addr uint64) []byte {
	b := make([]byte, idt.GateSize)
	copy(b, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), idt.GateSize))
	return b
}

func (m *Machine) tripleFault(reason string) {
	m.faults = append(m.faults, "triple fault: "+reason)
	log.Warningf("sim: machine reset: %s", strings.Join(m.faults, "; "))
	m.reset = true
	runtime.Goexit()
}

// Result is the outcome of a run.
type Result struct {
	// Output is everything written to the serial port.
	Output string

	// Screen is the text left on the screen.
	Screen string

	// Exited is true if the program wrote to the debug exit port, and
	// ExitCode is the value written.
	Exited   bool
	ExitCode qemu.ExitCode

	// Reset is true if the machine triple faulted.
	Reset bool

	// Hung is true if the processor halted for good without exiting.
	Hung bool

	// Returned is true if the program returned.
	Returned bool

	// Reason lists the faults that were not handled, oldest first.
	Reason string

	// Deliveries lists the exceptions delivered to stubs.
	Deliveries []Delivery
}

// Passed returns true if the program exited with qemu.Success.
func (r Result) Passed() bool {
	return r.Exited && r.ExitCode == qemu.Success
}

// HostStatus is the exit status QEMU would report for the run: the debug
// exit status, 0 for a reset under -no-reboot, and 1 otherwise.
func (r Result) HostStatus() int {
	switch {
	case r.Exited:
		return qemu.HostStatus(r.ExitCode)
	case r.Reset:
		return 0
	default:
		return 1
	}
}

// Run runs fn as the program of the machine and returns once it exits,
// halts for good, resets or returns. A machine runs one program.
//
// A panic escaping fn is propagated to the caller.
func (m *Machine) Run(fn func()) (Result, error) {
	if m.ran {
		return Result{}, ErrUsed
	}
	m.ran = true

	var (
		done     = make(chan struct{})
		returned bool
		panicked any
	)
	go func() {
		defer close(done)
		defer func() {
			panicked = recover()
		}()
		fn()
		returned = true
	}()
	<-done
	if panicked != nil {
		panic(panicked)
	}

	res := Result{
		Output:     m.serial.String(),
		Screen:     vga.NewWriter(m.screen).Text(),
		Exited:     m.exited,
		ExitCode:   m.exitCode,
		Reset:      m.reset,
		Hung:       m.hung && !m.exited,
		Returned:   returned,
		Reason:     strings.Join(m.faults, "; "),
		Deliveries: m.deliveries,
	}
	if m.reset {
		return res, fmt.Errorf("%s: %w", res.Reason, ErrTripleFault)
	}
	return res, nil
}
