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

package ring0

import (
	"unsafe"

	"jadro.dev/jadro/pkg/idt"
	"jadro.dev/jadro/pkg/vga"
)

// lidt loads IDTR from the 10 byte operand at ptr.
func lidt(ptr *byte)

// readCS reads the code segment selector.
func readCS() uint16

// readCR2 reads the current CR2 value.
func readCR2() uintptr

// outl writes a 32-bit value to an I/O port.
func outl(port uint16, val uint32)

// outb writes a byte to an I/O port.
func outb(port uint16, val uint8)

// inb reads a byte from an I/O port.
func inb(port uint16) uint8

// hlt halts until the next interrupt.
func hlt()

// divideByZero executes a DIV with a zero divisor.
func divideByZero()

// int3 executes a breakpoint instruction.
func int3()

// ud2 executes the undefined instruction.
func ud2()

// store64 writes v to the linear address addr.
func store64(addr uintptr, v uint64)

// Native is the processor the code is running on.
type Native struct{}

// LoadIDT implements idt.Loader.LoadIDT.
func (Native) LoadIDT(p idt.Pointer) {
	// The LIDT operand is a packed 2 byte limit followed by an 8 byte
	// base.
	var operand [10]byte
	operand[0] = byte(p.Limit)
	operand[1] = byte(p.Limit >> 8)
	for i := 0; i < 8; i++ {
		operand[2+i] = byte(p.Base >> (8 * i))
	}
	lidt(&operand[0])
}

// CodeSelector returns the current CS.
func (Native) CodeSelector() idt.Selector {
	return idt.Selector(readCS())
}

// ReadCR2 returns the faulting address of the last page fault.
func (Native) ReadCR2() uintptr {
	return readCR2()
}

// Out32 implements qemu.PortWriter.Out32.
func (Native) Out32(port uint16, val uint32) {
	outl(port, val)
}

// Out8 implements serial.PortIO.Out8.
func (Native) Out8(port uint16, val uint8) {
	outb(port, val)
}

// In8 implements serial.PortIO.In8.
func (Native) In8(port uint16) uint8 {
	return inb(port)
}

// Halt executes HLT.
func (Native) Halt() {
	hlt()
}

// DivideByZero raises a divide error.
func (Native) DivideByZero() {
	divideByZero()
}

// Breakpoint raises a breakpoint exception. It returns if the handler does.
func (Native) Breakpoint() {
	int3()
}

// InvalidOpcode raises an invalid opcode exception.
func (Native) InvalidOpcode() {
	ud2()
}

// Store64 writes v to the linear address addr, faulting if it is not
// mapped.
func (Native) Store64(addr uintptr, v uint64) {
	store64(addr, v)
}

// TextBuffer returns the memory-mapped VGA text buffer.
//
//go:nocheckptr
func (Native) TextBuffer() []uint16 {
	return unsafe.Slice((*uint16)(unsafe.Pointer(uintptr(vga.BufferAddress))), vga.Width*vga.Height)
}
