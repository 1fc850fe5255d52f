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

// Package serial drives a 16550-compatible UART through port I/O.
package serial

// COM1 is the I/O base of the first serial port.
const COM1 = 0x3f8

// Register offsets from the port base.
const (
	RegData        = 0 // Data, or divisor low byte with DLAB set.
	RegIntEnable   = 1 // Interrupt enable, or divisor high byte with DLAB set.
	RegFIFOControl = 2
	RegLineControl = 3
	RegModemCtrl   = 4
	RegLineStatus  = 5
)

// Line control and line status bits.
const (
	// LineControlDLAB maps the divisor latch over the data and interrupt
	// enable registers.
	LineControlDLAB = 0x80

	// LineStatusTHRE is set while the transmit holding register is empty.
	LineStatusTHRE = 0x20
)

const (
	lineControl8N1  = 0x03
	fifoEnableClear = 0xc7 // Enable, clear both queues, 14-byte threshold.
	modemDTRRTSOut2 = 0x0b

	// divisor38400 selects 38400 baud from the 115200 base clock.
	divisor38400 = 3
)

// PortIO performs byte-wide port I/O.
type PortIO interface {
	Out8(port uint16, val uint8)
	In8(port uint16) uint8
}

// Port is a UART at a fixed I/O base.
type Port struct {
	io   PortIO
	base uint16
}

// New returns the UART at base. Init must be called before use.
func New(io PortIO, base uint16) *Port {
	return &Port{io: io, base: base}
}

// Init programs 38400 baud, 8N1, FIFOs enabled and interrupts disabled.
func (p *Port) Init() {
	p.io.Out8(p.base+RegIntEnable, 0x00)
	p.io.Out8(p.base+RegLineControl, LineControlDLAB)
	p.io.Out8(p.base+RegData, divisor38400)
	p.io.Out8(p.base+RegIntEnable, 0x00)
	p.io.Out8(p.base+RegLineControl, lineControl8N1)
	p.io.Out8(p.base+RegFIFOControl, fifoEnableClear)
	p.io.Out8(p.base+RegModemCtrl, modemDTRRTSOut2)
}

// WriteByte transmits c once the transmit register is free.
func (p *Port) WriteByte(c byte) error {
	for p.io.In8(p.base+RegLineStatus)&LineStatusTHRE == 0 {
	}
	p.io.Out8(p.base+RegData, c)
	return nil
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	for _, c := range b {
		p.WriteByte(c)
	}
	return len(b), nil
}
