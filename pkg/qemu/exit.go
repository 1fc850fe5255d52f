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

// Package qemu signals test results through QEMU's isa-debug-exit device and
// runs kernel images under QEMU on the host.
package qemu

import "fmt"

// DebugExitPort is the I/O base of the isa-debug-exit device.
const DebugExitPort = 0xf4

// ExitCode is a value written to the debug exit port.
type ExitCode uint32

// Exit codes understood by the test harness.
const (
	Success ExitCode = 0x10
	Failed  ExitCode = 0x11
)

// String implements fmt.Stringer.
func (c ExitCode) String() string {
	switch c {
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("exit(%#x)", uint32(c))
	}
}

// PortWriter writes a 32-bit value to an I/O port.
type PortWriter interface {
	Out32(port uint16, val uint32)
}

// Exit writes code to the debug exit port. QEMU terminates as a result; on
// other hosts the write is ignored and Exit returns.
func Exit(p PortWriter, code ExitCode) {
	p.Out32(DebugExitPort, uint32(code))
}

// HostStatus is the exit status of the QEMU process after the guest writes
// code to the debug exit port.
func HostStatus(code ExitCode) int {
	return int(code)<<1 | 1
}

// FromHostStatus maps a QEMU process exit status back to the guest exit
// code. ok is false for statuses the device cannot produce, such as 0 when
// the guest shut down normally.
func FromHostStatus(status int) (code ExitCode, ok bool) {
	if status&1 == 0 {
		return 0, false
	}
	return ExitCode(status >> 1), true
}
