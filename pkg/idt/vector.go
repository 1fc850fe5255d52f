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

package idt

import "fmt"

// Vector is an exception vector.
type Vector uint8

// Exception vectors.
const (
	DivideByZero Vector = iota
	Debug
	NMI
	Breakpoint
	Overflow
	BoundRangeExceeded
	InvalidOpcode
	DeviceNotAvailable
	DoubleFault
	CoprocessorSegmentOverrun
	InvalidTSS
	SegmentNotPresent
	StackSegmentFault
	GeneralProtectionFault
	PageFault
	_
	X87FloatingPointException
	AlignmentCheck
	MachineCheck
	SIMDFloatingPointException
	VirtualizationException
	ControlProtectionException
	HypervisorInjectionException Vector = 0x1c
	VMMCommunicationException    Vector = 0x1d
	SecurityException            Vector = 0x1e
)

var vectorNames = map[Vector]string{
	DivideByZero:                 "DIVIDE BY ZERO",
	Debug:                        "DEBUG",
	NMI:                          "NON-MASKABLE INTERRUPT",
	Breakpoint:                   "BREAKPOINT",
	Overflow:                     "OVERFLOW",
	BoundRangeExceeded:           "BOUND RANGE EXCEEDED",
	InvalidOpcode:                "INVALID OPCODE",
	DeviceNotAvailable:           "DEVICE NOT AVAILABLE",
	DoubleFault:                  "DOUBLE FAULT",
	CoprocessorSegmentOverrun:    "COPROCESSOR SEGMENT OVERRUN",
	InvalidTSS:                   "INVALID TSS",
	SegmentNotPresent:            "SEGMENT NOT PRESENT",
	StackSegmentFault:            "STACK SEGMENT FAULT",
	GeneralProtectionFault:       "GENERAL PROTECTION FAULT",
	PageFault:                    "PAGE FAULT",
	X87FloatingPointException:    "X87 FLOATING POINT",
	AlignmentCheck:               "ALIGNMENT CHECK",
	MachineCheck:                 "MACHINE CHECK",
	SIMDFloatingPointException:   "SIMD FLOATING POINT",
	VirtualizationException:      "VIRTUALIZATION",
	ControlProtectionException:   "CONTROL PROTECTION",
	HypervisorInjectionException: "HYPERVISOR INJECTION",
	VMMCommunicationException:    "VMM COMMUNICATION",
	SecurityException:            "SECURITY",
}

// Name returns the diagnostic name of the vector, in upper case.
func (v Vector) Name() string {
	if name, ok := vectorNames[v]; ok {
		return name
	}
	if v < 32 {
		return fmt.Sprintf("RESERVED %d", uint8(v))
	}
	return fmt.Sprintf("INTERRUPT %d", uint8(v))
}

// String implements fmt.Stringer.
func (v Vector) String() string {
	return fmt.Sprintf("%d (%s)", uint8(v), v.Name())
}

// PushesErrorCode returns true if the processor pushes an error code when
// delivering this vector.
func (v Vector) PushesErrorCode() bool {
	switch v {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GeneralProtectionFault, PageFault, AlignmentCheck,
		ControlProtectionException, VMMCommunicationException, SecurityException:
		return true
	}
	return false
}

// IsFault returns true if the saved instruction pointer of this vector
// refers to the faulting instruction rather than the one after it.
func (v Vector) IsFault() bool {
	switch v {
	case Debug, Breakpoint, Overflow, NMI:
		return false
	}
	return v < 32
}
