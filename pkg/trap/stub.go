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
	"fmt"

	"jadro.dev/jadro/pkg/idt"
)

// Variant is the shape of an entry stub.
type Variant int

const (
	// NoErrorCode stubs save the general purpose registers, call
	// trapEntry and return with IRETQ.
	NoErrorCode Variant = iota

	// WithErrorCode stubs pop the error code, call trapEntryWithCode and
	// never return.
	WithErrorCode
)

// String implements fmt.Stringer.
func (v Variant) String() string {
	switch v {
	case NoErrorCode:
		return "no-error-code"
	case WithErrorCode:
		return "error-code"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// VariantFor returns the stub shape required by v.
func VariantFor(v idt.Vector) Variant {
	if v.PushesErrorCode() {
		return WithErrorCode
	}
	return NoErrorCode
}

// Stub is an entry stub installed as a gate handler.
type Stub struct {
	Vector  idt.Vector
	Variant Variant
	Addr    uintptr
}

var stubs = archStubs()

// Stubs returns the entry stubs. The returned slice must not be modified.
func Stubs() []Stub {
	return stubs
}

func stubFor(v idt.Vector) (Stub, bool) {
	for _, s := range stubs {
		if s.Vector == v {
			return s, true
		}
	}
	return Stub{}, false
}

// LookupStub returns the stub starting at addr.
func LookupStub(addr uintptr) (Stub, bool) {
	for _, s := range stubs {
		if s.Addr == addr {
			return s, true
		}
	}
	return Stub{}, false
}

// Enter runs the portable half of s, as the assembly stub does once it has
// located the frame. code is ignored for NoErrorCode stubs.
//
// For WithErrorCode stubs Enter does not return.
func (s Stub) Enter(frame *ExceptionFrame, code uint64) {
	switch s.Variant {
	case NoErrorCode:
		trapEntry(frame, uint64(s.Vector))
	case WithErrorCode:
		trapEntryWithCode(frame, uint64(s.Vector), code)
	default:
		panic(fmt.Sprintf("unknown stub variant %v", s.Variant))
	}
}

// trapEntry is called by NoErrorCode stubs with the processor-pushed frame.
// When it returns, the stub restores the registers and resumes the
// interrupted code.
//
//go:nosplit
func trapEntry(frame *ExceptionFrame, vector uint64) {
	env := currentEnv()
	v := idt.Vector(vector)
	r, ok := lookup(v)
	if !ok || r.Fault != nil {
		unhandled(env, v, frame)
		return
	}
	if r.Resume != nil {
		r.Resume(env, frame)
		return
	}
	r.Fatal(env, frame)
}

// trapEntryWithCode is called by WithErrorCode stubs. It does not return.
//
//go:nosplit
func trapEntryWithCode(frame *ExceptionFrame, vector uint64, code uint64) {
	env := currentEnv()
	v := idt.Vector(vector)
	r, ok := lookup(v)
	if !ok || r.Fault == nil {
		unhandled(env, v, frame)
	} else {
		r.Fault(env, frame, code)
	}
	for {
		env.CPU.Halt()
	}
}
