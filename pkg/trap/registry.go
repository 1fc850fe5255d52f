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
	"sync"

	"jadro.dev/jadro/pkg/idt"
)

// Disposition says what happens after a handler runs.
type Disposition int

const (
	// Resume returns to the interrupted code.
	Resume Disposition = iota

	// Terminate ends the machine run from inside the handler.
	Terminate
)

// String implements fmt.Stringer.
func (d Disposition) String() string {
	switch d {
	case Resume:
		return "resume"
	case Terminate:
		return "terminate"
	default:
		return fmt.Sprintf("Disposition(%d)", int(d))
	}
}

// Registration binds a handler to a vector. Exactly one of Resume, Fatal
// and Fault is set; Fault is used by vectors whose exception pushes an
// error code.
type Registration struct {
	Vector idt.Vector
	Resume Handler
	Fatal  FatalHandler
	Fault  FaultHandler

	// Options overrides the default gate options when non-nil.
	Options *idt.GateOptions
}

// Disposition returns what happens once the handler has run.
func (r *Registration) Disposition() Disposition {
	if r.Resume != nil {
		return Resume
	}
	return Terminate
}

// GateOptions returns the options the vector's gate is installed with.
func (r *Registration) GateOptions() idt.GateOptions {
	if r.Options != nil {
		return *r.Options
	}
	return idt.DefaultOptions()
}

func (r *Registration) validate() error {
	if uint(r.Vector) >= idt.Size {
		return fmt.Errorf("vector %d: %w", r.Vector, idt.ErrVectorOutOfRange)
	}
	n := 0
	if r.Resume != nil {
		n++
	}
	if r.Fatal != nil {
		n++
	}
	if r.Fault != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("%v: %d handlers set, want exactly one", r.Vector, n)
	}
	if pushes := r.Vector.PushesErrorCode(); pushes != (r.Fault != nil) {
		return fmt.Errorf("%v: error code pushed = %t, but fault handler set = %t", r.Vector, pushes, r.Fault != nil)
	}
	if r.Options != nil && !r.Options.Valid() {
		return fmt.Errorf("%v: invalid gate options %v", r.Vector, *r.Options)
	}
	if _, ok := stubFor(r.Vector); !ok {
		return fmt.Errorf("%v: no entry stub", r.Vector)
	}
	return nil
}

func validateRegistry(regs []Registration) error {
	seen := make(map[idt.Vector]bool)
	for i := range regs {
		r := &regs[i]
		if err := r.validate(); err != nil {
			return err
		}
		if seen[r.Vector] {
			return fmt.Errorf("%v: registered twice", r.Vector)
		}
		seen[r.Vector] = true
	}
	return nil
}

// breakpointOptions lets int3 be executed from any privilege level.
var breakpointOptions = idt.DefaultOptions().SetPrivilegeLevel(idt.Ring3)

var (
	registryOnce sync.Once
	registry     []Registration
)

// Registry returns the handled vectors. The returned slice must not be
// modified.
func Registry() []Registration {
	registryOnce.Do(func() {
		regs := []Registration{
			{Vector: idt.DivideByZero, Fatal: divideByZeroHandler},
			{Vector: idt.Breakpoint, Resume: breakpointHandler, Options: &breakpointOptions},
			{Vector: idt.InvalidOpcode, Fatal: invalidOpcodeHandler},
			{Vector: idt.PageFault, Fault: pageFaultHandler},
		}
		if err := validateRegistry(regs); err != nil {
			panic(fmt.Sprintf("invalid trap registry: %v", err))
		}
		registry = regs
	})
	return registry
}

// lookup returns the registration for v.
func lookup(v idt.Vector) (*Registration, bool) {
	regs := Registry()
	for i := range regs {
		if regs[i].Vector == v {
			return &regs[i], true
		}
	}
	return nil, false
}
