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
	"fmt"

	"jadro.dev/jadro/pkg/qemu"
	"jadro.dev/jadro/pkg/trap"
)

// Test is a test run inside the kernel.
type Test struct {
	Name string
	Fn   func(k *Kernel)
}

// RunTests runs tests in order, reporting each on the serial port, and
// exits with qemu.Success. A failing test panics; use PanicHandler as the
// program's panic handler to report it.
func (k *Kernel) RunTests(tests []Test) trap.Never {
	k.Serialf("Running %d tests\n", len(tests))
	for _, t := range tests {
		k.Serialf("%s...\t", t.Name)
		t.Fn(k)
		k.Serialf("[ok]\n")
	}
	return k.Exit(qemu.Success)
}

// PanicHandler reports a failed test and exits with qemu.Failed.
func PanicHandler(k *Kernel, v any) trap.Never {
	k.Serialf("[failed]\n")
	k.Serialf("%v\n", v)
	return k.Exit(qemu.Failed)
}

// ExpectPanic is the panic handler of programs that must panic. It reports
// the panic as success.
func ExpectPanic(k *Kernel, _ any) trap.Never {
	k.Serialf("[ok]\n")
	return k.Exit(qemu.Success)
}

// AssertionError is the panic value of a failed assertion.
type AssertionError struct {
	Left, Right any
}

// Error implements error.Error.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion `left == right` failed\n  left: %v\n right: %v", e.Left, e.Right)
}

// AssertEqual panics with an *AssertionError if left != right.
func AssertEqual[T comparable](left, right T) {
	if left != right {
		panic(&AssertionError{Left: left, Right: right})
	}
}
