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

package ring0_test

import (
	"testing"
	"unsafe"

	"jadro.dev/jadro/pkg/kernel"
	"jadro.dev/jadro/pkg/ring0"
	"jadro.dev/jadro/pkg/vga"
)

// Native must be usable as the processor of a real kernel.
var _ kernel.CPU = ring0.Native{}

// The privileged instructions cannot run in a test process. Only the
// operations that do not execute them are checked.
func TestTextBuffer(t *testing.T) {
	buf := ring0.Native{}.TextBuffer()
	if got, want := len(buf), vga.Width*vga.Height; got != want {
		t.Errorf("len(TextBuffer()) = %d, want %d", got, want)
	}
	if got, want := uintptr(unsafe.Pointer(unsafe.SliceData(buf))), uintptr(vga.BufferAddress); got != want {
		t.Errorf("TextBuffer() at %#x, want %#x", got, want)
	}
}
