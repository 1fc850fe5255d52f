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

package vga

import (
	"strings"
	"testing"
)

func TestWriteAndScroll(t *testing.T) {
	buf := make([]uint16, Width*Height)
	w := NewWriter(buf)
	w.Clear()
	w.Write([]byte("IDT LOADED\nWake UP, NEO!"))
	if got, want := w.Text(), "IDT LOADED\nWake UP, NEO!"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	if got, want := buf[(Height-1)*Width], uint16(Attribute(Yellow, Black))<<8|'W'; got != want {
		t.Errorf("cell = %#x, want %#x", got, want)
	}
}

func TestWrapAndUnprintable(t *testing.T) {
	w := NewWriter(make([]uint16, Width*Height))
	w.Clear()
	w.Write([]byte(strings.Repeat("a", Width) + "b\x01"))
	lines := strings.Split(w.Text(), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), lines)
	}
	if lines[0] != strings.Repeat("a", Width) {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[1] != "b\xfe" {
		t.Errorf("second line = %q, want %q", lines[1], "b\xfe")
	}
}

func TestScrollDropsTopLine(t *testing.T) {
	w := NewWriter(make([]uint16, Width*Height))
	w.Clear()
	for i := 0; i < Height+2; i++ {
		w.Write([]byte{'0' + byte(i%10), '\n'})
	}
	lines := strings.Split(w.Text(), "\n")
	if len(lines) != Height-1 {
		t.Fatalf("got %d lines, want %d", len(lines), Height-1)
	}
	if lines[0] != "3" {
		t.Errorf("top line = %q, want %q", lines[0], "3")
	}
}
