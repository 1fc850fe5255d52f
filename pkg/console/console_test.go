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

package console

import (
	"bytes"
	"testing"
)

func TestPrintfFansOut(t *testing.T) {
	var a, b bytes.Buffer
	c := New(&a)
	c.Add(&b)
	c.Printf("EXCEPTION: %s at %#x\n", "BREAKPOINT", 0x1000)
	for _, buf := range []*bytes.Buffer{&a, &b} {
		if got, want := buf.String(), "EXCEPTION: BREAKPOINT at 0x1000\n"; got != want {
			t.Errorf("sink got %q, want %q", got, want)
		}
	}
}

func TestNoSinks(t *testing.T) {
	c := New()
	c.Printf("dropped\n")
	if n, err := c.Write([]byte("x")); n != 1 || err != nil {
		t.Errorf("Write = %d, %v, want 1, nil", n, err)
	}
}
