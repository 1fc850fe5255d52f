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

package serial

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeUART records port writes. The transmitter reports busy for the given
// number of status reads before each byte.
type fakeUART struct {
	writes []string
	busy   int
	polls  int
}

func (f *fakeUART) Out8(port uint16, val uint8) {
	f.writes = append(f.writes, fmt.Sprintf("%#x=%#x", port, val))
	f.polls = 0
}

func (f *fakeUART) In8(port uint16) uint8 {
	if port != COM1+RegLineStatus {
		return 0
	}
	f.polls++
	if f.polls <= f.busy {
		return 0
	}
	return LineStatusTHRE
}

func TestInit(t *testing.T) {
	var f fakeUART
	New(&f, COM1).Init()
	want := []string{
		"0x3f9=0x0",
		"0x3fb=0x80",
		"0x3f8=0x3",
		"0x3f9=0x0",
		"0x3fb=0x3",
		"0x3fa=0xc7",
		"0x3fc=0xb",
	}
	if diff := cmp.Diff(want, f.writes); diff != "" {
		t.Errorf("init sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteWaitsForTransmitter(t *testing.T) {
	f := fakeUART{busy: 3}
	p := New(&f, COM1)
	n, err := p.Write([]byte("ok\n"))
	if n != 3 || err != nil {
		t.Fatalf("Write = %d, %v, want 3, nil", n, err)
	}
	want := []string{"0x3f8=0x6f", "0x3f8=0x6b", "0x3f8=0xa"}
	if diff := cmp.Diff(want, f.writes); diff != "" {
		t.Errorf("data writes mismatch (-want +got):\n%s", diff)
	}
}
