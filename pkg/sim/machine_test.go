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

package sim

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"jadro.dev/jadro/pkg/console"
	"jadro.dev/jadro/pkg/idt"
	"jadro.dev/jadro/pkg/qemu"
	"jadro.dev/jadro/pkg/serial"
	"jadro.dev/jadro/pkg/trap"
)

func newEnv(m *Machine) *trap.Env {
	return &trap.Env{CPU: m, Out: console.New(serial.New(m, serial.COM1))}
}

func stubAddr(t *testing.T, v idt.Vector) uintptr {
	t.Helper()
	for _, s := range trap.Stubs() {
		if s.Vector == v {
			return s.Addr
		}
	}
	t.Fatalf("no stub for %v", v)
	return 0
}

func TestBreakpointResumes(t *testing.T) {
	m := New()
	res, err := m.Run(func() {
		env := newEnv(m)
		trap.Init(env)
		m.Breakpoint()
		env.Out.Printf("after breakpoint\n")
		env.Exit(qemu.Success)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Passed() {
		t.Errorf("result %+v, want success", res)
	}
	for _, want := range []string{"IDT LOADED\n", "EXCEPTION: BREAKPOINT at 0x200001\n", "after breakpoint\n"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("output %q does not contain %q", res.Output, want)
		}
	}
	want := []Delivery{{
		Vector: idt.Breakpoint,
		Frame:  trap.ExceptionFrame{RIP: TextBase + int3Len, CS: 0x08, RFlags: initRFlags, RSP: StackTop},
	}}
	if diff := cmp.Diff(want, res.Deliveries); diff != "" {
		t.Errorf("deliveries mismatch (-want +got):\n%s", diff)
	}
}

func TestFaultsReportFaultingInstruction(t *testing.T) {
	for _, tc := range []struct {
		name    string
		trigger func(m *Machine)
		vector  idt.Vector
		output  string
	}{
		{
			name:    "divide by zero",
			trigger: (*Machine).DivideByZero,
			vector:  idt.DivideByZero,
			output:  "EXCEPTION: DIVIDE BY ZERO at 0x200000\n",
		},
		{
			name:    "invalid opcode",
			trigger: (*Machine).InvalidOpcode,
			vector:  idt.InvalidOpcode,
			output:  "EXCEPTION: INVALID OPCODE at 0x200000\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := New()
			res, err := m.Run(func() {
				trap.Init(newEnv(m))
				tc.trigger(m)
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !res.Passed() {
				t.Errorf("result %+v, want success", res)
			}
			if !strings.Contains(res.Output, tc.output) {
				t.Errorf("output %q does not contain %q", res.Output, tc.output)
			}
			if len(res.Deliveries) != 1 || res.Deliveries[0].Vector != tc.vector || res.Deliveries[0].Frame.RIP != TextBase {
				t.Errorf("deliveries = %+v", res.Deliveries)
			}
		})
	}
}

func TestPageFault(t *testing.T) {
	for _, tc := range []struct {
		name string
		addr uintptr
		code trap.PageFaultErrorCode
	}{
		{"unmapped", 0xcafebabe, trap.CausedByWrite},
		{"read only", 0x100000, trap.ProtectionViolation | trap.CausedByWrite},
		{"crosses region end", StackTop - 4, trap.CausedByWrite},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := New()
			res, err := m.Run(func() {
				trap.Init(newEnv(m))
				m.Store64(tc.addr, 69)
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !res.Passed() {
				t.Errorf("result %+v, want success", res)
			}
			want := fmt.Sprintf("EXCEPTION: PAGE FAULT while accessing %#x\nerror code: %v\n", tc.addr, tc.code)
			if !strings.Contains(res.Output, want) {
				t.Errorf("output %q does not contain %q", res.Output, want)
			}
			if len(res.Deliveries) != 1 || res.Deliveries[0].ErrorCode != uint64(tc.code) {
				t.Errorf("deliveries = %+v", res.Deliveries)
			}
		})
	}
}

func TestStoreToMappedMemory(t *testing.T) {
	m := New()
	res, err := m.Run(func() {
		trap.Init(newEnv(m))
		m.Store64(TextBase+0x1000, 69)
		newEnv(m).Exit(qemu.Success)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Deliveries) != 0 {
		t.Errorf("unexpected deliveries %+v", res.Deliveries)
	}
	if v, _, ok := m.Memory().Load64(TextBase + 0x1000); !ok || v != 69 {
		t.Errorf("Load64 = %d, %t, want 69, true", v, ok)
	}
}

func TestResets(t *testing.T) {
	// table returns a table holding only g at v. The machine reads it
	// through a raw address, so it is kept alive until the test ends.
	table := func(t *testing.T, v idt.Vector, g idt.Gate) *idt.Table {
		tbl := idt.NewTable()
		tbl[v] = g
		t.Cleanup(func() { runtime.KeepAlive(tbl) })
		return tbl
	}
	sel := KernelCodeSelector

	for _, tc := range []struct {
		name   string
		load   func(t *testing.T, m *Machine)
		run    func(m *Machine)
		reason string
	}{
		{
			name:   "no table",
			load:   func(*testing.T, *Machine) {},
			run:    (*Machine).DivideByZero,
			reason: "IDTR not loaded",
		},
		{
			name: "missing gate",
			load: func(t *testing.T, m *Machine) {
				tbl := table(t, idt.Breakpoint, idt.NewGate(sel, stubAddr(t, idt.Breakpoint)))
				tbl.Install(m)
			},
			run:    (*Machine).InvalidOpcode,
			reason: "delivering 6 (INVALID OPCODE): gate not present",
		},
		{
			name: "beyond limit",
			load: func(t *testing.T, m *Machine) {
				tbl := table(t, idt.Breakpoint, idt.NewGate(sel, stubAddr(t, idt.Breakpoint)))
				p := tbl.Pointer()
				p.Limit = 3*idt.GateSize - 1
				m.LoadIDT(p)
			},
			run:    (*Machine).Breakpoint,
			reason: "beyond limit",
		},
		{
			name: "bad selector",
			load: func(t *testing.T, m *Machine) {
				tbl := table(t, idt.Breakpoint, idt.NewGate(idt.NewSelector(2, idt.Ring0), stubAddr(t, idt.Breakpoint)))
				tbl.Install(m)
			},
			run:    (*Machine).Breakpoint,
			reason: "is not a code segment",
		},
		{
			name: "not a stub",
			load: func(t *testing.T, m *Machine) {
				tbl := table(t, idt.Breakpoint, idt.NewGate(sel, 0x1234))
				tbl.Install(m)
			},
			run:    (*Machine).Breakpoint,
			reason: "is not an entry stub",
		},
		{
			name: "wrong stub",
			load: func(t *testing.T, m *Machine) {
				tbl := table(t, idt.Breakpoint, idt.NewGate(sel, stubAddr(t, idt.InvalidOpcode)))
				tbl.Install(m)
			},
			run:    (*Machine).Breakpoint,
			reason: "is the stub for 6 (INVALID OPCODE)",
		},
		{
			name: "wrong frame shape",
			load: func(t *testing.T, m *Machine) {
				tbl := table(t, idt.PageFault, idt.NewGate(sel, stubAddr(t, idt.Breakpoint)))
				tbl.Install(m)
			},
			run:    func(m *Machine) { m.Store64(0, 1) },
			reason: "is the stub for 3 (BREAKPOINT)",
		},
		{
			name: "invalid options",
			load: func(t *testing.T, m *Machine) {
				g := idt.NewGate(sel, stubAddr(t, idt.Breakpoint)).WithOptions(idt.DefaultOptions() &^ 0x0100 &^ 0x0200)
				tbl := table(t, idt.Breakpoint, g)
				tbl.Install(m)
			},
			run:    (*Machine).Breakpoint,
			reason: "not a 64-bit interrupt gate",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := New()
			tc.load(t, m)
			res, err := m.Run(func() { tc.run(m) })
			if !errors.Is(err, ErrTripleFault) {
				t.Fatalf("Run error = %v, want %v", err, ErrTripleFault)
			}
			if !res.Reset || res.Exited {
				t.Errorf("result %+v, want reset", res)
			}
			if len(res.Deliveries) != 0 {
				t.Errorf("deliveries = %+v, want none", res.Deliveries)
			}
			if !strings.Contains(res.Reason, tc.reason) {
				t.Errorf("reason %q does not contain %q", res.Reason, tc.reason)
			}
			if !strings.HasSuffix(res.Reason, "triple fault: double fault not deliverable") {
				t.Errorf("reason %q does not end in a triple fault", res.Reason)
			}
			if got, want := res.HostStatus(), 0; got != want {
				t.Errorf("HostStatus() = %d, want %d", got, want)
			}
		})
	}
}

func TestNestedFaultBecomesDoubleFault(t *testing.T) {
	m := New()
	res, err := m.Run(func() {
		trap.Init(newEnv(m))
		m.handling = append(m.handling, idt.PageFault)
		m.DivideByZero()
	})
	if !errors.Is(err, ErrTripleFault) {
		t.Fatalf("Run error = %v, want %v", err, ErrTripleFault)
	}
	if !strings.HasPrefix(res.Reason, "0 (DIVIDE BY ZERO) while handling 14 (PAGE FAULT)") {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestBreakpointInsideHandlerIsDelivered(t *testing.T) {
	m := New()
	res, err := m.Run(func() {
		env := newEnv(m)
		trap.Init(env)
		m.handling = append(m.handling, idt.PageFault)
		m.Breakpoint()
		env.Exit(qemu.Success)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Deliveries) != 1 || res.Deliveries[0].Vector != idt.Breakpoint {
		t.Errorf("deliveries = %+v", res.Deliveries)
	}
}

func TestHaltWithoutExit(t *testing.T) {
	m := New()
	res, err := m.Run(func() {
		for {
			m.Halt()
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Hung || res.Exited || res.Returned {
		t.Errorf("result %+v, want hung", res)
	}
	if got, want := res.HostStatus(), 1; got != want {
		t.Errorf("HostStatus() = %d, want %d", got, want)
	}
}

func TestRunOnce(t *testing.T) {
	m := New()
	res, err := m.Run(func() {})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Returned {
		t.Errorf("result %+v, want returned", res)
	}
	if _, err := m.Run(func() {}); !errors.Is(err, ErrUsed) {
		t.Errorf("second Run error = %v, want %v", err, ErrUsed)
	}
}

func TestRunPropagatesPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("recovered %v, want boom", r)
		}
	}()
	New().Run(func() { panic("boom") })
	t.Errorf("Run returned")
}

func TestSerial(t *testing.T) {
	m := New()
	res, err := m.Run(func() {
		p := serial.New(m, serial.COM1)
		p.Init()
		p.Write([]byte("hello\n"))
		qemu.Exit(m, qemu.Failed)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := res.Output, "hello\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if res.Passed() || res.ExitCode != qemu.Failed {
		t.Errorf("result %+v, want failed", res)
	}
	if got, want := res.HostStatus(), 35; got != want {
		t.Errorf("HostStatus() = %d, want %d", got, want)
	}
}

func TestIDTR(t *testing.T) {
	m := New()
	if _, ok := m.IDTR(); ok {
		t.Errorf("IDTR loaded on a new machine")
	}
	m.Run(func() {
		trap.Init(newEnv(m))
		newEnv(m).Exit(qemu.Success)
	})
	p, ok := m.IDTR()
	if !ok {
		t.Fatalf("IDTR not loaded")
	}
	tbl, _ := trap.Installed()
	if want := tbl.Pointer().Limit; p.Limit != want {
		t.Errorf("limit = %#x, want %#x", p.Limit, want)
	}
}
