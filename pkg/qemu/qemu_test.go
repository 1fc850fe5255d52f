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

package qemu

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
)

type portLog struct {
	writes [][2]uint32
}

func (p *portLog) Out32(port uint16, val uint32) {
	p.writes = append(p.writes, [2]uint32{uint32(port), val})
}

func TestExit(t *testing.T) {
	var p portLog
	Exit(&p, Success)
	Exit(&p, Failed)
	want := [][2]uint32{{0xf4, 0x10}, {0xf4, 0x11}}
	if diff := cmp.Diff(want, p.writes); diff != "" {
		t.Errorf("port writes mismatch (-want +got):\n%s", diff)
	}
}

func TestHostStatus(t *testing.T) {
	if got := HostStatus(Success); got != 33 {
		t.Errorf("HostStatus(Success) = %d, want 33", got)
	}
	if got := HostStatus(Failed); got != 35 {
		t.Errorf("HostStatus(Failed) = %d, want 35", got)
	}
	for _, code := range []ExitCode{Success, Failed, 0, 0x7f} {
		got, ok := FromHostStatus(HostStatus(code))
		if !ok || got != code {
			t.Errorf("FromHostStatus(HostStatus(%v)) = %v, %v", code, got, ok)
		}
	}
	if _, ok := FromHostStatus(0); ok {
		t.Errorf("FromHostStatus(0) reported an exit code")
	}
}

func TestArgs(t *testing.T) {
	c := Config{Image: "kernel.bin", ExtraArgs: []string{"-m", "64"}}
	args := strings.Join(c.Args("/tmp/serial.log"), " ")
	for _, want := range []string{
		"file=kernel.bin",
		"isa-debug-exit,iobase=0xf4,iosize=0x04",
		"-serial file:/tmp/serial.log",
		"-display none",
		"-m 64",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

// fakeEmulator writes a script that behaves like QEMU running a guest which
// prints body on the serial port and then runs tail.
func fakeEmulator(t *testing.T, body, tail string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-qemu")
	script := `#!/bin/sh
while [ $# -gt 0 ]; do
	if [ "$1" = "-serial" ]; then log="${2#file:}"; fi
	shift
done
printf '` + body + `' > "$log"
` + tail + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing fake emulator: %v", err)
	}
	return path
}

func TestRunSuccess(t *testing.T) {
	bin := fakeEmulator(t, `EXCEPTION: DIVIDE BY ZERO\n`, "exit 33")
	var out bytes.Buffer
	res, err := Run(context.Background(), Config{Binary: bin, Image: "kernel.bin", Timeout: 10 * time.Second}, &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Passed() || res.Status != 33 {
		t.Errorf("Run = %+v, want a passing result with status 33", res)
	}
	if got := out.String(); !strings.Contains(got, "DIVIDE BY ZERO") {
		t.Errorf("serial output = %q, want the diagnostic", got)
	}
}

func TestRunFailure(t *testing.T) {
	bin := fakeEmulator(t, `[failed]\n`, "exit 35")
	var out bytes.Buffer
	res, err := Run(context.Background(), Config{Binary: bin, Image: "kernel.bin"}, &out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Passed() || res.Code != Failed {
		t.Errorf("Run = %+v, want code %v", res, Failed)
	}
}

func TestRunTimeout(t *testing.T) {
	bin := fakeEmulator(t, `booting\n`, "sleep 30")
	var out bytes.Buffer
	res, err := Run(context.Background(), Config{Binary: bin, Image: "kernel.bin", Timeout: 200 * time.Millisecond}, &out)
	if !errors.Is(err, ErrNoExitCode) {
		t.Errorf("Run error = %v, want %v", err, ErrNoExitCode)
	}
	if !res.TimedOut {
		t.Errorf("Run = %+v, want a timed out result", res)
	}
}

func TestRunSignaled(t *testing.T) {
	bin := fakeEmulator(t, `booting\n`, "kill -TERM $$")
	var out bytes.Buffer
	res, err := Run(context.Background(), Config{Binary: bin, Image: "kernel.bin", Timeout: 10 * time.Second}, &out)
	if !errors.Is(err, ErrNoExitCode) {
		t.Errorf("Run error = %v, want %v", err, ErrNoExitCode)
	}
	if res.Signal != unix.SIGTERM || res.Status != 0 || res.Code != 0 {
		t.Errorf("Run = %+v, want killed by SIGTERM without a guest code", res)
	}
	if res.Passed() || res.Killed() {
		t.Errorf("Run = %+v, want neither passed nor killed from the host", res)
	}
}

func TestRunCanceled(t *testing.T) {
	bin := fakeEmulator(t, `booting\n`, "sleep 30")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	var out bytes.Buffer
	res, err := Run(ctx, Config{Binary: bin, Image: "kernel.bin"}, &out)
	if !errors.Is(err, ErrNoExitCode) {
		t.Errorf("Run error = %v, want %v", err, ErrNoExitCode)
	}
	if !res.Canceled || res.TimedOut || res.Code != 0 {
		t.Errorf("Run = %+v, want a canceled result without a guest code", res)
	}
}
