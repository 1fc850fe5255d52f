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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"jadro.dev/jadro/pkg/log"
)

// DefaultBinary is the emulator used when Config.Binary is empty.
const DefaultBinary = "qemu-system-x86_64"

// pollInterval is how often the serial log is polled for new output.
const pollInterval = 10 * time.Millisecond

// ErrNoExitCode is returned when QEMU terminated without the guest writing
// to the debug exit port.
var ErrNoExitCode = errors.New("guest did not signal an exit code")

// Config describes one emulator run.
type Config struct {
	// Binary is the emulator executable.
	Binary string

	// Image is the bootable disk image.
	Image string

	// ExtraArgs are appended to the generated command line.
	ExtraArgs []string

	// Timeout bounds the run. Zero means no timeout.
	Timeout time.Duration

	// SerialLog is where the guest serial port is written. If empty, a file
	// in a temporary directory is used and removed afterwards.
	SerialLog string
}

// Args returns the emulator command line, without the binary.
func (c *Config) Args(serialLog string) []string {
	args := []string{
		"-drive", "format=raw,file=" + c.Image,
		"-device", fmt.Sprintf("isa-debug-exit,iobase=%#x,iosize=0x04", DebugExitPort),
		"-serial", "file:" + serialLog,
		"-display", "none",
		"-no-reboot",
	}
	return append(args, c.ExtraArgs...)
}

// Result is the outcome of a run.
type Result struct {
	// Code is the value the guest wrote to the debug exit port.
	Code ExitCode

	// Status is the raw emulator exit status.
	Status int

	// Signal is the signal that killed the emulator, if any. Status is
	// zero in that case.
	Signal unix.Signal

	// TimedOut is set if the run was killed at the timeout.
	TimedOut bool

	// Canceled is set if the run was killed because the caller's context
	// was canceled.
	Canceled bool
}

// Killed returns true if the run was stopped from the host, either at the
// timeout or on cancellation.
func (r Result) Killed() bool {
	return r.TimedOut || r.Canceled
}

// Passed returns true if the guest signaled Success.
func (r Result) Passed() bool {
	return !r.Killed() && r.Signal == 0 && r.Code == Success
}

// Run boots c.Image and copies the guest serial output to out until the
// emulator exits.
func Run(ctx context.Context, c Config, out io.Writer) (Result, error) {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	serialLog := c.SerialLog
	if serialLog == "" {
		dir, err := os.MkdirTemp("", "jadro-qemu-")
		if err != nil {
			return Result{}, fmt.Errorf("creating serial log dir: %w", err)
		}
		defer os.RemoveAll(dir)
		serialLog = filepath.Join(dir, "serial.log")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.Command(c.Binary, c.Args(serialLog)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	log.Infof("Starting %s %v", c.Binary, cmd.Args[1:])
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting %s: %w", c.Binary, err)
	}

	var (
		res    Result
		exited = make(chan struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(exited)
		err := cmd.Wait()
		if cmd.ProcessState == nil {
			return fmt.Errorf("waiting for %s: %w", c.Binary, err)
		}
		ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
		if !ok {
			return fmt.Errorf("waiting for %s: %w", c.Binary, err)
		}
		status := unix.WaitStatus(ws)
		switch {
		case status.Exited():
			res.Status = status.ExitStatus()
		case status.Signaled():
			res.Signal = status.Signal()
		}
		log.Debugf("%s exited: status %d, signal %v", c.Binary, res.Status, res.Signal)
		return nil
	})
	g.Go(func() error {
		select {
		case <-exited:
		case <-gctx.Done():
			if ctx.Err() != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					res.TimedOut = true
				} else {
					res.Canceled = true
				}
				log.Warningf("Killing %s: %v", c.Binary, ctx.Err())
				// Negative pid: the whole process group.
				_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
			}
		}
		return nil
	})
	g.Go(func() error {
		return follow(serialLog, out, exited)
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	switch {
	case res.Killed():
		return res, fmt.Errorf("killed: %v: %w", ctx.Err(), ErrNoExitCode)
	case res.Signal != 0:
		return res, fmt.Errorf("killed by %v: %w", res.Signal, ErrNoExitCode)
	}
	code, ok := FromHostStatus(res.Status)
	if !ok {
		return res, fmt.Errorf("status %d: %w", res.Status, ErrNoExitCode)
	}
	res.Code = code
	return res, nil
}

// follow copies path to out as it grows, until exited is closed and the
// file is drained.
func follow(path string, out io.Writer, exited <-chan struct{}) error {
	var f *os.File
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = 0
	op := func() error {
		var err error
		f, err = os.Open(path)
		if err == nil {
			return nil
		}
		select {
		case <-exited:
			// The emulator is gone and never opened the log.
			return backoff.Permanent(err)
		default:
		}
		return err
	}
	if err := backoff.Retry(op, b); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening serial log: %w", err)
	}
	defer f.Close()

	for {
		select {
		case <-exited:
			_, err := io.Copy(out, f)
			return err
		default:
		}
		n, err := io.Copy(out, f)
		if err != nil {
			return err
		}
		if n == 0 {
			time.Sleep(pollInterval)
		}
	}
}
