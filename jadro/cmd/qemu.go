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

package cmd

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"jadro.dev/jadro/jadro/cmd/util"
	"jadro.dev/jadro/jadro/config"
	"jadro.dev/jadro/pkg/qemu"
)

// QEMU implements subcommands.Command for the "qemu" command.
type QEMU struct {
	timeout   time.Duration
	serialLog string

	// stdout is where output goes; os.Stdout if nil.
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*QEMU) Name() string {
	return "qemu"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*QEMU) Synopsis() string {
	return "boot a kernel image under QEMU and report its exit code"
}

// Usage implements subcommands.Command.Usage.
func (*QEMU) Usage() string {
	return `qemu [flags] <image> - boot image under QEMU with the debug exit device.

The guest serial output is printed. jadro exits 0 if the guest signaled
success and 1 otherwise.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (q *QEMU) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&q.timeout, "timeout", 0, "kill the emulator after this long; overrides --timeout of jadro.")
	f.StringVar(&q.serialLog, "serial-log", "", "keep the guest serial output in this file.")
}

// Execute implements subcommands.Command.Execute.
func (q *QEMU) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	out := q.stdout
	if out == nil {
		out = os.Stdout
	}

	c := qemu.Config{
		Binary:    conf.QEMUBinary,
		Image:     f.Arg(0),
		ExtraArgs: strings.Fields(conf.QEMUArgs),
		Timeout:   conf.Timeout,
		SerialLog: q.serialLog,
	}
	if q.timeout > 0 {
		c.Timeout = q.timeout
	}

	res, err := qemu.Run(ctx, c, out)
	switch {
	case res.TimedOut:
		util.Infof("Timed out after %v", c.Timeout)
	case res.Canceled:
		util.Infof("Canceled: %v", ctx.Err())
	case res.Signal != 0:
		util.Infof("Emulator killed by %v", res.Signal)
	case errors.Is(err, qemu.ErrNoExitCode):
		util.Infof("Guest did not signal an exit code (status %d)", res.Status)
	case err != nil:
		return util.Errorf("running %s: %v", c.Image, err)
	default:
		util.Infof("Guest exited: %v", res.Code)
	}
	status := 1
	if res.Passed() {
		status = 0
	}
	setStatus(waitStatus(args), status)
	return subcommands.ExitSuccess
}
