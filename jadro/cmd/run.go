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
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"jadro.dev/jadro/jadro/cmd/util"
	"jadro.dev/jadro/jadro/config"
	"jadro.dev/jadro/pkg/kernel"
	"jadro.dev/jadro/pkg/log"
	"jadro.dev/jadro/pkg/sim"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	vga bool

	// stdout is where output goes; os.Stdout if nil.
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run a kernel program on the software machine"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] [program] - boot the kernel on the software machine and run program.

The serial output of the kernel is printed, and jadro exits with the status
QEMU would have: 33 for success, 35 for failure. See 'jadro list' for the
available programs.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.vga, "vga", false, "print the screen after the run.")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	name := conf.Program
	if f.NArg() == 1 {
		name = f.Arg(0)
	}
	p, ok := kernel.Lookup(name)
	if !ok {
		return util.Errorf("unknown program %q, see 'jadro list'", name)
	}
	out := r.stdout
	if out == nil {
		out = os.Stdout
	}

	m := sim.New()
	log.Infof("Running program %q", p.Name)
	res, err := m.Run(func() { kernel.Main(m, p) })
	io.WriteString(out, res.Output)
	if r.vga || conf.VGA {
		fmt.Fprintf(out, "--- screen ---\n%s\n", res.Screen)
	}
	switch {
	case err != nil:
		fmt.Fprintf(out, "machine reset: %v\n", err)
	case res.Hung:
		fmt.Fprintf(out, "machine halted without exiting\n")
	case res.Returned:
		fmt.Fprintf(out, "program returned\n")
	}
	log.Infof("Program %q finished: exit code %v, host status %d", p.Name, res.ExitCode, res.HostStatus())
	setStatus(waitStatus(args), res.HostStatus())
	return subcommands.ExitSuccess
}
