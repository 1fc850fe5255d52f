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
	"text/tabwriter"

	"github.com/google/subcommands"
	"jadro.dev/jadro/jadro/cmd/util"
	"jadro.dev/jadro/pkg/kernel"
)

// List implements subcommands.Command for the "list" command.
type List struct {
	quiet bool

	// stdout is where output goes; os.Stdout if nil.
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*List) Name() string {
	return "list"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*List) Synopsis() string {
	return "list kernel programs"
}

// Usage implements subcommands.Command.Usage.
func (*List) Usage() string {
	return `list [flags] - list the programs 'run' accepts.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *List) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&l.quiet, "quiet", false, "only list program names")
}

// Execute implements subcommands.Command.Execute.
func (l *List) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	out := l.stdout
	if out == nil {
		out = os.Stdout
	}

	if l.quiet {
		for _, p := range kernel.Programs() {
			fmt.Fprintln(out, p.Name)
		}
		return subcommands.ExitSuccess
	}

	w := tabwriter.NewWriter(out, 12, 1, 3, ' ', 0)
	fmt.Fprint(w, "NAME\tDESCRIPTION\n")
	for _, p := range kernel.Programs() {
		fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Description)
	}
	if err := w.Flush(); err != nil {
		return util.Errorf("writing program list: %v", err)
	}
	return subcommands.ExitSuccess
}
