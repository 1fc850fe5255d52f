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
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
	"jadro.dev/jadro/jadro/cmd/util"
	"jadro.dev/jadro/pkg/console"
	"jadro.dev/jadro/pkg/idt"
	"jadro.dev/jadro/pkg/qemu"
	"jadro.dev/jadro/pkg/sim"
	"jadro.dev/jadro/pkg/trap"
)

// IDT implements subcommands.Command for the "idt" command.
type IDT struct {
	format  string
	present bool

	// stdout is where output goes; os.Stdout if nil.
	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*IDT) Name() string {
	return "idt"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*IDT) Synopsis() string {
	return "print the interrupt descriptor table the kernel installs"
}

// Usage implements subcommands.Command.Usage.
func (*IDT) Usage() string {
	return `idt [flags] - install the IDT on the software machine and print every gate.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (i *IDT) SetFlags(f *flag.FlagSet) {
	f.StringVar(&i.format, "format", "text", "output format: text or json.")
	f.BoolVar(&i.present, "present", false, "only print present gates.")
}

// gateInfo describes one IDT slot.
type gateInfo struct {
	Vector   idt.Vector `json:"vector"`
	Name     string     `json:"name"`
	Present  bool       `json:"present"`
	Handler  string     `json:"handler,omitempty"`
	Stub     string     `json:"stub,omitempty"`
	Selector string     `json:"selector,omitempty"`
	Options  string     `json:"options"`
	Raw      string     `json:"raw"`
}

// tableInfo describes an installed IDT.
type tableInfo struct {
	Base  string     `json:"base"`
	Limit uint16     `json:"limit"`
	Gates []gateInfo `json:"gates"`
}

// installedTable boots a software machine far enough to install the IDT.
func installedTable() (idt.Pointer, idt.Table, error) {
	m := sim.New()
	if _, err := m.Run(func() {
		trap.Init(&trap.Env{CPU: m, Out: console.New(io.Discard)})
		qemu.Exit(m, qemu.Success)
	}); err != nil {
		return idt.Pointer{}, idt.Table{}, err
	}
	p, ok := m.IDTR()
	if !ok {
		return idt.Pointer{}, idt.Table{}, fmt.Errorf("IDTR was not loaded")
	}
	t, ok := trap.Installed()
	if !ok {
		return idt.Pointer{}, idt.Table{}, fmt.Errorf("no table installed")
	}
	return p, t, nil
}

func describe(p idt.Pointer, t *idt.Table, presentOnly bool) tableInfo {
	info := tableInfo{Base: fmt.Sprintf("%#x", p.Base), Limit: p.Limit}
	for v, g := range t {
		if presentOnly && !g.Present() {
			continue
		}
		raw := g.Encode()
		gi := gateInfo{
			Vector:  idt.Vector(v),
			Name:    idt.Vector(v).Name(),
			Present: g.Present(),
			Options: g.Options().String(),
			Raw:     hex.EncodeToString(raw[:]),
		}
		if g.Present() {
			gi.Handler = fmt.Sprintf("%#x", g.Handler())
			gi.Selector = g.Selector().String()
			if s, ok := trap.LookupStub(g.Handler()); ok {
				gi.Stub = s.Variant.String()
			}
		}
		info.Gates = append(info.Gates, gi)
	}
	return info
}

// Execute implements subcommands.Command.Execute.
func (i *IDT) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	out := i.stdout
	if out == nil {
		out = os.Stdout
	}

	p, t, err := installedTable()
	if err != nil {
		return util.Errorf("installing IDT: %v", err)
	}
	info := describe(p, &t, i.present)

	switch i.format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			return util.Errorf("encoding IDT: %v", err)
		}
	case "text":
		fmt.Fprintf(out, "IDTR base=%s limit=%#x\n", info.Base, info.Limit)
		w := tabwriter.NewWriter(out, 0, 1, 2, ' ', 0)
		fmt.Fprint(w, "VEC\tNAME\tHANDLER\tSELECTOR\tOPTIONS\tSTUB\tRAW\n")
		for _, g := range info.Gates {
			handler, sel, stub := g.Handler, g.Selector, g.Stub
			if !g.Present {
				handler, sel, stub = "-", "-", "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", g.Vector, g.Name, handler, sel, g.Options, stub, g.Raw)
		}
		if err := w.Flush(); err != nil {
			return util.Errorf("writing IDT: %v", err)
		}
	default:
		return util.Errorf("invalid format %q, must be 'text' or 'json'", i.format)
	}
	return subcommands.ExitSuccess
}
