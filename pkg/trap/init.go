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

package trap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"jadro.dev/jadro/pkg/idt"
	"jadro.dev/jadro/pkg/log"
)

var (
	// initMu serializes Init.
	initMu sync.Mutex

	// table is the installed table. It is allocated on first use and
	// never freed; IDTR refers to it for the rest of the process.
	table *idt.Table

	// current is the environment handlers run in.
	current atomic.Pointer[Env]
)

func currentEnv() *Env {
	env := current.Load()
	if env == nil {
		panic("trap: exception delivered before Init")
	}
	return env
}

// build returns a table holding a gate for every registration.
func build(sel idt.Selector) idt.Table {
	var t idt.Table
	t.Reset()
	for _, r := range Registry() {
		s, ok := stubFor(r.Vector)
		if !ok {
			panic(fmt.Sprintf("trap: no stub for %v", r.Vector))
		}
		if err := t.SetHandlerWithOptions(r.Vector, sel, s.Addr, r.GateOptions()); err != nil {
			panic(fmt.Sprintf("trap: %v", err))
		}
	}
	return t
}

// Init builds the interrupt descriptor table and loads it on env.CPU.
//
// The table is built in the same place every time, so calling Init again
// rewrites identical gates and reloads the same IDTR value.
func Init(env *Env) {
	initMu.Lock()
	defer initMu.Unlock()

	if table == nil {
		table = idt.NewTable()
	}
	*table = build(env.CPU.CodeSelector())

	// Publish env before the table is live.
	current.Store(env)
	table.Install(env.CPU)
	log.Debugf("IDT installed: %v, vectors %v", table.Pointer(), table.Present())
	env.Out.Printf("IDT LOADED\n")
}

// Installed returns a copy of the installed table, or false if Init has not
// been called.
func Installed() (idt.Table, bool) {
	initMu.Lock()
	defer initMu.Unlock()
	if table == nil {
		return idt.Table{}, false
	}
	return *table, true
}
