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

// Package console provides the formatted-print capability used for kernel
// diagnostics.
package console

import (
	"fmt"
	"io"
	"sync"
)

// Printer prints formatted diagnostic text.
type Printer interface {
	Printf(format string, args ...any)
}

// Console fans formatted output out to a set of sinks, typically the serial
// port and the text-mode screen.
type Console struct {
	mu    sync.Mutex
	sinks []io.Writer
}

// New returns a console writing to sinks.
func New(sinks ...io.Writer) *Console {
	return &Console{sinks: sinks}
}

// Add appends a sink.
func (c *Console) Add(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, w)
}

// Printf implements Printer.Printf.
//
// The text is rendered once and written to every sink. Sink errors are
// dropped: there is nowhere left to report them.
func (c *Console) Printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.sinks {
		io.WriteString(w, s)
	}
}

// Write implements io.Writer.
func (c *Console) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.sinks {
		w.Write(b)
	}
	return len(b), nil
}
