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

// Package cmd holds implementations of the jadro commands.
package cmd

import (
	"golang.org/x/sys/unix"
)

// setStatus stores the process exit status the command wants in ws.
func setStatus(ws any, status int) {
	if p, ok := ws.(*unix.WaitStatus); ok {
		*p = unix.WaitStatus(status&0xff) << 8
	}
}

// waitStatus extracts the wait status from the Execute arguments, which are
// the configuration followed by the status.
func waitStatus(args []any) any {
	if len(args) < 2 {
		return nil
	}
	return args[1]
}
