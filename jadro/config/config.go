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

// Package config provides basic infrastructure to set configuration settings
// for jadro. Each setting has a command line flag; settings can also be read
// from a TOML file given with --config, in which case flags set on the
// command line take precedence over the file.
package config

import (
	"fmt"
	"time"

	"jadro.dev/jadro/pkg/log"
)

// Config holds configuration that is not part of a single command.
type Config struct {
	// ConfigFile is a TOML file holding defaults for the other settings.
	ConfigFile string `flag:"config" toml:"-"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format" toml:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug"`

	// DebugLog is the path to log debug information to, if not empty.
	DebugLog string `flag:"debug-log" toml:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format" toml:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr"`

	// Program is the program run when none is named.
	Program string `flag:"program" toml:"program"`

	// QEMUBinary is the emulator used to boot real images.
	QEMUBinary string `flag:"qemu-binary" toml:"qemu-binary"`

	// QEMUArgs are extra emulator arguments, separated by spaces.
	QEMUArgs string `flag:"qemu-args" toml:"qemu-args"`

	// Timeout bounds emulator runs. Zero disables it.
	Timeout time.Duration `flag:"timeout" toml:"timeout"`

	// VGA prints the screen after a run.
	VGA bool `flag:"vga" toml:"vga"`
}

func (c *Config) validate() error {
	for _, f := range []struct {
		name, value string
	}{
		{"log-format", c.LogFormat},
		{"debug-log-format", c.DebugLogFormat},
	} {
		switch f.value {
		case "text", "json":
		default:
			return fmt.Errorf("invalid %s %q, must be 'text' or 'json'", f.name, f.value)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", c.Timeout)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	for _, f := range c.ToFlags() {
		log.Infof("\t%s", f)
	}
}
