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

package config

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"jadro.dev/jadro/pkg/qemu"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return NewFromFlags(flagSet)
}

func TestDefault(t *testing.T) {
	c, err := parse(t)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	want := &Config{
		LogFormat:      "text",
		DebugLogFormat: "text",
		Program:        "boot",
		QEMUBinary:     qemu.DefaultBinary,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}
	if flags := c.ToFlags(); len(flags) != 0 {
		t.Errorf("ToFlags() = %v, want none for the default config", flags)
	}
}

func TestFromFlags(t *testing.T) {
	c, err := parse(t, "--debug", "--log-format=json", "--program=page-fault", "--timeout=30s", "--qemu-args=-m 64M")
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	if !c.Debug || c.LogFormat != "json" || c.Program != "page-fault" || c.Timeout != 30*time.Second || c.QEMUArgs != "-m 64M" {
		t.Errorf("config = %+v", c)
	}

	want := []string{"--log-format=json", "--debug=true", "--program=page-fault", "--qemu-args=-m 64M", "--timeout=30s"}
	if diff := cmp.Diff(want, c.ToFlags()); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}

	// The flags reproduce the config.
	again, err := parse(t, c.ToFlags()...)
	if err != nil {
		t.Fatalf("NewFromFlags(%v): %v", c.ToFlags(), err)
	}
	if diff := cmp.Diff(c, again); diff != "" {
		t.Errorf("config from ToFlags mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	for _, args := range [][]string{
		{"--log-format=xml"},
		{"--debug-log-format=yaml"},
		{"--timeout=-1s"},
	} {
		if _, err := parse(t, args...); err == nil {
			t.Errorf("NewFromFlags(%v) succeeded, want error", args)
		}
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jadro.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestConfigFile(t *testing.T) {
	path := writeFile(t, `
program = "breakpoint"
debug = true
timeout = "5s"
qemu-binary = "/opt/qemu/bin/qemu-system-x86_64"
`)
	c, err := parse(t, "--config="+path, "--program=page-fault", "--debug=false")
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	want := &Config{
		ConfigFile:     path,
		LogFormat:      "text",
		DebugLogFormat: "text",
		// Explicit flags win over the file.
		Program: "page-fault",
		Debug:   false,
		// Settings only in the file are taken from it.
		Timeout:    5 * time.Second,
		QEMUBinary: "/opt/qemu/bin/qemu-system-x86_64",
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "color = true\n", "unknown keys"},
		{"syntax", "program = \n", "error reading config file"},
		{"invalid value", "log-format = \"xml\"\n", "invalid log-format"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.content)
			_, err := parse(t, "--config="+path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("NewFromFlags error = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	if _, err := parse(t, "--config="+filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("NewFromFlags error = %v, want %v", err, fs.ErrNotExist)
	}
}
