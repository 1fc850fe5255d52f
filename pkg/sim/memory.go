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

package sim

import (
	"errors"
	"fmt"

	"github.com/google/btree"
	"jadro.dev/jadro/pkg/trap"
)

// ErrOverlap is returned when a new region overlaps a mapped one.
var ErrOverlap = errors.New("region overlaps an existing mapping")

// Region is a mapped range of the address space.
type Region struct {
	Name     string
	Start    uint64
	End      uint64 // Exclusive.
	Writable bool
}

// Contains returns true if [addr, addr+size) lies within r.
func (r Region) Contains(addr, size uint64) bool {
	return addr >= r.Start && addr+size >= addr && addr+size <= r.End
}

// String implements fmt.Stringer.
func (r Region) String() string {
	perm := "r-"
	if r.Writable {
		perm = "rw"
	}
	return fmt.Sprintf("%s [%#x, %#x) %s", r.Name, r.Start, r.End, perm)
}

// Memory is a sparse address space. Only mapped regions can be accessed;
// data is kept in aligned 8 byte little-endian words, so unaligned accesses
// touch two of them.
type Memory struct {
	regions *btree.BTreeG[Region]
	words   map[uint64]uint64
}

// NewMemory returns an empty address space.
func NewMemory() *Memory {
	return &Memory{
		regions: btree.NewG(2, func(a, b Region) bool { return a.Start < b.Start }),
		words:   make(map[uint64]uint64),
	}
}

// Map maps length bytes at start.
func (m *Memory) Map(name string, start, length uint64, writable bool) error {
	if length == 0 || start+length < start {
		return fmt.Errorf("invalid region %s at %#x, length %#x", name, start, length)
	}
	r := Region{Name: name, Start: start, End: start + length, Writable: writable}
	var conflict *Region
	m.regions.DescendLessOrEqual(Region{Start: start}, func(prev Region) bool {
		if prev.End > start {
			conflict = &prev
		}
		return false
	})
	m.regions.AscendGreaterOrEqual(Region{Start: start}, func(next Region) bool {
		if next.Start < r.End {
			conflict = &next
		}
		return false
	})
	if conflict != nil {
		return fmt.Errorf("mapping %v: conflicts with %v: %w", r, *conflict, ErrOverlap)
	}
	m.regions.ReplaceOrInsert(r)
	return nil
}

// Regions returns the mapped regions in address order.
func (m *Memory) Regions() []Region {
	rs := make([]Region, 0, m.regions.Len())
	m.regions.Ascend(func(r Region) bool {
		rs = append(rs, r)
		return true
	})
	return rs
}

// Find returns the region containing addr.
func (m *Memory) Find(addr uint64) (Region, bool) {
	var (
		found Region
		ok    bool
	)
	m.regions.DescendLessOrEqual(Region{Start: addr}, func(r Region) bool {
		found, ok = r, addr < r.End
		return false
	})
	return found, ok
}

// Store64 writes v at addr. On failure it returns the page fault error code
// the access raises.
func (m *Memory) Store64(addr, v uint64) (trap.PageFaultErrorCode, bool) {
	r, ok := m.Find(addr)
	if !ok || !r.Contains(addr, 8) {
		return trap.CausedByWrite, false
	}
	if !r.Writable {
		return trap.ProtectionViolation | trap.CausedByWrite, false
	}
	m.write(addr, v)
	return 0, true
}

// Load64 reads the word at addr. Mapped memory that was never written reads
// as zero. A failed read raises a not-present read fault, whose error code
// is zero.
func (m *Memory) Load64(addr uint64) (uint64, trap.PageFaultErrorCode, bool) {
	r, ok := m.Find(addr)
	if !ok || !r.Contains(addr, 8) {
		return 0, 0, false
	}
	return m.read(addr), 0, true
}

func (m *Memory) read(addr uint64) uint64 {
	base, shift := addr&^7, (addr&7)*8
	if shift == 0 {
		return m.words[base]
	}
	return m.words[base]>>shift | m.words[base+8]<<(64-shift)
}

func (m *Memory) write(addr, v uint64) {
	base, shift := addr&^7, (addr&7)*8
	if shift == 0 {
		m.words[base] = v
		return
	}
	low := uint64(1)<<shift - 1
	m.words[base] = m.words[base]&low | v<<shift
	m.words[base+8] = m.words[base+8]&^low | v>>(64-shift)
}
