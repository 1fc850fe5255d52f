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

// Package vga writes text to a VGA text-mode frame buffer.
package vga

import "strings"

// Screen dimensions in text mode 3.
const (
	Width  = 80
	Height = 25
)

// BufferAddress is the physical address of the text frame buffer.
const BufferAddress = 0xb8000

// Color is a four-bit VGA color.
type Color uint8

// Colors.
const (
	Black Color = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGray
	DarkGray
	LightBlue
	LightGreen
	LightCyan
	LightRed
	Pink
	Yellow
	White
)

// Attribute combines a foreground and background color.
func Attribute(fg, bg Color) uint8 {
	return uint8(bg)<<4 | uint8(fg)
}

// unprintable is shown for bytes outside printable ASCII.
const unprintable = 0xfe

// Writer writes to the bottom line of the screen and scrolls up.
type Writer struct {
	buf    []uint16
	column int
	attr   uint8
}

// NewWriter returns a writer over buf, which must hold Width*Height cells.
func NewWriter(buf []uint16) *Writer {
	if len(buf) < Width*Height {
		panic("vga buffer too small")
	}
	return &Writer{buf: buf[:Width*Height], attr: Attribute(Yellow, Black)}
}

// SetColor changes the attribute used for subsequent writes.
func (w *Writer) SetColor(fg, bg Color) {
	w.attr = Attribute(fg, bg)
}

func (w *Writer) cell(c byte) uint16 {
	return uint16(w.attr)<<8 | uint16(c)
}

// WriteByte writes one character.
func (w *Writer) WriteByte(c byte) error {
	switch {
	case c == '\n':
		w.newLine()
		return nil
	case c < 0x20 || c > 0x7e:
		c = unprintable
	}
	if w.column >= Width {
		w.newLine()
	}
	w.buf[(Height-1)*Width+w.column] = w.cell(c)
	w.column++
	return nil
}

// Write implements io.Writer.
func (w *Writer) Write(b []byte) (int, error) {
	for _, c := range b {
		w.WriteByte(c)
	}
	return len(b), nil
}

func (w *Writer) newLine() {
	copy(w.buf, w.buf[Width:])
	w.clearRow(Height - 1)
	w.column = 0
}

func (w *Writer) clearRow(row int) {
	blank := w.cell(' ')
	for i := row * Width; i < (row+1)*Width; i++ {
		w.buf[i] = blank
	}
}

// Clear blanks the screen.
func (w *Writer) Clear() {
	for row := 0; row < Height; row++ {
		w.clearRow(row)
	}
	w.column = 0
}

// Text returns the characters on screen, one line per row, with trailing
// blanks and empty leading and trailing rows removed.
func (w *Writer) Text() string {
	var rows []string
	for row := 0; row < Height; row++ {
		var sb strings.Builder
		for _, cell := range w.buf[row*Width : (row+1)*Width] {
			c := byte(cell)
			if c == 0 {
				c = ' '
			}
			sb.WriteByte(c)
		}
		rows = append(rows, strings.TrimRight(sb.String(), " "))
	}
	for len(rows) > 0 && rows[0] == "" {
		rows = rows[1:]
	}
	for len(rows) > 0 && rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}
	return strings.Join(rows, "\n")
}
