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

package log

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// GoogleEmitter is a wrapper that emits logs in a format compatible with
// package github.com/golang/glog.
type GoogleEmitter struct {
	// Emitter is the underlying emitter.
	Emitter
}

// pid is used for the threadid component of the header.
var pid = os.Getpid()

// appendPadded appends v right-aligned in a field of width characters.
func appendPadded(b []byte, v, width int) []byte {
	s := strconv.Itoa(v)
	for i := len(s); i < width; i++ {
		b = append(b, ' ')
	}
	return append(b, s...)
}

// appendZeroPadded appends the low digits decimal digits of v, zero padded.
func appendZeroPadded(b []byte, v, digits int) []byte {
	s := strconv.Itoa(v)
	for i := len(s); i < digits; i++ {
		b = append(b, '0')
	}
	return append(b, s...)
}

// Emit emits the message, google-style.
//
// Log lines have this form:
//
//	Lmmdd hh:mm:ss.uuuuuu threadid file:line] msg...
//
// The format string is extended rather than formatted here, so arguments are
// only rendered once, by the underlying emitter.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	b := make([]byte, 0, 64+len(format))

	switch level {
	case Debug:
		b = append(b, 'D')
	case Info:
		b = append(b, 'I')
	case Warning:
		b = append(b, 'W')
	}

	_, month, day := timestamp.Date()
	hour, minute, second := timestamp.Clock()
	b = appendZeroPadded(b, int(month), 2)
	b = appendZeroPadded(b, day, 2)
	b = append(b, ' ')
	b = appendZeroPadded(b, hour, 2)
	b = append(b, ':')
	b = appendZeroPadded(b, minute, 2)
	b = append(b, ':')
	b = appendZeroPadded(b, second, 2)
	b = append(b, '.')
	b = appendZeroPadded(b, timestamp.Nanosecond()/1000, 6)
	b = append(b, ' ')

	// The glog package logger uses 7 spaces of padding.
	b = appendPadded(b, pid, 7)
	b = append(b, ' ')

	file, line := "???", 0
	if _, f, l, ok := runtime.Caller(depth + 1); ok {
		file, line = f[strings.LastIndexByte(f, '/')+1:], l
	}
	b = append(b, file...)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(line), 10)
	b = append(b, "] "...)

	// Escape nothing: the format is passed through as is.
	b = append(b, format...)
	b = append(b, '\n')

	g.Emitter.Emit(depth+1, level, timestamp, string(b), args...)
}
