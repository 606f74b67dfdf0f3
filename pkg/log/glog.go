// Copyright 2026 The gVisor Authors.
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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
)

// buffer is a simple inline buffer to avoid churn. The data slice is generally
// kept to the local byte array, and we avoid having to allocate it on the heap.
type buffer struct {
	local [256]byte
	data  []byte
}

func (b *buffer) start() {
	b.data = b.local[:0]
}

func (b *buffer) write(c byte) {
	b.data = append(b.data, c)
}

func (b *buffer) writeString(s string) {
	b.data = append(b.data, s...)
}

func (b *buffer) writeOneDigit(d byte) {
	b.write('0' + d)
}

func (b *buffer) writeTwoDigits(v int) {
	v = v % 100
	b.writeOneDigit(byte(v / 10))
	b.writeOneDigit(byte(v % 10))
}

func (b *buffer) writeSixDigits(v int) {
	v = v % 1000000
	b.writeOneDigit(byte(v / 100000))
	b.writeOneDigit(byte((v % 100000) / 10000))
	b.writeOneDigit(byte((v % 10000) / 1000))
	b.writeOneDigit(byte((v % 1000) / 100))
	b.writeOneDigit(byte((v % 100) / 10))
	b.writeOneDigit(byte(v % 10))
}

// pid is used for the threadid component of the header, padded to 7 columns
// like glog does.
var pid = padLeft(strconv.Itoa(os.Getpid()), 7)

func padLeft(s string, n int) string {
	for len(s) < n {
		s = " " + s
	}
	return s
}

// glogFormatter formats entries in the style of github.com/golang/glog.
//
// Log lines have this form:
//
//	Lmmdd hh:mm:ss.uuuuuu threadid file:line] msg key=value...
//
// where the fields are defined as follows:
//
//	L                A single character, representing the log level (eg 'I' for INFO)
//	mm               The month (zero padded; ie May is '05')
//	dd               The day (zero padded)
//	hh:mm:ss.uuuuuu  Time in hours, minutes and fractional seconds
//	threadid         The space-padded process ID
//	file             The file name, or "x" if caller reporting is off
//	line             The line number
//	msg              The user-supplied message
type glogFormatter struct{}

// Format implements logrus.Formatter.Format.
func (glogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b buffer
	b.start()

	switch e.Level {
	case logrus.DebugLevel, logrus.TraceLevel:
		b.write('D')
	case logrus.InfoLevel:
		b.write('I')
	case logrus.WarnLevel:
		b.write('W')
	default:
		b.write('E')
	}

	_, month, day := e.Time.Date()
	hour, minute, second := e.Time.Clock()
	b.writeTwoDigits(int(month))
	b.writeTwoDigits(int(day))
	b.write(' ')
	b.writeTwoDigits(hour)
	b.write(':')
	b.writeTwoDigits(minute)
	b.write(':')
	b.writeTwoDigits(second)
	b.write('.')
	b.writeSixDigits(e.Time.Nanosecond() / 1000)
	b.write(' ')

	b.writeString(pid)
	b.write(' ')

	if e.HasCaller() {
		b.writeString(filepath.Base(e.Caller.File))
		b.write(':')
		b.writeString(strconv.Itoa(e.Caller.Line))
	} else {
		b.writeString("x:0")
	}
	b.writeString("] ")
	b.writeString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.write(' ')
		b.writeString(k)
		b.write('=')
		b.writeString(valueString(e.Data[k]))
	}
	b.write('\n')

	// The inline array does not outlive this call.
	return append([]byte(nil), b.data...), nil
}

func valueString(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case error:
		return strconv.Quote(v.Error())
	default:
		return strconv.Quote(fmt.Sprint(v))
	}
}
