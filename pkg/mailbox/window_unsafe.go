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

package mailbox

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// word returns the word at byte offset off as an atomic.
//
// The Window is a raw OS mapping and not a Go object, so the pointer stays
// valid until Close regardless of the garbage collector.
func (w *Window) word(off uintptr) *atomic.Uint32 {
	if off%4 != 0 || off+4 > uintptr(len(w.mem)) {
		panic(fmt.Sprintf("mailbox window access at %#x out of range or unaligned (size %#x)", off, len(w.mem)))
	}
	return (*atomic.Uint32)(unsafe.Pointer(&w.mem[off]))
}
