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

// Package mailbox implements the shared-memory channel used to exchange SCMI
// messages with the power-management co-processor.
//
// A channel is a fixed mailbox slot in a shared memory Window plus a
// Doorbell. The agent writes a request, rings the doorbell and later polls
// the channel status word; the remote side posts its response in place and
// sets the free bit. Nothing in this package blocks.
package mailbox

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var (
	pageSize = os.Getpagesize()
	pageMask = pageSize - 1
)

func roundUpToPage(x int) int {
	return (x + pageMask) &^ pageMask
}

// Window is a region of memory shared with a remote processor. Words are
// accessed atomically in native byte order; the remote processors this
// talks to are little-endian, as are the supported hosts.
type Window struct {
	// mapping is the whole mmap'd range, page aligned.
	mapping []byte

	// mem is the window proper, a subslice of mapping.
	mem []byte
}

// NewAnonymousWindow returns a zero-filled shared anonymous mapping of at
// least size bytes. It is used to host both sides of a channel in one
// process.
func NewAnonymousWindow(size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid window size: %d", size)
	}
	m, err := unix.Mmap(-1, 0, roundUpToPage(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap anonymous window: %w", err)
	}
	return &Window{mapping: m, mem: m[:size]}, nil
}

// OpenWindow maps size bytes of the file at path starting at offset, which
// need not be page aligned. path is typically /dev/mem, or a file on tmpfs
// shared with an emulated remote. A missing file is created, and regular
// files shorter than offset+size are extended.
func OpenWindow(path string, offset int64, size int) (*Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid window size: %d", size)
	}
	if offset < 0 || offset%4 != 0 {
		return nil, fmt.Errorf("invalid window offset: %#x", offset)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_SYNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	// The mapping holds its own reference to the file.
	defer f.Close()

	if fi, err := f.Stat(); err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", path, err)
	} else if fi.Mode().IsRegular() && fi.Size() < offset+int64(size) {
		if err := f.Truncate(offset + int64(size)); err != nil {
			return nil, fmt.Errorf("failed to extend %q: %w", path, err)
		}
	}

	base := offset &^ int64(pageMask)
	delta := int(offset - base)
	m, err := unix.Mmap(int(f.Fd()), base, roundUpToPage(delta+size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %q at %#x: %w", path, offset, err)
	}
	return &Window{mapping: m, mem: m[delta : delta+size]}, nil
}

// Close unmaps w. No other Window methods may be called after Close.
func (w *Window) Close() error {
	if w.mapping == nil {
		return nil
	}
	err := unix.Munmap(w.mapping)
	w.mapping = nil
	w.mem = nil
	return err
}

// Size returns the size of w in bytes.
func (w *Window) Size() int {
	return len(w.mem)
}

// Load atomically loads the word at byte offset off.
func (w *Window) Load(off uintptr) uint32 {
	return w.word(off).Load()
}

// Store atomically stores v to the word at byte offset off.
func (w *Window) Store(off uintptr, v uint32) {
	w.word(off).Store(v)
}
