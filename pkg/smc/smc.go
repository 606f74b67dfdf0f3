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

// Package smc carries DVFS service calls from a non-secure caller to the
// service over a stream connection.
//
// Each call is one fixed-size little-endian frame, mirroring the registers
// of a secure monitor call:
//
//	Call:   function u32 | reserved u32 | arg u64
//	Result: status u32 | ret u32 | flags u32
//
// Calls on a connection are not concurrent: the caller writes one Call frame
// and reads one Result frame before writing the next.
package smc

import (
	"encoding/binary"
	"fmt"
	"io"

	"gvisor.dev/dvfs/pkg/dvfs"
)

// Frame sizes in bytes.
const (
	CallSize   = 16
	ResultSize = 12
)

// resultRetValid is set in Result flags when Ret carries a value.
const resultRetValid = 1 << 0

// Call is a service call.
type Call struct {
	Function dvfs.Function
	Arg      uint64
}

// String implements fmt.Stringer.String.
func (c Call) String() string {
	switch c.Function {
	case dvfs.SetRate, dvfs.RoundRate:
		return fmt.Sprintf("%v(%d)", c.Function, c.Arg)
	default:
		return c.Function.String()
	}
}

// Result is the outcome of a Call.
type Result struct {
	Status dvfs.Status

	// Ret is the returned value. It is only meaningful if RetValid is set.
	Ret      uint32
	RetValid bool
}

// String implements fmt.Stringer.String.
func (r Result) String() string {
	if !r.RetValid {
		return r.Status.String()
	}
	return fmt.Sprintf("%v, %d", r.Status, r.Ret)
}

// MarshalBinary implements encoding.BinaryMarshaler.MarshalBinary.
func (c Call) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, CallSize)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Function))
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint64(buf, c.Arg)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.UnmarshalBinary.
func (c *Call) UnmarshalBinary(buf []byte) error {
	if len(buf) != CallSize {
		return fmt.Errorf("call frame is %d bytes, want %d", len(buf), CallSize)
	}
	c.Function = dvfs.Function(binary.LittleEndian.Uint32(buf[0:]))
	c.Arg = binary.LittleEndian.Uint64(buf[8:])
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.MarshalBinary.
func (r Result) MarshalBinary() ([]byte, error) {
	var flags uint32
	if r.RetValid {
		flags |= resultRetValid
	}
	buf := make([]byte, 0, ResultSize)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Status))
	buf = binary.LittleEndian.AppendUint32(buf, r.Ret)
	buf = binary.LittleEndian.AppendUint32(buf, flags)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.UnmarshalBinary.
func (r *Result) UnmarshalBinary(buf []byte) error {
	if len(buf) != ResultSize {
		return fmt.Errorf("result frame is %d bytes, want %d", len(buf), ResultSize)
	}
	r.Status = dvfs.Status(binary.LittleEndian.Uint32(buf[0:]))
	r.Ret = binary.LittleEndian.Uint32(buf[4:])
	r.RetValid = binary.LittleEndian.Uint32(buf[8:])&resultRetValid != 0
	return nil
}

// readCall reads one Call frame from r.
func readCall(r io.Reader) (Call, error) {
	var buf [CallSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Call{}, err
	}
	var c Call
	err := c.UnmarshalBinary(buf[:])
	return c, err
}

// readResult reads one Result frame from r.
func readResult(r io.Reader) (Result, error) {
	var buf [ResultSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Result{}, err
	}
	var res Result
	err := res.UnmarshalBinary(buf[:])
	return res, err
}

// writeFrame writes v's binary form to w in a single write.
func writeFrame(w io.Writer, v interface{ MarshalBinary() ([]byte, error) }) error {
	buf, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
