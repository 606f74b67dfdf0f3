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

// Package util groups a bunch of common helper functions used by commands.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gvisor.dev/dvfs/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages are
// consumed by the service manager, in addition to being logged.
var ErrorLogger io.Writer

// errorMessage is a helper to JSON-encode error messages to ErrorLogger.
type errorMessage struct {
	Msg   string    `json:"msg"`
	Level string    `json:"level"`
	Time  time.Time `json:"time"`
}

func writeError(msg string) {
	if ErrorLogger == nil {
		return
	}
	data := errorMessage{
		Msg:   msg,
		Level: "error",
		Time:  time.Now(),
	}
	enc := json.NewEncoder(ErrorLogger)
	_ = enc.Encode(data)
}

// Errorf logs error to the log and ErrorLogger, and writes it to stderr.
func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Warningf("FATAL ERROR: %s", msg)
	fmt.Fprintln(os.Stderr, msg)
	writeError(msg)
}

// Fatalf logs the same way as Errorf() does, and then exits the program with
// a code that is unlikely to collide with a subcommand exit status.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	os.Exit(128)
}
