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
	"strings"
	"time"
)

// FileVars are substituted into a log file pattern.
type FileVars struct {
	// Command replaces %COMMAND%.
	Command string

	// Start replaces %TIMESTAMP%, formatted as 20060102-150405.000000.
	Start time.Time
}

// Build returns the log file path for logPattern.
func (v FileVars) Build(logPattern string) string {
	r := strings.NewReplacer(
		"%COMMAND%", v.Command,
		"%TIMESTAMP%", v.Start.Format("20060102-150405.000000"),
	)
	return r.Replace(logPattern)
}

// OpenFile opens a log file using the specified flags. It uses vars to
// construct the log file path from logPattern. An empty pattern yields a nil
// file and no error.
func OpenFile(logPattern string, flags int, vars FileVars) (*os.File, error) {
	if len(logPattern) == 0 {
		return nil, nil
	}

	logPath := vars.Build(logPattern)

	// Create parent directory if it doesn't exist.
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, fmt.Errorf("error creating dir %q: %v", dir, err)
	}

	f, err := os.OpenFile(logPath, flags, 0664)
	if err != nil {
		return nil, fmt.Errorf("error opening file %q: %v", logPath, err)
	}
	return f, nil
}
