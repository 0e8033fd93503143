// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package ccidserial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-ccidserial/internal/frame"
	"github.com/ZaparooProject/go-ccidserial/internal/syncutil"
)

// maxLogNameAttempts bounds the suffixes tried when several session logs
// start within the same second.
const maxLogNameAttempts = 100

// sessionLog mirrors debug output into a file. Connections on different
// slots log from their own goroutines, so every write holds mu.
type sessionLog struct {
	file *os.File
	w    io.Writer
	path string
	mu   syncutil.Mutex
}

var session = &sessionLog{}

func (s *sessionLog) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w != nil
}

func (s *sessionLog) writeLine(now time.Time, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return
	}
	_, _ = fmt.Fprintf(s.w, "%s %s\n", now.Format("15:04:05.000"), line)
}

// attach starts logging to w. file is closed on detach and may be nil.
func (s *sessionLog) attach(w io.Writer, file *os.File, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w, s.file, s.path = w, file, path
}

func (s *sessionLog) detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}

	_, _ = fmt.Fprintf(s.w, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))

	var err error
	if s.file != nil {
		err = s.file.Close()
	}
	s.w, s.file, s.path = nil, nil, ""
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// InitSessionLog creates a new session log file in dir, or in the current
// directory when dir is empty, and returns its path. Any previous session
// log is closed first.
func InitSessionLog(dir string) (string, error) {
	if err := CloseSessionLog(); err != nil {
		Debugf("closing previous session log: %v", err)
	}

	logFile, path, err := createLogFile(dir, time.Now())
	if err != nil {
		return "", err
	}

	writeSessionHeader(logFile)
	session.attach(logFile, logFile, path)
	return path, nil
}

// createLogFile picks ccid_YYYYMMDD_HHMMSS.log, adding a numeric suffix
// instead of truncating a log from the same second.
func createLogFile(dir string, now time.Time) (*os.File, string, error) {
	base := "ccid_" + now.Format("20060102_150405")
	for attempt := range maxLogNameAttempts {
		name := base + ".log"
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d.log", base, attempt)
		}
		path := filepath.Join(dir, name)

		//nolint:gosec // name is constructed internally
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create session log: %w", err)
		}
	}
	return nil, "", fmt.Errorf("failed to create session log: no free name for %s", base)
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	return session.detach()
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.path
}

// writeSessionHeader writes metadata about the session to the log file.
func writeSessionHeader(writer io.Writer) {
	_, _ = fmt.Fprint(writer, "=== CCID Serial Debug Session Log ===\n")
	_, _ = fmt.Fprintf(writer, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(writer, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(writer, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(writer, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(writer, "Line: 115200 baud 8N2, max frame %d bytes\n", frame.BufferSize)
	_, _ = fmt.Fprintf(writer, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(writer, "=====================================\n\n")
}
