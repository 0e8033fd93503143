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
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanupSessionLog ensures session log state is clean after tests.
func cleanupSessionLog(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { _ = CloseSessionLog() })
}

//nolint:paralleltest // session log is package-level
func TestInitSessionLog_CreatesFileInDir(t *testing.T) {
	cleanupSessionLog(t)
	dir := t.TempDir()

	path, err := InitSessionLog(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, regexp.MustCompile(`^ccid_\d{8}_\d{6}\.log$`), filepath.Base(path))
	assert.Equal(t, path, GetSessionLogPath())

	_, err = os.Stat(path)
	require.NoError(t, err, "Log file should exist")
}

//nolint:paralleltest // session log is package-level
func TestInitSessionLog_HeaderAndFooter(t *testing.T) {
	cleanupSessionLog(t)

	path, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)
	Debugf("-> 000000 %s", "03 06")
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	text := string(content)

	assert.True(t, strings.HasPrefix(text, "=== CCID Serial Debug Session Log ==="))
	for _, field := range []string{"Started:", "PID:", "OS:", "Go Version:", "Line: 115200 baud 8N2", "Command Line:"} {
		assert.Contains(t, text, field)
	}
	assert.Contains(t, text, "DEBUG: -> 000000 03 06")
	assert.Contains(t, text, "=== Session ended ===")
	assert.Empty(t, GetSessionLogPath())
}

//nolint:paralleltest // session log is package-level
func TestInitSessionLog_SameSecondGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	first, firstPath, err := createLogFile(dir, now)
	require.NoError(t, err)
	_ = first.Close()

	second, secondPath, err := createLogFile(dir, now)
	require.NoError(t, err)
	_ = second.Close()

	assert.Equal(t, filepath.Join(dir, "ccid_20250304_050607.log"), firstPath)
	assert.Equal(t, filepath.Join(dir, "ccid_20250304_050607_1.log"), secondPath)
}

//nolint:paralleltest // session log is package-level
func TestInitSessionLog_MissingDirectory(t *testing.T) {
	cleanupSessionLog(t)

	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Empty(t, GetSessionLogPath())
}

//nolint:paralleltest // session log is package-level
func TestInitSessionLog_ReplacesOpenLog(t *testing.T) {
	cleanupSessionLog(t)
	dir := t.TempDir()

	firstPath, err := InitSessionLog(dir)
	require.NoError(t, err)
	secondPath, err := InitSessionLog(dir)
	require.NoError(t, err)
	require.NotEqual(t, firstPath, secondPath)

	content, err := os.ReadFile(firstPath) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	assert.Contains(t, string(content), "=== Session ended ===")
	assert.Equal(t, secondPath, GetSessionLogPath())
}

//nolint:paralleltest // session log is package-level
func TestCloseSessionLog_NothingOpen(t *testing.T) {
	cleanupSessionLog(t)
	require.NoError(t, CloseSessionLog())
	assert.NoError(t, CloseSessionLog())
}

//nolint:paralleltest // session log is package-level
func TestSessionLog_ConcurrentWriters(t *testing.T) {
	cleanupSessionLog(t)

	path, err := InitSessionLog(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for slot := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 25 {
				Debugf("slot %d line %d", slot, i)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	assert.Equal(t, 100, strings.Count(string(content), " DEBUG: slot "))
}
