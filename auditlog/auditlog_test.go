// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package auditlog

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, fs afero.Fs, path string) []string {
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	content := strings.TrimRight(string(data), "\n")
	return strings.Split(content, "\n")
}

func TestWriteHeader(t *testing.T) {
	fs := afero.NewMemMapFs()
	ledger := New(fs, "/case")

	err := ledger.Write(Entry{Image: "disk1", Stage: "collect", Message: "started"}, "")
	require.NoError(t, err)

	lines := readLines(t, fs, ledger.Path())
	require.Len(t, lines, 2)
	assert.Equal(t, "datetime,image,stage,message", lines[0])
}

func TestWriteAppends(t *testing.T) {
	fs := afero.NewMemMapFs()
	ledger := New(fs, "/case")

	when := time.Date(2020, 2, 1, 12, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := ledger.Write(Entry{Time: when, Image: "disk1", Stage: "collect", Message: "step"}, "")
		require.NoError(t, err)
	}

	lines := readLines(t, fs, ledger.Path())
	require.Len(t, lines, 6)
	assert.Equal(t, "datetime,image,stage,message", lines[0])
	for _, line := range lines[1:] {
		assert.Equal(t, "2020-02-01 12:30:00,disk1,collect,step", line)
	}
}

func TestWriteStripsQuotes(t *testing.T) {
	fs := afero.NewMemMapFs()
	ledger := New(fs, "/case")

	err := ledger.Write(Entry{Image: "bob's laptop", Stage: "identify", Message: "it's windows"}, "")
	require.NoError(t, err)

	lines := readLines(t, fs, ledger.Path())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "bobs laptop")
	assert.Contains(t, lines[1], "its windows")
	assert.NotContains(t, lines[1], "'")
}

func TestWriteKeepsExistingRows(t *testing.T) {
	fs := afero.NewMemMapFs()
	ledger := New(fs, "/case")

	require.NoError(t, ledger.Write(Entry{Image: "a", Stage: "s", Message: "first"}, ""))
	before := readLines(t, fs, ledger.Path())

	require.NoError(t, ledger.Write(Entry{Image: "b", Stage: "s", Message: "second"}, ""))
	after := readLines(t, fs, ledger.Path())

	require.Len(t, after, len(before)+1)
	assert.Equal(t, before, after[:len(before)])
}
