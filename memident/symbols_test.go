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

package memident

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/casepipe/imageident"
)

func TestInstallSymbols(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := symbolZip(t)

	err := InstallSymbols(fs, "/symbols", imageident.Linux, payload)
	require.NoError(t, err)

	content, err := afero.ReadFile(fs, "/symbols/linux/kernel.json")
	require.NoError(t, err)
	assert.Equal(t, `{"symbols": {}}`, string(content))
}

func TestInstallSymbolsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/symbols/mac", 0755))
	require.NoError(t, afero.WriteFile(fs, "/symbols/mac/existing.json", []byte("keep"), 0644))

	// target exists: the payload is not even decoded
	err := InstallSymbols(fs, "/symbols", imageident.MacOS, "not hex at all")
	require.NoError(t, err)

	content, err := afero.ReadFile(fs, "/symbols/mac/existing.json")
	require.NoError(t, err)
	assert.Equal(t, "keep", string(content))
}

func TestInstallSymbolsMissingRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	err := InstallSymbols(fs, "", imageident.Linux, symbolZip(t))
	assert.Equal(t, errNoSymbolRoot, err)
}

func TestInstallSymbolsBadPayload(t *testing.T) {
	fs := afero.NewMemMapFs()

	err := InstallSymbols(fs, "/symbols", imageident.Linux, "zz")
	assert.Error(t, err)

	err = InstallSymbols(fs, "/symbols", imageident.Linux, "00ff")
	assert.Error(t, err)
}

func TestSymbolDir(t *testing.T) {
	assert.Equal(t, "windows", symbolDir(imageident.WindowsServer2019))
	assert.Equal(t, "mac", symbolDir(imageident.MacOS))
	assert.Equal(t, "linux", symbolDir(imageident.Linux))
	assert.Equal(t, "linux", symbolDir(imageident.Unknown))
}
