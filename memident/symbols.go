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
	"archive/zip"
	"bytes"
	"encoding/hex"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/casepipe/imageident"
)

var (
	errNoArchive    = errors.New("no symbol archive for this platform")
	errNoSymbolRoot = errors.New("symbol table search root not found")
)

// InstallSymbols decodes a hex encoded zip payload and extracts it into the
// family subdirectory of the symbol table search root. The extraction only
// happens if that subdirectory does not exist yet, so repeated calls are
// cheap no-ops.
func InstallSymbols(fs afero.Fs, symbolRoot string, family imageident.Platform, hexArchive string) error {
	if symbolRoot == "" {
		return errNoSymbolRoot
	}

	target := filepath.Join(symbolRoot, symbolDir(family))
	exists, err := afero.DirExists(fs, target)
	if err != nil {
		return errors.Wrap(err, "could not check symbol directory")
	}
	if exists {
		return nil
	}

	payload, err := hex.DecodeString(hexArchive)
	if err != nil {
		return errors.Wrap(err, "could not decode symbol archive")
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return errors.Wrap(err, "could not open symbol archive")
	}

	if err := fs.MkdirAll(target, 0755); err != nil {
		return errors.Wrap(err, "could not create symbol directory")
	}

	for _, entry := range reader.File {
		if err := extractEntry(fs, target, entry); err != nil {
			return errors.Wrapf(err, "could not extract %s", entry.Name)
		}
	}
	return nil
}

func extractEntry(fs afero.Fs, target string, entry *zip.File) error {
	name := filepath.FromSlash(entry.Name)
	if strings.Contains(name, "..") {
		return errors.New("archive entry escapes target directory")
	}
	destination := filepath.Join(target, name)

	if entry.FileInfo().IsDir() {
		return fs.MkdirAll(destination, 0755)
	}

	if err := fs.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return err
	}

	source, err := entry.Open()
	if err != nil {
		return err
	}
	defer source.Close()

	file, err := fs.Create(destination)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, source)
	return err
}

// symbolDir maps an OS family to its subdirectory below the symbol root,
// following the layout the analysis tool searches.
func symbolDir(family imageident.Platform) string {
	switch family.Family() {
	case imageident.Windows:
		return "windows"
	case imageident.MacOS:
		return "mac"
	default:
		return "linux"
	}
}
