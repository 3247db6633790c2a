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

package imageident

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func mountWith(t *testing.T, entries ...string) afero.Fs {
	fs := afero.NewMemMapFs()
	for _, entry := range entries {
		if err := fs.MkdirAll(filepath.Join("/mnt", entry), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		want    Platform
	}{
		{"windows by directory", []string{"Windows", "System32", "Users"}, Windows10},
		{"windows by ntfs metafile", []string{"$MFTMirr", "Users"}, Windows10},
		{"macos standard", []string{"Applications", "System", "Library"}, MacOS},
		{"macos container", []string{"root/Applications", "root/System", "root/Library"}, MacOS},
		{"linux preferred", []string{"etc", "usr", "var"}, Linux},
		{"linux legacy", []string{"root", "media"}, Linux},
		{"unknown", []string{"README.txt"}, Unknown},
		{"empty", nil, Unknown},
		{"windows wins over linux", []string{"Windows", "etc", "usr", "var"}, Windows10},
		{"linux triad incomplete", []string{"etc", "usr"}, Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := mountWith(t, tt.entries...)
			assert.Equal(t, tt.want, Classify(fs, "/mnt"))
		})
	}
}

func TestClassifyWindowsReleases(t *testing.T) {
	tests := []struct {
		name   string
		marker string
		want   Platform
	}{
		{"server 2022", "Server2022Upgrade.log", WindowsServer2022},
		{"server 2019", "Server2019.xml", WindowsServer2019},
		{"server 2016", "Server2016.xml", WindowsServer2016},
		{"server 2012r2", "Server2012R2.xml", WindowsServer2012R2},
		{"generic server", "ServerStandard", WindowsServer},
		{"workstation", "System32", Windows10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := mountWith(t, filepath.Join("Windows", tt.marker))
			assert.Equal(t, tt.want, Classify(fs, "/mnt"))
		})
	}
}

func TestClassifyUnreadableRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	assert.Equal(t, Unknown, Classify(fs, "/does/not/exist"))
}

func TestFamily(t *testing.T) {
	assert.Equal(t, Windows, WindowsServer2019.Family())
	assert.Equal(t, Windows, Windows10.Family())
	assert.Equal(t, MacOS, MacOS.Family())
	assert.Equal(t, Linux, Linux.Family())
	assert.Equal(t, Unknown, Unknown.Family())
}
