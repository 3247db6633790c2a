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

// Package imageident assigns a platform tag to a mounted disk image by
// inspecting its top level directory listing. The heuristics are ordered and
// the first match wins, so a layout that satisfies both the Windows and the
// Linux markers is classified as Windows.
package imageident

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Platform identifies the operating system found on an image.
type Platform string

// Known platforms. The Windows values carry the release where it could be
// pinned down, everything else stays on the generic tag.
const (
	Unknown             Platform = "unknown"
	Linux               Platform = "linux"
	MacOS               Platform = "macos"
	Windows             Platform = "windows"
	Windows10           Platform = "windows10"
	WindowsServer       Platform = "windows_server"
	WindowsServer2012R2 Platform = "windows_server_2012r2"
	WindowsServer2016   Platform = "windows_server_2016"
	WindowsServer2019   Platform = "windows_server_2019"
	WindowsServer2022   Platform = "windows_server_2022"
)

// Family reduces a platform to its operating system family, dropping any
// release qualifier.
func (p Platform) Family() Platform {
	switch {
	case strings.HasPrefix(string(p), string(Windows)):
		return Windows
	case p == MacOS:
		return MacOS
	case p == Linux:
		return Linux
	}
	return Unknown
}

// windowsMarkers are root entries that only appear on NTFS system volumes.
// Any single hit is sufficient.
var windowsMarkers = []string{"$MFTMirr", "$Bitmap", "$LogFile", "$Boot", "Windows"}

// macosMarkers must all be present in the same listing.
var macosMarkers = []string{"Applications", "System", "Library"}

// linuxMarkers must all be present and the listing must not also satisfy the
// macOS triad, which contains no lowercase entries.
var linuxMarkers = []string{"etc", "usr", "var"}

// linuxLegacyMarkers is a compatibility heuristic for older mount layouts.
var linuxLegacyMarkers = []string{"root", "media"}

// windowsReleases pins a Windows release from the entries one level below
// the Windows directory. Checked in order, first match wins; the generic
// Server tokens have to come after the year specific ones.
var windowsReleases = []struct {
	token    string
	platform Platform
}{
	{"2022", WindowsServer2022},
	{"2019", WindowsServer2019},
	{"2016", WindowsServer2016},
	{"2012R2", WindowsServer2012R2},
	{"Server", WindowsServer},
}

// Classify inspects the top level listing of a mounted filesystem root and
// returns the detected platform. Only the root listing is read, plus one
// level into the Windows directory for release pinning. An unmatched listing
// yields Unknown.
func Classify(fs afero.Fs, mountRoot string) Platform {
	entries, err := listNames(fs, mountRoot)
	if err != nil {
		return Unknown
	}

	if containsAny(entries, windowsMarkers) {
		return classifyWindows(fs, mountRoot)
	}

	if containsAll(entries, macosMarkers) {
		return MacOS
	}

	// macOS volumes mounted below an apfs container root
	if _, ok := entries["root"]; ok {
		sub, err := listNames(fs, filepath.Join(mountRoot, "root"))
		if err == nil && containsAll(sub, macosMarkers) {
			return MacOS
		}
	}

	if containsAll(entries, linuxMarkers) && !containsAll(entries, macosMarkers) {
		return Linux
	}

	if containsAll(entries, linuxLegacyMarkers) {
		return Linux
	}

	return Unknown
}

func classifyWindows(fs afero.Fs, mountRoot string) Platform {
	entries, err := listNames(fs, filepath.Join(mountRoot, "Windows"))
	if err != nil {
		return Windows10
	}

	for _, release := range windowsReleases {
		for name := range entries {
			if strings.Contains(name, release.token) {
				return release.platform
			}
		}
	}
	return Windows10
}

func listNames(fs afero.Fs, dir string) (map[string]bool, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(infos))
	for _, info := range infos {
		names[info.Name()] = true
	}
	return names, nil
}

func containsAny(entries map[string]bool, markers []string) bool {
	for _, marker := range markers {
		if entries[marker] {
			return true
		}
	}
	return false
}

func containsAll(entries map[string]bool, markers []string) bool {
	for _, marker := range markers {
		if !entries[marker] {
			return false
		}
	}
	return true
}
