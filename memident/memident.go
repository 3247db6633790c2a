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

// Package memident determines the operating system of a raw memory image.
//
// Identification probes the image with an external analysis tool plugin per
// operating system family, in the fixed order Windows, macOS, Linux. The
// non-Windows probes first install the matching symbol table archive, since
// the plugin cannot resolve OS structures without one. A probe succeeds when
// the plugin output contains one of the family's marker substrings.
//
// When no probe succeeds the identifier falls back to an interactive custom
// profile selection, or, in non-interactive contexts, to the documented
// Windows default. Identification never extracts artefacts itself; it only
// produces a Record for deferred processing.
package memident

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/forensicanalysis/casepipe/auditlog"
	"github.com/forensicanalysis/casepipe/imageident"
)

// SnapshotFlags carry the volume shadow copy context of a memory image.
type SnapshotFlags struct {
	IsVSS          bool   `json:"is_vss"`
	VSSLabel       string `json:"vss_label,omitempty"`
	MemoryTimeline bool   `json:"memory_timeline"`
}

// Record is the identification result for one memory image. It is persisted
// by the profile store and replayed during the process phase.
type Record struct {
	ImageName  string              `json:"image_name"`
	Profile    string              `json:"profile"`
	Platform   imageident.Platform `json:"platform"`
	SourcePath string              `json:"source_path"`
	MountPoint string              `json:"mount_point"`
	Snapshot   SnapshotFlags       `json:"snapshot"`
}

// Request names the memory image to identify.
type Request struct {
	ImageName  string
	SourcePath string
	MountPoint string
	Snapshot   SnapshotFlags
}

// ToolRunner invokes an external analysis tool plugin against a raw image.
// Timeout and cancellation policy belong to the runner, not to this package.
type ToolRunner interface {
	Run(ctx context.Context, plugin string, imagePath string) (string, error)
}

// InputSource answers interactive prompts. A nil source means the identifier
// runs non-interactively and resolves every prompt to its documented default.
type InputSource func(prompt string) (string, error)

// Config wires an Identifier.
type Config struct {
	Fs     afero.Fs
	Runner ToolRunner
	Ledger *auditlog.Ledger

	// SymbolRoot is the search root for symbol tables. An empty value means
	// the root could not be located; non-Windows probes then cannot succeed.
	SymbolRoot string

	// SymbolArchives maps an OS family to its hex encoded zip payload.
	SymbolArchives map[imageident.Platform]string

	// ProfileDirs are the fixed locations listed to validate custom profile
	// names entered by the operator.
	ProfileDirs []string

	// Input is the interactive prompt source, nil for non-interactive runs.
	Input InputSource
}

// Identifier runs the memory image identification state machine.
type Identifier struct {
	config Config
}

// New creates an Identifier.
func New(config Config) *Identifier {
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	return &Identifier{config: config}
}

type probe struct {
	platform    imageident.Platform
	plugin      string
	markers     []string
	needSymbols bool
}

// probes are tried in fixed order. Success is plain substring presence in
// the plugin output, not structured parsing.
var probes = []probe{
	{imageident.Windows, "windows.info", []string{"ntoskrnl", "NTBuildLab", "NT Kernel"}, false},
	{imageident.MacOS, "banners", []string{"/System/Library/Kernels", "Darwin Kernel Version", "root:xnu"}, true},
	{imageident.Linux, "banners", []string{"Linux version", "sudo", "ELF"}, true},
}

// Identify probes the memory image and returns its identification record.
// It never fails hard: an unidentifiable image ends up skipped or on the
// documented Windows default.
func (id *Identifier) Identify(ctx context.Context, req Request) Record {
	record := Record{
		ImageName:  req.ImageName,
		SourcePath: req.SourcePath,
		MountPoint: req.MountPoint,
		Snapshot:   req.Snapshot,
		Platform:   imageident.Unknown,
	}

	if id.config.Runner == nil {
		log.Printf("no probe runner wired, skipping probes for %s", req.ImageName)
	} else {
		for _, p := range probes {
			if p.needSymbols {
				if err := id.ensureSymbols(p.platform); err != nil {
					log.Printf("skipping %s probe for %s: %v", p.platform, req.ImageName, err)
					continue
				}
			}

			output, err := id.config.Runner.Run(ctx, p.plugin, req.SourcePath)
			if err != nil {
				log.Printf("%s probe failed for %s: %v", p.platform, req.ImageName, err)
				continue
			}

			if containsAny(output, p.markers) {
				record.Platform = p.platform
				id.audit(req.ImageName, "identify", "detected "+string(p.platform)+" memory image")
				return record
			}
		}
	}

	if id.config.Input == nil {
		// No probe matched and nobody can be asked. Keep the historic
		// Windows default, but make it distinguishable in the ledger.
		record.Platform = imageident.Windows
		log.Printf("WARNING: no memory probe matched %s, defaulting to windows", req.ImageName)
		id.audit(req.ImageName, "identify-default", "no probe matched, assuming windows")
		return record
	}

	profile, platform := id.chooseCustomProfile(req.ImageName)
	record.Profile = profile
	record.Platform = platform
	if profile == "" {
		id.audit(req.ImageName, "identify", "custom profile selection skipped")
	} else {
		id.audit(req.ImageName, "identify", "custom profile "+profile+" selected")
	}
	return record
}

// ensureSymbols installs the symbol table archive for a family if its
// directory below the symbol root does not exist yet.
func (id *Identifier) ensureSymbols(family imageident.Platform) error {
	payload, ok := id.config.SymbolArchives[family]
	if !ok {
		return errNoArchive
	}
	return InstallSymbols(id.config.Fs, id.config.SymbolRoot, family, payload)
}

// listProfiles derives the set of profile names currently discoverable on
// the system from the fixed profile directory locations.
func (id *Identifier) listProfiles() []string {
	seen := map[string]bool{}
	for _, dir := range id.config.ProfileDirs {
		infos, err := afero.ReadDir(id.config.Fs, dir)
		if err != nil {
			continue
		}
		for _, info := range infos {
			name := info.Name()
			if ext := strings.LastIndex(name, "."); ext > 0 {
				name = name[:ext]
			}
			seen[name] = true
		}
	}

	var names []string
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (id *Identifier) audit(image, stage, message string) {
	if id.config.Ledger == nil {
		return
	}
	err := id.config.Ledger.Write(auditlog.Entry{Image: image, Stage: stage, Message: message}, message)
	if err != nil {
		log.Printf("could not write audit entry for %s: %v", image, err)
	}
}

func containsAny(output string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}
