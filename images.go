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

package casepipe

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/casepipe/imageident"
	"github.com/forensicanalysis/casepipe/memident"
	"github.com/forensicanalysis/casepipe/profilestore"
	"github.com/forensicanalysis/casepipe/timeline"
)

// Kind distinguishes disk from memory evidence.
type Kind string

// Evidence kinds.
const (
	KindDisk   Kind = "disk"
	KindMemory Kind = "memory"
)

// NoSnapshot marks an image that is not a volume shadow copy variant.
const NoSnapshot = -1

// ImageDescriptor is the composite identity of one evidence unit. It is
// created during identification and read only afterwards; downstream phases
// reference it by name only.
type ImageDescriptor struct {
	Name          string
	Platform      imageident.Platform
	Kind          Kind
	SnapshotIndex int
}

// NewImage creates a descriptor for a plain, not yet classified image.
func NewImage(name string, kind Kind) ImageDescriptor {
	return ImageDescriptor{Name: name, Kind: kind, Platform: imageident.Unknown, SnapshotIndex: NoSnapshot}
}

// Label returns the human readable identity used in logs and error
// summaries.
func (d ImageDescriptor) Label() string {
	if d.SnapshotIndex != NoSnapshot {
		return fmt.Sprintf("%s (vss%d)", d.Name, d.SnapshotIndex)
	}
	return d.Name
}

// PhaseSelector names the pipeline stage requested by the caller.
type PhaseSelector int

// Phases. PhaseUnspecified runs the full pipeline honoring each stage's own
// enable flag.
const (
	PhaseUnspecified PhaseSelector = iota
	PhaseCollect
	PhaseProcess
	PhaseAnalyse
)

// ParsePhase maps the phase names accepted on the command line.
func ParsePhase(name string) (PhaseSelector, error) {
	switch name {
	case "":
		return PhaseUnspecified, nil
	case "collect":
		return PhaseCollect, nil
	case "process":
		return PhaseProcess, nil
	case "analyse":
		return PhaseAnalyse, nil
	}
	return PhaseUnspecified, errors.Errorf("unknown phase %q", name)
}

// ErrorRecord is a per image failure collected during an analysis pass. It
// is reported in the end of pass summary and never raised further up.
type ErrorRecord struct {
	Image   string
	Message string
}

// Result reports what a pipeline run did: the accumulated stage completion
// flags and the per image analysis errors.
type Result struct {
	Flags  []string
	Errors []ErrorRecord
}

// Collector copies artefacts from a mounted disk image into the case
// directory during the collect phase.
type Collector interface {
	Collect(ctx context.Context, caseDir string, image ImageDescriptor, mountPoint string) error
}

// Extractor parses collected artefacts of a disk image during the process
// phase.
type Extractor interface {
	Extract(ctx context.Context, caseDir string, image ImageDescriptor, mountPoint string) error
}

// Analyzer inspects the processed artefacts of one image. When no analyzer
// is configured, the pipeline falls back to inventorying artefact files.
type Analyzer interface {
	Analyze(ctx context.Context, caseDir string, image ImageDescriptor) error
}

// Options wire a Pipeline.
type Options struct {
	CaseDir string
	Fs      afero.Fs

	// Stage enable flags, honored on full runs.
	Collection bool
	Processing bool
	Analysis   bool
	Timeline   bool

	// KeywordFile is the keyword source; keyword search only runs when one
	// is configured.
	KeywordFile string

	// ResultStoreURL is the element database written by the keyword search
	// and analysis stages. Empty disables the result store.
	ResultStoreURL string

	// Memory identification wiring.
	Runner         memident.ToolRunner
	SymbolRoot     string
	SymbolArchives map[imageident.Platform]string
	ProfileDirs    []string

	// Input answers interactive prompts; nil means non-interactive and
	// every prompt resolves to its documented default.
	Input memident.InputSource

	// External collaborators.
	Collector       Collector
	Extractor       Extractor
	MemoryExtractor profilestore.MemoryExtractor
	TimelineBuilder timeline.Builder
	Analyzer        Analyzer
}
