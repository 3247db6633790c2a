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

package cmd

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/casepipe/imageident"
	"github.com/forensicanalysis/casepipe/memident"
)

// volatilityRunner probes memory images with volatility 3 plugins.
type volatilityRunner struct{}

func (r *volatilityRunner) Run(ctx context.Context, plugin, imagePath string) (string, error) {
	out, err := exec.CommandContext(ctx, "vol", "-f", imagePath, plugin).CombinedOutput()
	if err != nil {
		return string(out), errors.Wrapf(err, "could not run plugin %s on %s", plugin, imagePath)
	}
	return string(out), nil
}

// volatilityExtractor runs the full plugin set for an identified memory
// image and writes the output below the image's artefact directory.
type volatilityExtractor struct {
	plugins map[imageident.Platform][]string
}

func newVolatilityExtractor() *volatilityExtractor {
	return &volatilityExtractor{plugins: map[imageident.Platform][]string{
		imageident.Windows: {"windows.pslist", "windows.netscan", "windows.cmdline", "windows.dlllist"},
		imageident.MacOS:   {"mac.pslist", "mac.netstat", "mac.bash"},
		imageident.Linux:   {"linux.pslist", "linux.sockstat", "linux.bash"},
	}}
}

func (e *volatilityExtractor) ExtractMemory(ctx context.Context, caseDir string, record memident.Record) error {
	artefactDir := filepath.Join(caseDir, record.ImageName, "artefacts")
	if err := os.MkdirAll(artefactDir, 0755); err != nil {
		return errors.Wrap(err, "could not create artefact directory")
	}

	for _, plugin := range e.plugins[record.Platform.Family()] {
		args := []string{"-f", record.SourcePath}
		if record.Profile != "" {
			args = append(args, "--symbol", record.Profile)
		}
		args = append(args, plugin)

		out, err := exec.CommandContext(ctx, "vol", args...).CombinedOutput()
		if err != nil {
			return errors.Wrapf(err, "plugin %s failed for %s", plugin, record.ImageName)
		}
		outPath := filepath.Join(artefactDir, plugin+".txt")
		if err := os.WriteFile(outPath, out, 0644); err != nil {
			return errors.Wrapf(err, "could not store output of %s", plugin)
		}
	}
	return nil
}

// pstealBuilder builds l2t csv timelines with plaso's psteal.
type pstealBuilder struct{}

func (b *pstealBuilder) Build(ctx context.Context, mountPoint, outPath string) error {
	out, err := exec.CommandContext(ctx,
		"psteal.py", "--source", mountPoint, "-o", "l2tcsv", "-w", outPath,
	).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "psteal failed for %s: %s", mountPoint, string(out))
	}
	return nil
}
