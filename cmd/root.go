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
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/casepipe"
	"github.com/forensicanalysis/casepipe/imageident"
)

// Run is the casepipe run commandline subcommand: a full pipeline run.
func Run() *cobra.Command {
	return phaseCommand("run", "Run the full pipeline on a case directory", casepipe.PhaseUnspecified)
}

// Collect is the casepipe collect commandline subcommand.
func Collect() *cobra.Command {
	return phaseCommand("collect", "Identify images and collect artefacts", casepipe.PhaseCollect)
}

// Process is the casepipe process commandline subcommand.
func Process() *cobra.Command {
	return phaseCommand("process", "Extract artefacts, including deferred memory extraction", casepipe.PhaseProcess)
}

// Analyse is the casepipe analyse commandline subcommand.
func Analyse() *cobra.Command {
	return phaseCommand("analyse", "Search keywords, analyse artefacts and build timelines", casepipe.PhaseAnalyse)
}

func phaseCommand(use, short string, phase casepipe.PhaseSelector) *cobra.Command {
	var configFile, keywordFile string
	var nonInteractive, skipTimeline bool

	command := &cobra.Command{
		Use:   use + " <case-directory>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := defaultConfig()
			if configFile != "" {
				loaded, err := LoadConfig(configFile)
				if err != nil {
					return errors.Wrap(err, "could not load configuration")
				}
				config = loaded
			}
			config.CaseDir = args[0]
			if keywordFile != "" {
				config.KeywordFile = keywordFile
			}
			if skipTimeline {
				config.Stages.Timeline = false
			}

			options, images, err := buildOptions(config, nonInteractive)
			if err != nil {
				return err
			}

			result := casepipe.RunPipeline(cmd.Context(), images, phase, options)
			for _, flag := range result.Flags {
				log.Printf("stage completed: %s", flag)
			}
			if len(result.Errors) > 0 {
				log.Printf("%d image(s) failed analysis", len(result.Errors))
			}
			return nil
		},
	}

	command.Flags().StringVar(&configFile, "config", "", "case configuration file")
	command.Flags().StringVar(&keywordFile, "keywords", "", "keyword source file")
	command.Flags().BoolVar(&nonInteractive, "non-interactive", false, "resolve all prompts to their defaults")
	command.Flags().BoolVar(&skipTimeline, "skip-timeline", false, "do not build timelines")
	return command
}

func buildOptions(config *Config, nonInteractive bool) (casepipe.Options, map[string]casepipe.ImageDescriptor, error) {
	images := map[string]casepipe.ImageDescriptor{}
	for mount, imageConfig := range config.Images {
		image := casepipe.NewImage(imageConfig.Name, casepipe.Kind(imageConfig.Kind))
		if image.Name == "" {
			image.Name = filepath.Base(mount)
		}
		if image.Kind == "" {
			image.Kind = casepipe.KindDisk
		}
		if imageConfig.SnapshotIndex != nil {
			image.SnapshotIndex = *imageConfig.SnapshotIndex
		}
		images[mount] = image
	}
	if len(images) == 0 {
		return casepipe.Options{}, nil, errors.New("no images configured")
	}

	archives := map[imageident.Platform]string{}
	for family, path := range config.SymbolArchives {
		payload, err := os.ReadFile(path)
		if err != nil {
			return casepipe.Options{}, nil, errors.Wrapf(err, "could not read symbol archive for %s", family)
		}
		archives[imageident.Platform(family)] = strings.TrimSpace(string(payload))
	}

	options := casepipe.Options{
		CaseDir:        config.CaseDir,
		Collection:     config.Stages.Collection,
		Processing:     config.Stages.Processing,
		Analysis:       config.Stages.Analysis,
		Timeline:       config.Stages.Timeline,
		KeywordFile:    config.KeywordFile,
		ResultStoreURL: filepath.Join(config.CaseDir, "elements.db"),
		Runner:         &volatilityRunner{},
		SymbolRoot:     config.SymbolRoot,
		SymbolArchives: archives,
		ProfileDirs:    config.ProfileDirs,

		MemoryExtractor: newVolatilityExtractor(),
		TimelineBuilder: &pstealBuilder{},
	}
	if !nonInteractive {
		options.Input = stdinInput
	}
	return options, images, nil
}

// stdinInput reads prompt answers from standard input.
func stdinInput(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return answer, nil
}
