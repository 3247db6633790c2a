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
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional case configuration file. Command line flags
// override its values.
type Config struct {
	CaseDir string `yaml:"case_dir"`

	// Images maps a mount point (or, for memory images, the raw image
	// path) to its identity.
	Images map[string]ImageConfig `yaml:"images"`

	KeywordFile string `yaml:"keyword_file"`
	SymbolRoot  string `yaml:"symbol_root"`

	// SymbolArchives maps an OS family to a file holding the hex encoded
	// zip payload of its symbol tables.
	SymbolArchives map[string]string `yaml:"symbol_archives"`

	// ProfileDirs are the locations searched for custom symbol tables.
	ProfileDirs []string `yaml:"profile_dirs"`

	Stages struct {
		Collection bool `yaml:"collection"`
		Processing bool `yaml:"processing"`
		Analysis   bool `yaml:"analysis"`
		Timeline   bool `yaml:"timeline"`
	} `yaml:"stages"`
}

// ImageConfig names one evidence unit.
type ImageConfig struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	SnapshotIndex *int   `yaml:"snapshot_index,omitempty"`
}

// LoadConfig reads a yaml case configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

// defaultConfig enables all stages.
func defaultConfig() *Config {
	config := &Config{}
	config.Stages.Collection = true
	config.Stages.Processing = true
	config.Stages.Analysis = true
	config.Stages.Timeline = true
	return config
}
