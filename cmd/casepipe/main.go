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

// Package casepipe implements the casepipe command line tool that runs the
// evidence processing pipeline on a case directory.
//     run       Run the full pipeline
//     collect   Identify images and collect artefacts
//     process   Extract artefacts, including deferred memory extraction
//     analyse   Search keywords, analyse artefacts and build timelines
//
// Usage
//
// Run the full pipeline
//     casepipe run --config case.yml /cases/incident-17
// Rerun only the analysis stages with an extra keyword list
//     casepipe analyse --config case.yml --keywords iocs.txt /cases/incident-17
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forensicanalysis/casepipe/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "casepipe",
		Short: "Process the evidence of a digital forensic case",
	}
	rootCmd.AddCommand(cmd.Run(), cmd.Collect(), cmd.Process(), cmd.Analyse())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
