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

// Package casepipe processes the evidence of a digital forensic case. Given
// mounted disk and memory images it runs a multi stage pipeline that
// identifies platforms, collects and extracts artefacts, searches keywords,
// analyses artefacts and builds timelines, recording every step in an
// append only audit ledger.
//
// Phases
//
// The pipeline can be entered with a single phase for resumable, partial
// runs:
//     collect   image identification and artefact collection
//     process   artefact extraction, including deferred memory extraction
//     analyse   keyword search, analysis and timeline construction
//
// An unspecified phase runs everything, stage by stage, honoring each
// stage's own enable flag.
//
// Case directory
//
// Every run works below one case directory:
//     case/
//     ├── audit.csv              the append only audit ledger
//     ├── memory-profiles.json   identification results awaiting extraction
//     ├── elements.db            the result store, written during analysis
//     └── <image>/
//         ├── artefacts/...      extraction output per image
//         └── timeline.csv       one timeline per disk image
//
// Memory images are identified during collection but extracted later: the
// identification result is persisted and replayed in the process phase, so
// the expensive extraction can run in a separately invoked step.
package casepipe
