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

// Package profilestore persists memory identification results per case and
// replays them during the process phase. The store is a single JSON file
// keyed by image file name; a missing or corrupt store reads as empty and
// never halts the pipeline. Writes are read-merge-write and assume a single
// pipeline instance per case directory.
package profilestore

import (
	"context"
	"encoding/json"
	"log"
	"path/filepath"
	"sort"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/casepipe/auditlog"
	"github.com/forensicanalysis/casepipe/imageident"
	"github.com/forensicanalysis/casepipe/memident"
)

// FileName is the profile store file below the case directory.
const FileName = "memory-profiles.json"

// MemoryExtractor performs the deferred artefact extraction for one
// identified memory image.
type MemoryExtractor interface {
	ExtractMemory(ctx context.Context, caseDir string, record memident.Record) error
}

func storePath(caseDir string) string {
	return filepath.Join(caseDir, FileName)
}

// Save writes one identification record into the per case store. A record
// for an image name that already exists is replaced; all other entries stay
// untouched. The final write goes through a temp file rename.
func Save(fs afero.Fs, caseDir string, record memident.Record) error {
	existing := Load(fs, caseDir)
	// the fresh record replaces its entry wholesale, so it must not take
	// part in the merge
	delete(existing, record.ImageName)

	merged := map[string]memident.Record{record.ImageName: record}
	if err := mergo.Merge(&merged, existing); err != nil {
		return errors.Wrap(err, "could not merge profile store")
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode profile store")
	}

	if err := fs.MkdirAll(caseDir, 0755); err != nil {
		return errors.Wrap(err, "could not create case directory")
	}

	temp := storePath(caseDir) + ".tmp"
	if err := afero.WriteFile(fs, temp, data, 0644); err != nil {
		return errors.Wrap(err, "could not write profile store")
	}
	return fs.Rename(temp, storePath(caseDir))
}

// Load reads all records of a case. A missing or unparseable store yields an
// empty mapping, never an error.
func Load(fs afero.Fs, caseDir string) map[string]memident.Record {
	records := map[string]memident.Record{}

	data, err := afero.ReadFile(fs, storePath(caseDir))
	if err != nil {
		return records
	}
	if !gjson.ValidBytes(data) {
		log.Printf("profile store in %s is corrupt, treating it as empty", caseDir)
		return records
	}
	if err := json.Unmarshal(data, &records); err != nil {
		log.Printf("profile store in %s is corrupt, treating it as empty", caseDir)
		return map[string]memident.Record{}
	}
	return records
}

// ProcessDeferred replays every stored record through the extractor. One
// record's failure is logged and audited but does not stop the remaining
// records. An empty store is a no-op without any ledger writes.
func ProcessDeferred(ctx context.Context, fs afero.Fs, caseDir string, ledger *auditlog.Ledger, extractor MemoryExtractor) error {
	records := Load(fs, caseDir)
	if len(records) == 0 {
		return nil
	}

	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		record := records[name]

		if record.Platform == imageident.Unknown {
			audit(ledger, name, "memory-process", "skipped, no profile selected")
			continue
		}

		if err := extractor.ExtractMemory(ctx, caseDir, record); err != nil {
			log.Printf("memory extraction failed for %s: %v", name, err)
			audit(ledger, name, "memory-process", "failed: "+err.Error())
			continue
		}
		audit(ledger, name, "memory-process", "completed")
	}
	return nil
}

func audit(ledger *auditlog.Ledger, image, stage, message string) {
	if ledger == nil {
		return
	}
	if err := ledger.Write(auditlog.Entry{Image: image, Stage: stage, Message: message}, message); err != nil {
		log.Printf("could not write audit entry for %s: %v", image, err)
	}
}
