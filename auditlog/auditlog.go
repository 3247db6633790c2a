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

// Package auditlog writes the append only audit ledger of a case. The ledger
// is the single durable record of every stage transition and error; rows are
// only ever appended, never rewritten.
package auditlog

import (
	"encoding/csv"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// FileName is the ledger file created below the case directory.
const FileName = "audit.csv"

// Header is the canonical first row of every ledger. The first write for a
// fresh case emits exactly this line.
var Header = []string{"datetime", "image", "stage", "message"}

// Entry is a single ledger row.
type Entry struct {
	Time    time.Time
	Image   string
	Stage   string
	Message string
}

// Ledger appends entries to the audit file of one case directory.
type Ledger struct {
	fs      afero.Fs
	caseDir string
}

// New creates a ledger for the given case directory. The audit file itself is
// created on the first write.
func New(fs afero.Fs, caseDir string) *Ledger {
	return &Ledger{fs: fs, caseDir: caseDir}
}

// Path returns the location of the audit file.
func (l *Ledger) Path() string {
	return filepath.Join(l.caseDir, FileName)
}

// Write appends one entry. If console is not empty a human readable line is
// emitted to the operator log as well; an empty console message suppresses
// the echo but still writes the ledger row.
func (l *Ledger) Write(entry Entry, console string) error {
	if err := l.fs.MkdirAll(l.caseDir, 0755); err != nil {
		return errors.Wrap(err, "could not create case directory")
	}

	file, err := l.fs.OpenFile(l.Path(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrap(err, "could not open audit file")
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errors.Wrap(err, "could not stat audit file")
	}

	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(Header); err != nil {
			return errors.Wrap(err, "could not write audit header")
		}
	}

	when := entry.Time
	if when.IsZero() {
		when = time.Now()
	}

	row := []string{
		when.UTC().Format("2006-01-02 15:04:05"),
		sanitize(entry.Image),
		sanitize(entry.Stage),
		sanitize(entry.Message),
	}
	if err := writer.Write(row); err != nil {
		return errors.Wrap(err, "could not write audit row")
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "could not flush audit row")
	}

	if console != "" {
		log.Print(console)
	}
	return nil
}

// sanitize strips single quotes from free text fields. This is lossy but
// keeps the rows safe for downstream CSV consumers that quote with them.
func sanitize(field string) string {
	return strings.ReplaceAll(field, "'", "")
}
