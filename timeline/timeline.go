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

// Package timeline validates and names the per image timeline files of a
// case. Timeline construction itself is delegated to an external builder.
package timeline

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// FileName is the timeline file below each image directory.
const FileName = "timeline.csv"

// Columns is the expected l2t csv header of a timeline file.
var Columns = []string{
	"date", "time", "timezone", "MACB", "source", "sourcetype", "type",
	"user", "host", "short", "desc", "version", "filename", "inode",
	"notes", "format", "extra",
}

// Builder constructs a timeline for one mounted image. Timeout policy
// belongs to the builder.
type Builder interface {
	Build(ctx context.Context, mountPoint, outPath string) error
}

var (
	ErrEmpty       = errors.New("timeline file is empty")
	ErrWrongSchema = errors.New("timeline file has an unexpected column schema")
)

// Validate checks that an existing timeline file is usable: it must be
// non-empty and start with the expected column header.
func Validate(fs afero.Fs, path string) error {
	file, err := fs.Open(path)
	if err != nil {
		return errors.Wrap(err, "could not open timeline file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return ErrEmpty
	}
	if err != nil {
		return errors.Wrap(err, "could not read timeline header")
	}

	if len(header) != len(Columns) {
		return ErrWrongSchema
	}
	for i, column := range Columns {
		if header[i] != column {
			return ErrWrongSchema
		}
	}
	return nil
}
