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

package profilestore

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/casepipe/auditlog"
	"github.com/forensicanalysis/casepipe/imageident"
	"github.com/forensicanalysis/casepipe/memident"
)

type spyExtractor struct {
	extracted []string
	failOn    string
}

func (e *spyExtractor) ExtractMemory(ctx context.Context, caseDir string, record memident.Record) error {
	if record.ImageName == e.failOn {
		return errors.New("forced failure")
	}
	e.extracted = append(e.extracted, record.ImageName)
	return nil
}

func linuxRecord(name string) memident.Record {
	return memident.Record{
		ImageName:  name,
		Profile:    "Ubuntu_5.4.0",
		Platform:   imageident.Linux,
		SourcePath: "/images/" + name,
		MountPoint: "/mnt/" + name,
		Snapshot:   memident.SnapshotFlags{MemoryTimeline: true},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	record := linuxRecord("mem.raw")

	require.NoError(t, Save(fs, "/case", record))

	records := Load(fs, "/case")
	require.Len(t, records, 1)
	assert.Equal(t, record, records["mem.raw"])
}

func TestSaveKeepsOtherEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	first := linuxRecord("one.raw")
	second := linuxRecord("two.raw")

	require.NoError(t, Save(fs, "/case", first))
	require.NoError(t, Save(fs, "/case", second))

	records := Load(fs, "/case")
	require.Len(t, records, 2)
	assert.Equal(t, first, records["one.raw"])
	assert.Equal(t, second, records["two.raw"])
}

func TestSaveOverwritesEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, Save(fs, "/case", linuxRecord("mem.raw")))

	replacement := memident.Record{ImageName: "mem.raw", Platform: imageident.Windows}
	require.NoError(t, Save(fs, "/case", replacement))

	records := Load(fs, "/case")
	require.Len(t, records, 1)
	assert.Equal(t, replacement, records["mem.raw"])
	// the old profile must not leak into the replaced entry
	assert.Empty(t, records["mem.raw"].Profile)
}

func TestLoadMissingStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	records := Load(fs, "/case")
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestLoadCorruptStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/case/"+FileName, []byte("{broken"), 0644))

	records := Load(fs, "/case")
	assert.Empty(t, records)
}

func TestLoadWrongShapeStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/case/"+FileName, []byte(`[1, 2, 3]`), 0644))

	records := Load(fs, "/case")
	assert.Empty(t, records)
}

func TestProcessDeferredEmptyStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	ledger := auditlog.New(fs, "/case")
	extractor := &spyExtractor{}

	err := ProcessDeferred(context.Background(), fs, "/case", ledger, extractor)
	require.NoError(t, err)
	assert.Empty(t, extractor.extracted)

	exists, err := afero.Exists(fs, ledger.Path())
	require.NoError(t, err)
	assert.False(t, exists, "an empty store must not produce audit writes")
}

func TestProcessDeferredFailureBoundary(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, Save(fs, "/case", linuxRecord("a.raw")))
	require.NoError(t, Save(fs, "/case", linuxRecord("b.raw")))
	require.NoError(t, Save(fs, "/case", linuxRecord("c.raw")))

	extractor := &spyExtractor{failOn: "b.raw"}
	err := ProcessDeferred(context.Background(), fs, "/case", auditlog.New(fs, "/case"), extractor)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.raw", "c.raw"}, extractor.extracted)
}

func TestProcessDeferredSkipsUnidentified(t *testing.T) {
	fs := afero.NewMemMapFs()
	skippedRecord := memident.Record{ImageName: "mem.raw", Platform: imageident.Unknown}
	require.NoError(t, Save(fs, "/case", skippedRecord))

	extractor := &spyExtractor{}
	err := ProcessDeferred(context.Background(), fs, "/case", auditlog.New(fs, "/case"), extractor)
	require.NoError(t, err)
	assert.Empty(t, extractor.extracted)
}
