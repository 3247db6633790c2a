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
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forensicanalysis/fsdoublestar"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/casepipe/auditlog"
	"github.com/forensicanalysis/casepipe/imageident"
	"github.com/forensicanalysis/casepipe/memident"
	"github.com/forensicanalysis/casepipe/profilestore"
	"github.com/forensicanalysis/casepipe/resultstore"
	"github.com/forensicanalysis/casepipe/timeline"
)

// Pipeline is the phase state machine of one case run. It sequences
// collection, processing, keyword search, analysis and timeline
// construction; collaborator failures are caught at image granularity and
// never abort the case.
type Pipeline struct {
	opts   Options
	fs     afero.Fs
	ledger *auditlog.Ledger
	result Result

	store       *resultstore.Store
	storeFailed bool
}

// New creates a Pipeline. All per run state lives on the returned value, so
// multiple pipelines can coexist in one process.
func New(opts Options) *Pipeline {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	return &Pipeline{
		opts:   opts,
		fs:     opts.Fs,
		ledger: auditlog.New(opts.Fs, opts.CaseDir),
	}
}

// RunPipeline runs a whole pipeline in one call.
func RunPipeline(ctx context.Context, images map[string]ImageDescriptor, phase PhaseSelector, opts Options) Result {
	return New(opts).Run(ctx, images, phase)
}

// Run executes the requested phase, or the full pipeline stage by stage
// when the phase is unspecified. It never returns an error: everything that
// goes wrong is logged, audited and survived.
func (p *Pipeline) Run(ctx context.Context, images map[string]ImageDescriptor, phase PhaseSelector) Result {
	defer p.closeResults()

	switch phase {
	case PhaseCollect:
		p.collect(ctx, images)
		return p.result
	case PhaseProcess:
		p.process(ctx, images)
		return p.result
	case PhaseAnalyse:
		// neither collection nor processing, straight to the analysis stages
	default:
		if p.opts.Collection {
			p.collect(ctx, images)
		}
		if p.opts.Processing {
			p.process(ctx, images)
		}
	}

	if p.opts.KeywordFile != "" {
		if !p.keywordSearch(ctx, images) {
			return p.result
		}
	}
	if p.opts.Analysis {
		p.analyse(ctx, images)
	}
	if p.opts.Timeline {
		p.timelines(ctx, images)
	}
	return p.result
}

/* ################################
#   Collect
################################ */

func (p *Pipeline) collect(ctx context.Context, images map[string]ImageDescriptor) {
	p.audit("", "collect", "collection started")

	for _, mount := range sortedKeys(images) {
		image := images[mount]

		if image.Kind == KindMemory {
			p.identifyMemory(ctx, image, mount)
			continue
		}

		platform := imageident.Classify(p.fs, mount)
		if platform != imageident.Unknown {
			image.Platform = platform
			images[mount] = image
			p.audit(image.Name, "identify", "classified as "+string(platform))
		}

		if p.opts.Collector != nil {
			if err := p.opts.Collector.Collect(ctx, p.opts.CaseDir, image, mount); err != nil {
				log.Printf("collection failed for %s: %v", image.Label(), err)
				p.audit(image.Name, "collect", "failed: "+err.Error())
				continue
			}
		}
		p.audit(image.Name, "collect", "collection finished")
	}

	p.removeEmptyImageDirs(images)
	p.flag("collection-complete")
	p.audit("", "collect", "collection finished")
}

// identifyMemory runs the memory identification state machine and persists
// the result for the deferred processor. Extraction happens later, in the
// process phase.
func (p *Pipeline) identifyMemory(ctx context.Context, image ImageDescriptor, sourcePath string) {
	identifier := memident.New(memident.Config{
		Fs:             p.fs,
		Runner:         p.opts.Runner,
		Ledger:         p.ledger,
		SymbolRoot:     p.opts.SymbolRoot,
		SymbolArchives: p.opts.SymbolArchives,
		ProfileDirs:    p.opts.ProfileDirs,
		Input:          p.opts.Input,
	})

	snapshot := memident.SnapshotFlags{}
	if image.SnapshotIndex != NoSnapshot {
		snapshot.IsVSS = true
		snapshot.VSSLabel = fmt.Sprintf("vss%d", image.SnapshotIndex)
	}

	record := identifier.Identify(ctx, memident.Request{
		ImageName:  image.Name,
		SourcePath: sourcePath,
		Snapshot:   snapshot,
	})

	if err := profilestore.Save(p.fs, p.opts.CaseDir, record); err != nil {
		log.Printf("could not save memory profile for %s: %v", image.Label(), err)
		p.audit(image.Name, "identify", "failed to save profile: "+err.Error())
	}
}

// removeEmptyImageDirs drops per image output directories that a partial or
// aborted collection left empty.
func (p *Pipeline) removeEmptyImageDirs(images map[string]ImageDescriptor) {
	for _, image := range images {
		dir := filepath.Join(p.opts.CaseDir, image.Name)
		entries, err := afero.ReadDir(p.fs, dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := p.fs.Remove(dir); err != nil {
			log.Printf("could not remove empty directory %s: %v", dir, err)
		}
	}
}

/* ################################
#   Process
################################ */

func (p *Pipeline) process(ctx context.Context, images map[string]ImageDescriptor) {
	p.audit("", "process", "processing started")

	for _, mount := range sortedKeys(images) {
		image := images[mount]
		if image.Kind == KindMemory {
			continue
		}

		if p.opts.Extractor != nil {
			if err := p.opts.Extractor.Extract(ctx, p.opts.CaseDir, image, mount); err != nil {
				log.Printf("processing failed for %s: %v", image.Label(), err)
				p.audit(image.Name, "process", "failed: "+err.Error())
				continue
			}
		}
		p.audit(image.Name, "process", "processing finished")
	}

	if p.opts.MemoryExtractor != nil {
		err := profilestore.ProcessDeferred(ctx, p.fs, p.opts.CaseDir, p.ledger, p.opts.MemoryExtractor)
		if err != nil {
			log.Printf("deferred memory processing failed: %v", err)
		}
	}

	p.flag("processing-complete")
	p.audit("", "process", "processing finished")
}

/* ################################
#   Keyword search
################################ */

// keywordSearch scans all collected artefacts for the configured keywords.
// A missing keyword source is offered as "continue anyway", which is also
// the non-interactive default; only an explicit "no" ends the run.
func (p *Pipeline) keywordSearch(ctx context.Context, images map[string]ImageDescriptor) bool {
	exists, err := afero.Exists(p.fs, p.opts.KeywordFile)
	if err != nil || !exists {
		if !p.confirmMissingKeywords() {
			p.audit("", "keyword-search", "run stopped, keyword file missing")
			return false
		}
		p.audit("", "keyword-search", "skipped, keyword file missing")
		return true
	}

	keywords, err := p.readKeywords()
	if err != nil {
		log.Printf("could not read keyword file: %v", err)
		return true
	}

	p.audit("", "keyword-search", "keyword search started")
	for _, mount := range sortedKeys(images) {
		image := images[mount]
		hits := p.searchImage(image, keywords)
		p.audit(image.Name, "keyword-search", fmt.Sprintf("%d keyword hits", hits))
	}
	p.audit("", "keyword-search", "keyword search finished")
	return true
}

func (p *Pipeline) confirmMissingKeywords() bool {
	if p.opts.Input == nil {
		log.Printf("keyword file %s does not exist, continuing without keyword search", p.opts.KeywordFile)
		return true
	}
	answer, err := p.opts.Input(fmt.Sprintf(
		"Keyword file %s does not exist. Continue without keyword search? [Y/n] ", p.opts.KeywordFile))
	if err != nil {
		return true
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer != "n" && answer != "no"
}

func (p *Pipeline) readKeywords() ([]string, error) {
	data, err := afero.ReadFile(p.fs, p.opts.KeywordFile)
	if err != nil {
		return nil, err
	}

	var keywords []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	return keywords, nil
}

// maxSearchSize caps how much of a single artefact is scanned.
const maxSearchSize = 16 * 1024 * 1024

func (p *Pipeline) searchImage(image ImageDescriptor, keywords []string) int {
	artefacts := p.artefactFiles(image)
	hits := 0

	for _, artefact := range artefacts {
		info, err := p.fs.Stat(artefact)
		if err != nil || info.IsDir() || info.Size() > maxSearchSize {
			continue
		}
		data, err := afero.ReadFile(p.fs, artefact)
		if err != nil {
			log.Printf("could not read artefact %s: %v", artefact, err)
			continue
		}

		content := strings.ToLower(string(data))
		for _, keyword := range keywords {
			if !strings.Contains(content, strings.ToLower(keyword)) {
				continue
			}
			hits++
			if store := p.results(); store != nil {
				hit := resultstore.NewKeywordHit()
				hit.Keyword = keyword
				hit.Image = image.Name
				hit.Artifact = artefact
				if _, err := store.InsertStruct(hit); err != nil {
					log.Printf("could not record keyword hit: %v", err)
				}
			}
		}
	}
	return hits
}

/* ################################
#   Analyse
################################ */

func (p *Pipeline) analyse(ctx context.Context, images map[string]ImageDescriptor) {
	p.audit("", "analysis", "analysis started")
	var failures []ErrorRecord

	for _, mount := range sortedKeys(images) {
		image := images[mount]

		if err := p.analyseImage(ctx, image); err != nil {
			record := ErrorRecord{Image: image.Label(), Message: err.Error()}
			log.Printf("analysis failed for %s: %s", record.Image, record.Message)
			p.audit(image.Name, "analysis", "failed: "+record.Message)
			failures = append(failures, record)
			continue
		}
		p.audit(image.Name, "analysis", "analysis finished")
	}

	if len(failures) > 0 {
		log.Printf("analysis finished with %d error(s):", len(failures))
		for _, failure := range failures {
			log.Printf("  %s: %s", failure.Image, failure.Message)
		}
	}
	p.result.Errors = append(p.result.Errors, failures...)

	p.flag("analysis-complete")
	p.audit("", "analysis", "analysis finished")
}

// analyseImage is the per image failure boundary: errors and panics of the
// analyzer are converted into an ErrorRecord and do not stop the pass.
func (p *Pipeline) analyseImage(ctx context.Context, image ImageDescriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("analysis panicked: %v", r)
		}
	}()

	if p.opts.Analyzer != nil {
		return p.opts.Analyzer.Analyze(ctx, p.opts.CaseDir, image)
	}
	return p.inventoryArtefacts(image)
}

// inventoryArtefacts is the default analysis: it records every collected
// artefact file of the image as a file element in the result store.
func (p *Pipeline) inventoryArtefacts(image ImageDescriptor) error {
	artefactDir := filepath.Join(p.opts.CaseDir, image.Name, "artefacts")
	exists, err := afero.DirExists(p.fs, artefactDir)
	if err != nil {
		return err
	}
	if !exists {
		log.Printf("no artefacts collected for %s, skipping", image.Label())
		return nil
	}

	store := p.results()
	return afero.Walk(p.fs, artefactDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || store == nil {
			return nil
		}

		element := resultstore.NewFile()
		element.Name = info.Name()
		element.Artifact = image.Name
		element.Size = float64(info.Size())
		element.Mtime = info.ModTime().UTC().Format("2006-01-02T15:04:05.000Z")
		element.ExportPath = filepath.ToSlash(path)

		_, err = store.InsertStruct(element)
		return err
	})
}

/* ################################
#   Timeline
################################ */

// timelines builds one timeline per disk image. Memory images are excluded;
// a valid existing timeline file is reused instead of rebuilt.
func (p *Pipeline) timelines(ctx context.Context, images map[string]ImageDescriptor) {
	p.audit("", "timeline", "timeline construction started")

	for _, mount := range sortedKeys(images) {
		image := images[mount]
		if image.Kind == KindMemory {
			continue
		}

		outPath := filepath.Join(p.opts.CaseDir, image.Name, timeline.FileName)
		if err := timeline.Validate(p.fs, outPath); err == nil {
			p.audit(image.Name, "timeline", "existing timeline reused")
			continue
		}

		if p.opts.TimelineBuilder == nil {
			log.Printf("no timeline builder configured, skipping %s", image.Label())
			continue
		}
		if err := p.opts.TimelineBuilder.Build(ctx, mount, outPath); err != nil {
			log.Printf("timeline construction failed for %s: %v", image.Label(), err)
			p.audit(image.Name, "timeline", "failed: "+err.Error())
			continue
		}
		p.audit(image.Name, "timeline", "timeline completed")
	}

	p.flag("timeline-complete")
	p.audit("", "timeline", "timeline construction finished")
}

/* ################################
#   Intern
################################ */

func (p *Pipeline) artefactFiles(image ImageDescriptor) []string {
	pattern := filepath.ToSlash(filepath.Join(p.opts.CaseDir, image.Name, "artefacts", "**", "*"))
	matches, err := fsdoublestar.Glob(afero.NewIOFS(p.fs), pattern)
	if err != nil {
		log.Printf("could not glob artefacts for %s: %v", image.Label(), err)
		return nil
	}
	sort.Strings(matches)
	return matches
}

// results lazily opens the result store. A failed open is logged once and
// the run continues without recorded elements.
func (p *Pipeline) results() *resultstore.Store {
	if p.opts.ResultStoreURL == "" || p.storeFailed {
		return nil
	}
	if p.store == nil {
		store, err := resultstore.OpenOrCreate(p.opts.ResultStoreURL)
		if err != nil {
			log.Printf("could not open result store: %v", err)
			p.storeFailed = true
			return nil
		}
		p.store = store
	}
	return p.store
}

func (p *Pipeline) closeResults() {
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			log.Printf("could not close result store: %v", err)
		}
		p.store = nil
	}
}

func (p *Pipeline) flag(name string) {
	p.result.Flags = append(p.result.Flags, name)
}

func (p *Pipeline) audit(image, stage, message string) {
	entry := auditlog.Entry{Image: image, Stage: stage, Message: message}
	if err := p.ledger.Write(entry, message); err != nil {
		log.Printf("could not write audit entry: %v", err)
	}
}

func sortedKeys(images map[string]ImageDescriptor) []string {
	keys := make([]string, 0, len(images))
	for key := range images {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
