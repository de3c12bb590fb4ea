package etl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/llm"
	"github.com/Mutsuki-Y/faq-llm-playground/internal/log"
)

// ErrIngestRunning indicates an ingestion batch is already in progress.
// The index has a single writer; concurrent runs are rejected rather
// than queued.
var ErrIngestRunning = errors.New("ingestion already running")

// Report summarizes one ingestion run.
type Report struct {
	Processed int      `json:"total_processed"`
	Errors    int      `json:"error_count"`
	Details   []string `json:"details,omitempty"`
}

// Pipeline orchestrates the full ingestion flow: read workbooks, filter
// published rows, caption images, embed everything and store it in the
// index.
type Pipeline struct {
	mu      sync.Mutex
	gateway llm.Client
	index   knowledge.Index
	images  *Images
	faqDir  string
	imgDir  string
	logger  log.Logger
}

// NewPipeline creates an ingestion pipeline.
// The gateway should already carry retry behavior (llm.WithRetry); the
// pipeline itself only counts failures.
func NewPipeline(gateway llm.Client, index knowledge.Index, faqDir, imgDir string, logger log.Logger) *Pipeline {
	return &Pipeline{
		gateway: gateway,
		index:   index,
		images:  NewImages(gateway),
		faqDir:  faqDir,
		imgDir:  imgDir,
		logger:  logger,
	}
}

// IngestAll runs one complete ingestion batch.
//
// Per-item failures (captioning, embedding, indexing) are counted in the
// report and never abort the batch. No workbooks at all is ErrNoInput; a
// missing or empty image directory is only a detail.
func (p *Pipeline) IngestAll(ctx context.Context) (*Report, error) {
	if !p.mu.TryLock() {
		return nil, ErrIngestRunning
	}
	defer p.mu.Unlock()

	report := &Report{}

	workbooks, err := p.listWorkbooks()
	if err != nil {
		return nil, err
	}
	if len(workbooks) == 0 {
		report.Details = append(report.Details, fmt.Sprintf("no .xlsx files found in %s", p.faqDir))
		return report, fmt.Errorf("%w: no .xlsx files in %s", ErrNoInput, p.faqDir)
	}

	for _, path := range workbooks {
		p.ingestWorkbook(ctx, path, report)
	}

	p.ingestImages(ctx, report)

	p.logger.Info("ingestion completed",
		"processed", report.Processed,
		"errors", report.Errors,
	)
	return report, nil
}

// IngestWorkbook ingests a single workbook, used after an upload so one
// new file does not force a full batch re-run.
func (p *Pipeline) IngestWorkbook(ctx context.Context, path string) (*Report, error) {
	if !p.mu.TryLock() {
		return nil, ErrIngestRunning
	}
	defer p.mu.Unlock()

	report := &Report{}
	p.ingestWorkbook(ctx, path, report)
	return report, nil
}

// IngestImages ingests only the image directory.
func (p *Pipeline) IngestImages(ctx context.Context) (*Report, error) {
	if !p.mu.TryLock() {
		return nil, ErrIngestRunning
	}
	defer p.mu.Unlock()

	report := &Report{}
	p.ingestImages(ctx, report)
	return report, nil
}

// listWorkbooks returns the .xlsx files under the FAQ directory, sorted.
// Excel lock files (~$ prefix) are skipped.
func (p *Pipeline) listWorkbooks() ([]string, error) {
	entries, err := os.ReadDir(p.faqDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading FAQ directory %s: %w", p.faqDir, err)
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "~$") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".xlsx") {
			paths = append(paths, filepath.Join(p.faqDir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ingestWorkbook processes one workbook: published rows become chunks,
// the chunks are embedded as one ordered batch and stored atomically.
func (p *Pipeline) ingestWorkbook(ctx context.Context, path string, report *Report) {
	records, err := Workbook(path)
	if err != nil {
		report.Errors++
		report.Details = append(report.Details, fmt.Sprintf("%s: %v", path, err))
		return
	}

	published := FilterPublished(records)
	p.logger.Debug("read workbook",
		"path", path,
		"rows", len(records),
		"published", len(published),
	)
	if len(published) == 0 {
		report.Details = append(report.Details, fmt.Sprintf("%s: no published rows", path))
		return
	}

	units := make([]knowledge.Unit, len(published))
	texts := make([]string, len(published))
	for i, record := range published {
		units[i] = RecordToChunk(record)
		texts[i] = units[i].Content
	}

	vectors, err := p.gateway.EmbedMany(ctx, texts)
	if err != nil {
		report.Errors += len(units)
		report.Details = append(report.Details, fmt.Sprintf("%s: embedding failed: %v", path, err))
		return
	}

	if err := p.index.Add(ctx, units, vectors); err != nil {
		report.Errors += len(units)
		report.Details = append(report.Details, fmt.Sprintf("%s: indexing failed: %v", path, err))
		return
	}

	report.Processed += len(units)
}

// ingestImages processes the optional image assets one by one so a single
// bad image never poisons the rest.
func (p *Pipeline) ingestImages(ctx context.Context, report *Report) {
	paths, err := p.images.List(p.imgDir)
	if err != nil {
		report.Errors++
		report.Details = append(report.Details, err.Error())
		return
	}
	if len(paths) == 0 {
		report.Details = append(report.Details, fmt.Sprintf("no images found in %s", p.imgDir))
		return
	}

	var units []knowledge.Unit
	var vectors [][]float32
	for _, path := range paths {
		unit, err := p.images.Process(ctx, path)
		if err != nil {
			report.Errors++
			report.Details = append(report.Details, err.Error())
			continue
		}

		vector, err := p.gateway.Embed(ctx, unit.Content)
		if err != nil {
			report.Errors++
			report.Details = append(report.Details, fmt.Sprintf("%s: embedding failed: %v", path, err))
			continue
		}

		units = append(units, unit)
		vectors = append(vectors, vector)
	}

	if len(units) == 0 {
		return
	}

	if err := p.index.Add(ctx, units, vectors); err != nil {
		report.Errors += len(units)
		report.Details = append(report.Details, fmt.Sprintf("indexing images failed: %v", err))
		return
	}

	report.Processed += len(units)
}
