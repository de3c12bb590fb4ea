// Package etl turns FAQ source material (Excel workbooks, image assets)
// into knowledge units ready for embedding and indexing.
package etl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/Mutsuki-Y/faq-llm-playground/internal/knowledge"
)

// StatusPublished marks rows approved for publication. Only published
// rows become knowledge units.
const StatusPublished = "公開"

var (
	// ErrNoInput indicates an ingestion run with no source files at all.
	ErrNoInput = errors.New("no input files")

	// ErrEmptyCaption indicates a vision model returned a blank caption.
	ErrEmptyCaption = errors.New("empty image caption")
)

// SourceRecord is one row read from an FAQ workbook, before any
// publication filtering. Records are immutable once produced.
type SourceRecord struct {
	Ordinal        int
	Status         string
	ParentCategory string
	ChildCategory  string
	Title          string
	Body           string
	OriginFile     string
	OriginSheet    string
	RowIndex       int
}

// Workbook reads every sheet of an .xlsx file into source records.
//
// Row 1 is the header. Data rows map columns A..F to ordinal, status,
// parent category, child category, title and body. Rows whose ordinal
// cell is empty are skipped; a non-numeric ordinal falls back to the
// data-row position (sheet row minus the header).
func Workbook(path string) ([]SourceRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	var records []SourceRecord
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
		}

		for i, row := range rows {
			if i == 0 {
				continue // header row
			}

			cell := func(col int) string {
				if col < len(row) {
					return strings.TrimSpace(row[col])
				}
				return ""
			}

			if cell(0) == "" {
				continue
			}

			ordinal, err := strconv.Atoi(cell(0))
			if err != nil {
				ordinal = i
			}

			title, body := cell(4), cell(5)
			if title == "" && body == "" {
				continue
			}

			records = append(records, SourceRecord{
				Ordinal:        ordinal,
				Status:         cell(1),
				ParentCategory: cell(2),
				ChildCategory:  cell(3),
				Title:          title,
				Body:           body,
				OriginFile:     path,
				OriginSheet:    sheet,
				RowIndex:       i + 1,
			})
		}
	}

	return records, nil
}

// FilterPublished keeps only records whose status is StatusPublished.
// Order is preserved.
func FilterPublished(records []SourceRecord) []SourceRecord {
	published := make([]SourceRecord, 0, len(records))
	for _, r := range records {
		if r.Status == StatusPublished {
			published = append(published, r)
		}
	}
	return published
}

// RecordToChunk converts a source record into a text knowledge unit.
// Content joins title and body with a newline; the record's provenance
// lands in the unit metadata verbatim.
func RecordToChunk(r SourceRecord) knowledge.Unit {
	return knowledge.Unit{
		ID:      uuid.New(),
		Kind:    knowledge.KindText,
		Content: r.Title + "\n" + r.Body,
		Metadata: map[string]string{
			knowledge.MetaOriginFile:     r.OriginFile,
			knowledge.MetaOriginSheet:    r.OriginSheet,
			knowledge.MetaRowIndex:       strconv.Itoa(r.RowIndex),
			knowledge.MetaParentCategory: r.ParentCategory,
			knowledge.MetaChildCategory:  r.ChildCategory,
			knowledge.MetaTitle:          r.Title,
		},
		CreatedAt: time.Now(),
	}
}
