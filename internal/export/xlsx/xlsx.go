// Package xlsx is the local-workbook export sink. Each session gets its own
// .xlsx file under the export directory; appends reopen and rewrite the file
// so a crash never loses previously flushed rows.
package xlsx

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/adityawiguna/jobscout-api/internal/export"
)

const sheetName = "Jobs"

type Sink struct {
	dir     string
	baseURL string
	logger  *slog.Logger

	mu sync.Mutex
}

// Option configures a Sink.
type Option func(*Sink)

// WithBaseURL sets the public URL prefix returned in sheet references.
// Without it the sheet URL is the local file path.
func WithBaseURL(u string) Option {
	return func(s *Sink) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(dir string, opts ...Option) *Sink {
	s := &Sink{dir: dir, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateSheet writes a fresh workbook with the header row. The returned ID
// is the workbook file name.
func (s *Sink) CreateSheet(ctx context.Context, cfg export.SheetConfig) (*export.SheetRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	for i, h := range export.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	_ = f.SetColWidth(sheetName, "B", "C", 32) // title, company
	_ = f.SetColWidth(sheetName, "D", "F", 20) // location, salary, posted
	_ = f.SetColWidth(sheetName, "I", "I", 18) // job link
	_ = f.SetColWidth(sheetName, "L", "L", 24) // insights

	id := fmt.Sprintf("jobs-%s.xlsx", cfg.SessionID)
	path := filepath.Join(s.dir, id)
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save workbook: %w", err)
	}

	url := path
	if s.baseURL != "" {
		url = s.baseURL + "/" + id
	}

	s.logger.Info("export workbook created",
		"session_id", cfg.SessionID,
		"user_id", cfg.UserID,
		"file", path,
	)
	return &export.SheetRef{ID: id, URL: url}, nil
}

// AppendRows adds rows after the last written row and rewrites the workbook.
func (s *Sink) AppendRows(ctx context.Context, sheetID string, rows []export.Row) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, sheetID)
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", sheetID, err)
	}
	defer f.Close()

	existing, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("read workbook %s: %w", sheetID, err)
	}

	next := len(existing) + 1
	for _, row := range rows {
		for col, cell := range row {
			name, _ := excelize.CoordinatesToCellName(col+1, next)
			if link, ok := cell.(export.Link); ok {
				if err := f.SetCellValue(sheetName, name, link.Text); err != nil {
					return fmt.Errorf("write cell %s: %w", name, err)
				}
				if err := f.SetCellHyperLink(sheetName, name, link.URL, "External"); err != nil {
					return fmt.Errorf("link cell %s: %w", name, err)
				}
				continue
			}
			if err := f.SetCellValue(sheetName, name, cell); err != nil {
				return fmt.Errorf("write cell %s: %w", name, err)
			}
		}
		next++
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("save workbook %s: %w", sheetID, err)
	}

	s.logger.Debug("export rows appended", "sheet_id", sheetID, "rows", len(rows))
	return nil
}
