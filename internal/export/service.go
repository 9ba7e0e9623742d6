// Package export renders filtered entity listings as downloadable XLSX
// or CSV files. Exports run through the same compilation pipeline as the
// list API, so tenant scoping, filter grammar and field allow-lists apply
// identically; the cache is bypassed for freshness.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/opsgrid/backoffice/internal/query"
)

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

type Service struct {
	engine   *query.Engine
	pageSize int
	maxRows  int
	now      func() time.Time
}

type Option func(*Service)

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithMaxRows caps the number of rows a single export may emit.
func WithMaxRows(max int) Option {
	return func(s *Service) {
		if max > 0 {
			s.maxRows = max
		}
	}
}

func NewService(engine *query.Engine, opts ...Option) *Service {
	s := &Service{
		engine:   engine,
		pageSize: 500,
		maxRows:  100_000,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export streams all rows matching the request to w in the given format.
// The request's page and limit parameters are ignored; the service pages
// through the full result set itself.
func (s *Service) Export(ctx context.Context, req query.Request, format string, w io.Writer) (int, error) {
	rows, err := s.collect(ctx, req)
	if err != nil {
		return 0, err
	}

	columns := s.columns(req.Config, req.Params, rows)
	switch format {
	case FormatCSV:
		return len(rows), writeCSV(w, columns, rows)
	case FormatXLSX, "":
		return len(rows), writeXLSX(w, req.Entity, columns, rows)
	default:
		return 0, fmt.Errorf("unsupported export format %q", format)
	}
}

// Filename suggests a download name like invoices_20260828_143000.xlsx.
func (s *Service) Filename(entity, format string) string {
	if format == "" {
		format = FormatXLSX
	}
	return fmt.Sprintf("%s_%s.%s", entity, s.now().UTC().Format("20060102_150405"), format)
}

func (s *Service) collect(ctx context.Context, req query.Request) ([]map[string]any, error) {
	params := make(map[string][]string, len(req.Params))
	for k, v := range req.Params {
		params[k] = v
	}
	delete(params, "page")
	delete(params, "cursor")
	params["limit"] = []string{strconv.Itoa(s.pageSize)}

	var rows []map[string]any
	for page := 1; ; page++ {
		params["page"] = []string{strconv.Itoa(page)}

		pageReq := req
		pageReq.Params = params
		pageReq.BypassCache = true

		result, err := s.engine.Execute(ctx, pageReq)
		if err != nil {
			return nil, err
		}
		rows = append(rows, result.Data...)
		if len(rows) > s.maxRows {
			return nil, fmt.Errorf("export exceeds %d rows, narrow the filter", s.maxRows)
		}
		if result.Pagination == nil || !result.Pagination.HasNext {
			return rows, nil
		}
	}
}

// columns picks the export header order: id first, then the requested or
// allowed fields, then record timestamps. Fields never present in any
// row are dropped so sparse schemas don't emit empty columns.
func (s *Service) columns(cfg query.EntityConfig, params map[string][]string, rows []map[string]any) []string {
	var candidates []string
	if spec, ok := params["fields"]; ok && len(spec) > 0 && spec[0] != "" {
		candidates = strings.Split(spec[0], ",")
	} else {
		candidates = append(candidates, cfg.AllowedFields...)
		sort.Strings(candidates)
	}

	present := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			present[k] = true
		}
	}

	columns := []string{"id"}
	seen := map[string]bool{"id": true}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] || !present[c] {
			continue
		}
		seen[c] = true
		columns = append(columns, c)
	}
	for _, ts := range []string{"created_at", "updated_at"} {
		if present[ts] && !seen[ts] {
			columns = append(columns, ts)
		}
	}
	return columns
}

func writeXLSX(w io.Writer, sheet string, columns []string, rows []map[string]any) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const defaultSheet = "Sheet1"
	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		cells := make([]any, len(columns))
		for j, col := range columns {
			cells[j] = cellValue(row[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, columns []string, rows []map[string]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for j, col := range columns {
			record[j] = fmt.Sprint(cellValue(row[col]))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// cellValue flattens nested structures (expanded relations) into a
// printable form; scalars pass through.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case map[string]any:
		if id, ok := t["id"]; ok {
			return fmt.Sprint(id)
		}
		return fmt.Sprint(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, ", ")
	default:
		return v
	}
}
