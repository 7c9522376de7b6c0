// Package grid reads and writes the first sheet of a single xlsx workbook.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

// CellUpdate is one entry of a bulk write.
type CellUpdate struct {
	Cell  string `json:"cell"`
	Value any    `json:"value"`
}

// Store owns the workbook file. Every call re-opens the file; writes are
// read-modify-write and serialized within the process.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the workbook at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the workbook location.
func (s *Store) Path() string { return s.path }

// Read returns the cell values of ref, or of the whole used area when ref is
// empty. Numbers decode as float64, booleans as bool, empty cells as nil.
// Trailing empty cells and rows are trimmed, and ref is clipped to the used
// area before any cell is visited.
func (s *Store) Read(ref string) ([][]any, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := firstSheet(f)
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	rng := Range{StartCol: 1, StartRow: 1, EndCol: widest(raw), EndRow: len(raw)}
	if strings.TrimSpace(ref) != "" {
		if rng, err = ParseRange(ref); err != nil {
			return nil, err
		}
	}
	rng.EndRow = min(rng.EndRow, len(raw))
	rng.EndCol = min(rng.EndCol, widest(raw))
	if rng.EndRow < rng.StartRow || rng.EndCol < rng.StartCol {
		return [][]any{}, nil
	}

	out := make([][]any, 0, rng.Rows())
	for r := rng.StartRow; r <= rng.EndRow; r++ {
		row := make([]any, 0, rng.Cols())
		for c := rng.StartCol; c <= rng.EndCol; c++ {
			row = append(row, s.cellValue(f, sheet, raw, c, r))
		}
		out = append(out, trimRow(row))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (s *Store) cellValue(f *excelize.File, sheet string, raw [][]string, col, row int) any {
	if row > len(raw) || col > len(raw[row-1]) {
		return nil
	}
	v := raw[row-1][col-1]
	if v == "" {
		return nil
	}
	name, _ := excelize.CoordinatesToCellName(col, row)
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return v
	}
	switch typ {
	case excelize.CellTypeBool:
		return v == "1" || strings.EqualFold(v, "true")
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return v
}

// WriteCell sets one cell. Writing outside the used area extends it.
func (s *Store) WriteCell(ref string, value any) error {
	return s.WriteCells([]CellUpdate{{Cell: ref, Value: value}})
}

// WriteRange writes a 2-D block anchored at the top-left of ref. When ref
// names both corners the block must fit inside it.
func (s *Store) WriteRange(ref string, values [][]any) error {
	rng, err := ParseRange(ref)
	if err != nil {
		return err
	}
	explicit := strings.Contains(NormalizeRef(ref), ":")
	if explicit && len(values) > rng.Rows() {
		return fmt.Errorf("range %s holds %d rows, got %d", rng, rng.Rows(), len(values))
	}
	var updates []CellUpdate
	for i, row := range values {
		if explicit && len(row) > rng.Cols() {
			return fmt.Errorf("range %s holds %d columns, got %d in row %d", rng, rng.Cols(), len(row), i+1)
		}
		for j, v := range row {
			name, err := CellName(rng.StartCol+j, rng.StartRow+i)
			if err != nil {
				return err
			}
			updates = append(updates, CellUpdate{Cell: name, Value: v})
		}
	}
	return s.WriteCells(updates)
}

// WriteCells applies every update in one open/save cycle. Nothing is saved
// if any address is invalid.
func (s *Store) WriteCells(updates []CellUpdate) error {
	if len(updates) == 0 {
		return fmt.Errorf("no cells to write")
	}
	names := make([]string, len(updates))
	for i, u := range updates {
		col, row, err := ParseCell(u.Cell)
		if err != nil {
			return err
		}
		names[i], _ = excelize.CoordinatesToCellName(col, row)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := firstSheet(f)
	for i, u := range updates {
		if err := f.SetCellValue(sheet, names[i], cellInput(u.Value)); err != nil {
			return fmt.Errorf("set %s: %w", names[i], err)
		}
	}
	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	slog.Debug("Workbook updated", "path", s.path, "cells", len(updates))
	return nil
}

// SeedRows is the sample data written by Seed.
var SeedRows = [][]any{
	{"Email", "Name", "Amount", "Status"},
	{"alice@example.com", "Alice", 120, "Paid"},
	{"bob@example.com", "Bob", 80, "Pending"},
	{"charlie@example.com", "Charlie", 200, "Paid"},
	{"dave@example.com", "Dave", 50, "Failed"},
}

// Seed creates the workbook with SeedRows. An existing file is left alone
// unless force is set.
func (s *Store) Seed(force bool) error {
	if _, err := os.Stat(s.path); err == nil && !force {
		return nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat workbook: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range SeedRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("seed row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func firstSheet(f *excelize.File) string {
	if list := f.GetSheetList(); len(list) > 0 {
		return list[0]
	}
	return f.GetSheetName(0)
}

// cellInput converts decoded JSON values into types excelize stores natively.
func cellInput(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case string, bool, float64, float32, int, int64, int32:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func widest(rows [][]string) int {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

func trimRow(row []any) []any {
	for len(row) > 0 && row[len(row)-1] == nil {
		row = row[:len(row)-1]
	}
	return row
}
