package grid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidRef is wrapped by every address parse failure.
var ErrInvalidRef = errors.New("invalid cell reference")

// Range is a rectangular block of cells using 1-based coordinates.
type Range struct {
	StartCol, StartRow int
	EndCol, EndRow     int
}

// NormalizeRef strips the "@" mention prefix, any "Sheet!" qualifier and
// absolute-reference markers, and upper-cases what remains.
func NormalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "@")
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		ref = ref[i+1:]
	}
	ref = strings.ReplaceAll(ref, "$", "")
	ref = strings.ReplaceAll(ref, " ", "")
	return strings.ToUpper(ref)
}

// ParseCell parses a single cell address into column and row.
func ParseCell(ref string) (col, row int, err error) {
	norm := NormalizeRef(ref)
	if norm == "" || strings.Contains(norm, ":") {
		return 0, 0, fmt.Errorf("%w: %q is not a single cell", ErrInvalidRef, ref)
	}
	col, row, err = excelize.CellNameToCoordinates(norm)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", ErrInvalidRef, ref, err)
	}
	return col, row, nil
}

// ParseRange parses "A1:B5" or a single cell "A1" into a Range. Reversed
// corners are swapped.
func ParseRange(ref string) (Range, error) {
	norm := NormalizeRef(ref)
	if norm == "" {
		return Range{}, fmt.Errorf("%w: empty range", ErrInvalidRef)
	}
	parts := strings.Split(norm, ":")
	if len(parts) > 2 {
		return Range{}, fmt.Errorf("%w: range %q", ErrInvalidRef, ref)
	}
	c1, r1, err := excelize.CellNameToCoordinates(parts[0])
	if err != nil {
		return Range{}, fmt.Errorf("%w: range %q: %v", ErrInvalidRef, ref, err)
	}
	c2, r2 := c1, r1
	if len(parts) == 2 {
		if c2, r2, err = excelize.CellNameToCoordinates(parts[1]); err != nil {
			return Range{}, fmt.Errorf("%w: range %q: %v", ErrInvalidRef, ref, err)
		}
	}
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	return Range{StartCol: c1, StartRow: r1, EndCol: c2, EndRow: r2}, nil
}

// Rows returns the number of rows covered.
func (r Range) Rows() int { return r.EndRow - r.StartRow + 1 }

// Cols returns the number of columns covered.
func (r Range) Cols() int { return r.EndCol - r.StartCol + 1 }

func (r Range) String() string {
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow)
	if r.StartCol == r.EndCol && r.StartRow == r.EndRow {
		return start
	}
	end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow)
	return start + ":" + end
}

// CellName formats 1-based coordinates as an "A1" address.
func CellName(col, row int) (string, error) {
	return excelize.CoordinatesToCellName(col, row)
}
