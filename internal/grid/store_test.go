package grid

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "data", "example.xlsx"))
	if err := s.Seed(false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

func TestReadWholeSheet(t *testing.T) {
	s := newTestStore(t)

	rows, err := s.Read("")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	if rows[0][0] != "Email" {
		t.Errorf("expected header Email, got %v", rows[0][0])
	}
	if rows[1][2] != float64(120) {
		t.Errorf("expected numeric 120, got %#v", rows[1][2])
	}
}

func TestReadRangeWithPrefixes(t *testing.T) {
	s := newTestStore(t)

	for _, ref := range []string{"B2:C3", "@Sheet1!B2:C3", "sheet1!$b$2:$c$3", "C3:B2"} {
		rows, err := s.Read(ref)
		if err != nil {
			t.Fatalf("read %q: %v", ref, err)
		}
		want := [][]any{{"Alice", float64(120)}, {"Bob", float64(80)}}
		if !reflect.DeepEqual(rows, want) {
			t.Errorf("read %q: expected %v, got %v", ref, want, rows)
		}
	}
}

func TestWriteCellExtendsGrid(t *testing.T) {
	s := newTestStore(t)

	if err := s.WriteCell("A1", "Test"); err != nil {
		t.Fatalf("write A1: %v", err)
	}
	if err := s.WriteCell("@Sheet1!F8", 42); err != nil {
		t.Fatalf("write F8: %v", err)
	}

	rows, err := s.Read("A1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rows[0][0] != "Test" {
		t.Errorf("expected Test, got %v", rows[0][0])
	}
	all, _ := s.Read("")
	if len(all) != 8 || len(all[7]) != 6 || all[7][5] != float64(42) {
		t.Errorf("expected grid extended to F8, got %v", all)
	}
}

func TestWriteStringDigitsStaysString(t *testing.T) {
	s := newTestStore(t)
	if err := s.WriteCell("C2", "007"); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, _ := s.Read("C2")
	if rows[0][0] != "007" {
		t.Errorf("expected string 007, got %#v", rows[0][0])
	}
}

func TestWriteRange(t *testing.T) {
	s := newTestStore(t)

	values := [][]any{{"x", "y"}, {1.5, 2.5}}
	if err := s.WriteRange("E1:F2", values); err != nil {
		t.Fatalf("write range: %v", err)
	}
	rows, _ := s.Read("E1:F2")
	want := [][]any{{"x", "y"}, {1.5, 2.5}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("expected %v, got %v", want, rows)
	}

	if err := s.WriteRange("E1:E1", values); err == nil {
		t.Error("expected error when values overflow the range")
	}
	if err := s.WriteRange("H1", values); err != nil {
		t.Errorf("anchor-only range should accept any block: %v", err)
	}
}

func TestWriteCellsAtomicOnBadAddress(t *testing.T) {
	s := newTestStore(t)

	err := s.WriteCells([]CellUpdate{{Cell: "A1", Value: "changed"}, {Cell: "not-a-cell", Value: 1}})
	if err == nil {
		t.Fatal("expected error for invalid address")
	}
	rows, _ := s.Read("A1")
	if rows[0][0] != "Email" {
		t.Errorf("expected A1 untouched, got %v", rows[0][0])
	}

	if err := s.WriteCells([]CellUpdate{{Cell: "D2", Value: "Refunded"}, {Cell: "D3", Value: nil}}); err != nil {
		t.Fatalf("bulk write: %v", err)
	}
	rows, _ = s.Read("D2:D3")
	if rows[0][0] != "Refunded" || len(rows) != 1 {
		t.Errorf("unexpected rows after bulk write: %v", rows)
	}
}

func TestSeedKeepsExistingFile(t *testing.T) {
	s := newTestStore(t)
	_ = s.WriteCell("A1", "kept")
	if err := s.Seed(false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rows, _ := s.Read("A1")
	if rows[0][0] != "kept" {
		t.Errorf("seed without force overwrote workbook")
	}
	if err := s.Seed(true); err != nil {
		t.Fatalf("force seed: %v", err)
	}
	rows, _ = s.Read("A1")
	if rows[0][0] != "Email" {
		t.Errorf("force seed did not reset workbook")
	}
}

func TestReadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.xlsx"))
	if _, err := s.Read(""); err == nil {
		t.Fatal("expected error for missing workbook")
	}
}

func TestReadClipsToUsedArea(t *testing.T) {
	s := newTestStore(t)

	start := time.Now()
	rows, err := s.Read("A1:XFD1048576")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("full-sheet range took %s", elapsed)
	}
	if len(rows) != 5 || len(rows[0]) != 4 {
		t.Fatalf("expected 5x4 rows, got %d rows %v", len(rows), rows)
	}

	rows, err = s.Read("H100:J200")
	if err != nil {
		t.Fatalf("read outside used area: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows outside used area, got %v", rows)
	}

	rows, _ = s.Read("C4:Z9000")
	want := [][]any{{float64(200), "Paid"}, {float64(50), "Failed"}}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("got %#v, want %#v", rows, want)
	}
}
