package tables

import (
	"reflect"
	"strings"
	"testing"
)

func TestMarkerRoundTrip(t *testing.T) {
	table := [][]any{{"Email", "Amount"}, {"a<b>@example.com", float64(120)}}
	text, err := AppendMarker("Here is the sheet.\n", table)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.HasPrefix(text, "Here is the sheet.\n\n<!-- sheet-table:") {
		t.Fatalf("unexpected marker layout %q", text)
	}

	clean, got, ok := ExtractMarker(text)
	if !ok {
		t.Fatal("expected marker to be found")
	}
	if clean != "Here is the sheet." {
		t.Errorf("unexpected clean text %q", clean)
	}
	if !reflect.DeepEqual(got, table) {
		t.Errorf("expected %v, got %v", table, got)
	}
}

func TestExtractWithoutMarker(t *testing.T) {
	clean, table, ok := ExtractMarker("plain")
	if ok || table != nil || clean != "plain" {
		t.Fatalf("unexpected %q %v %v", clean, table, ok)
	}
}

func TestExtractKeepsLastValidTable(t *testing.T) {
	text := "a\n\n<!-- sheet-table:[[1]] -->\nb\n\n<!-- sheet-table:not json -->"
	clean, table, ok := ExtractMarker(text)
	if !ok || !reflect.DeepEqual(table, [][]any{{float64(1)}}) {
		t.Fatalf("expected last valid table, got %v %v", table, ok)
	}
	if clean != "a\nb" {
		t.Errorf("unexpected clean text %q", clean)
	}
}

func TestCache(t *testing.T) {
	c := NewCache()
	if _, ok := c.Get("t1"); ok {
		t.Fatal("expected empty cache")
	}
	c.Set("t1", [][]any{{"x"}})
	if got, ok := c.Get("t1"); !ok || got[0][0] != "x" {
		t.Fatalf("unexpected %v %v", got, ok)
	}
	c.Delete("t1")
	if _, ok := c.Get("t1"); ok {
		t.Fatal("expected table deleted")
	}
}
