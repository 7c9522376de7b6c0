package approval

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/KafClaw/sheetclaw/internal/grid"
)

// MatchParams compares approved params against call args field by field for
// the given tool. It returns the first differing field name on mismatch.
func MatchParams(toolName string, approved, args map[string]any) (string, bool) {
	switch toolName {
	case ToolDeleteThread:
		return "", true
	case ToolWriteCell:
		if !sameRef(approved["cell"], args["cell"]) {
			return "cell", false
		}
		if !sameScalar(approved["value"], args["value"]) {
			return "value", false
		}
		return "", true
	case ToolWriteRange:
		if !sameRef(approved["range"], args["range"]) {
			return "range", false
		}
		if !sameMatrix(approved["values"], args["values"]) {
			return "values", false
		}
		return "", true
	case ToolWriteCells:
		if !sameUpdates(approved["updates"], args["updates"]) {
			return "updates", false
		}
		return "", true
	}
	return matchGeneric(approved, args)
}

func matchGeneric(approved, args map[string]any) (string, bool) {
	keys := make(map[string]struct{}, len(approved)+len(args))
	for k := range approved {
		keys[k] = struct{}{}
	}
	for k := range args {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		if !sameValue(approved[k], args[k]) {
			return k, false
		}
	}
	return "", true
}

// CanonicalScalar renders a scalar for comparison. Numeric-looking strings
// and numbers share one form, so 100, 100.0 and "100" are equal; nil and ""
// are both empty.
func CanonicalScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(x)
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return formatFloat(f)
		}
		return s
	case json.Number:
		return CanonicalScalar(x.String())
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sameScalar(a, b any) bool {
	return CanonicalScalar(a) == CanonicalScalar(b)
}

func sameRef(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return false
	}
	return grid.NormalizeRef(as) == grid.NormalizeRef(bs)
}

func sameMatrix(a, b any) bool {
	ar, aok := ToRows(a)
	br, bok := ToRows(b)
	if !aok || !bok || len(ar) != len(br) {
		return false
	}
	for i := range ar {
		if len(ar[i]) != len(br[i]) {
			return false
		}
		for j := range ar[i] {
			if !sameScalar(ar[i][j], br[i][j]) {
				return false
			}
		}
	}
	return true
}

func sameUpdates(a, b any) bool {
	au, aok := ToUpdates(a)
	bu, bok := ToUpdates(b)
	if !aok || !bok || len(au) != len(bu) {
		return false
	}
	for i := range au {
		if grid.NormalizeRef(au[i].Cell) != grid.NormalizeRef(bu[i].Cell) {
			return false
		}
		if !sameScalar(au[i].Value, bu[i].Value) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			return false
		}
		_, match := matchGeneric(av, bv)
		return match
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !sameValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	switch b.(type) {
	case map[string]any, []any:
		return false
	}
	return sameScalar(a, b)
}

// ToRows coerces a decoded JSON value (or a JSON-encoded string of one) into
// a 2-D array.
func ToRows(v any) ([][]any, bool) {
	switch x := v.(type) {
	case [][]any:
		return x, true
	case []any:
		rows := make([][]any, 0, len(x))
		for _, r := range x {
			row, ok := r.([]any)
			if !ok {
				return nil, false
			}
			rows = append(rows, row)
		}
		return rows, true
	case [][]string:
		rows := make([][]any, len(x))
		for i, r := range x {
			rows[i] = make([]any, len(r))
			for j, c := range r {
				rows[i][j] = c
			}
		}
		return rows, true
	case string:
		var rows [][]any
		if err := json.Unmarshal([]byte(x), &rows); err != nil {
			return nil, false
		}
		return rows, true
	}
	return nil, false
}

// ToUpdates coerces a decoded JSON list of {cell, value} objects (or a
// JSON-encoded string of one) into cell updates.
func ToUpdates(v any) ([]grid.CellUpdate, bool) {
	switch x := v.(type) {
	case []grid.CellUpdate:
		return x, true
	case []any:
		out := make([]grid.CellUpdate, 0, len(x))
		for _, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			cell, ok := m["cell"].(string)
			if !ok {
				return nil, false
			}
			out = append(out, grid.CellUpdate{Cell: cell, Value: m["value"]})
		}
		return out, true
	case []map[string]any:
		items := make([]any, len(x))
		for i := range x {
			items[i] = x[i]
		}
		return ToUpdates(items)
	case string:
		var items []any
		if err := json.Unmarshal([]byte(x), &items); err != nil {
			return nil, false
		}
		return ToUpdates(items)
	}
	return nil, false
}
