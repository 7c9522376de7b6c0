// Package tables caches the last sheet read per thread and encodes it into
// assistant messages so it can be shown again later.
package tables

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

const (
	markerOpen  = "<!-- sheet-table:"
	markerClose = " -->"
)

var markerPattern = regexp.MustCompile(`(?s)\n*<!-- sheet-table:(.*?) -->`)

// Cache holds one table per thread.
type Cache struct {
	mu     sync.RWMutex
	tables map[string][][]any
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{tables: make(map[string][][]any)}
}

// Set replaces the thread's table.
func (c *Cache) Set(threadID string, table [][]any) {
	c.mu.Lock()
	c.tables[threadID] = table
	c.mu.Unlock()
}

// Get returns the thread's table.
func (c *Cache) Get(threadID string) ([][]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[threadID]
	return t, ok
}

// Delete drops the thread's table.
func (c *Cache) Delete(threadID string) {
	c.mu.Lock()
	delete(c.tables, threadID)
	c.mu.Unlock()
}

// AppendMarker returns text with the table embedded as a trailing marker.
func AppendMarker(text string, table [][]any) (string, error) {
	data, err := json.Marshal(table)
	if err != nil {
		return text, err
	}
	// json.Marshal escapes '>' so the payload cannot close the marker early.
	return strings.TrimRight(text, "\n") + "\n\n" + markerOpen + string(data) + markerClose, nil
}

// ExtractMarker strips every marker from text and returns the cleaned text
// with the last decodable table.
func ExtractMarker(text string) (string, [][]any, bool) {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil, false
	}
	var (
		table [][]any
		found bool
	)
	for _, m := range matches {
		var t [][]any
		if err := json.Unmarshal([]byte(m[1]), &t); err == nil {
			table, found = t, true
		}
	}
	return Strip(text), table, found
}

// Strip removes markers without decoding them.
func Strip(text string) string {
	return markerPattern.ReplaceAllString(text, "")
}
