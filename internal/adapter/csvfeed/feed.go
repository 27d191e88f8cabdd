// Package csvfeed replays a recorded stream of raw reports from a CSV file.
package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Feed loops over the rows of a CSV stream forever. The file needs a
// header with a "text" column; "source" is optional.
type Feed struct {
	mu    sync.Mutex
	rows  []domain.Item
	next  int
	clock clockwork.Clock
}

// Open reads the stream at path.
func Open(path string, clock clockwork.Clock) (*Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer f.Close()

	return Parse(f, clock)
}

// Parse reads a stream from r.
func Parse(r io.Reader, clock clockwork.Clock) (*Feed, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows")
	}

	colIdx := map[string]int{}
	for i, h := range rows[0] {
		colIdx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := colIdx["text"]; !ok {
		return nil, errors.New(`missing "text" column`)
	}

	items := make([]domain.Item, 0, len(rows)-1)
	for _, row := range rows[1:] {
		text := get(row, colIdx, "text")
		if text == "" {
			continue
		}
		source := get(row, colIdx, "source")
		if source == "" {
			source = "Simulated Stream"
		}
		items = append(items, domain.Item{Text: text, Source: source})
	}
	if len(items) == 0 {
		return nil, errors.New("no data rows")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Feed{rows: items, clock: clock}, nil
}

// Next returns the next row, wrapping to the first after the last.
func (f *Feed) Next(context.Context) (domain.Item, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item := f.rows[f.next%len(f.rows)]
	f.next++
	item.ReceivedAt = f.clock.Now()
	return item, true, nil
}

// Len returns the number of rows in one pass of the stream.
func (f *Feed) Len() int { return len(f.rows) }

// Rewind restarts the stream from the first row.
func (f *Feed) Rewind() {
	f.mu.Lock()
	f.next = 0
	f.mu.Unlock()
}

func get(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
