// Package layout resolves table column layouts. Resolution is pure; stored
// layouts are loaded and saved by the repository.
package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Width bounds applied to user-supplied widths.
const (
	MinWidth = 40
	MaxWidth = 800
)

// ErrInvalidLayout is returned when a layout references unknown columns or bad widths.
var ErrInvalidLayout = errors.New("invalid table layout")

// Column is a column a table can show.
type Column struct {
	Key      string
	Title    string
	Width    int
	Required bool // cannot be hidden
}

// ColumnLayout is the user's override for one column.
type ColumnLayout struct {
	Key     string `json:"key"`
	Width   int    `json:"width,omitempty"`
	Visible *bool  `json:"visible,omitempty"`
	Order   *int   `json:"order,omitempty"`
}

// Layout is the saved column configuration of one table.
type Layout struct {
	Table   string         `json:"table"`
	Columns []ColumnLayout `json:"columns"`
}

// Resolve applies l to the available columns and returns the visible ones in
// display order. Unknown keys in l are ignored.
func Resolve(available []Column, l Layout) []Column {
	overrides := make(map[string]ColumnLayout, len(l.Columns))
	for _, c := range l.Columns {
		overrides[c.Key] = c
	}

	type ranked struct {
		col   Column
		order int
	}
	out := make([]ranked, 0, len(available))
	for i, col := range available {
		order := i
		if o, ok := overrides[col.Key]; ok {
			if o.Visible != nil && !*o.Visible && !col.Required {
				continue
			}
			if o.Width > 0 {
				col.Width = clamp(o.Width)
			}
			if o.Order != nil {
				order = *o.Order
			}
		}
		out = append(out, ranked{col: col, order: order})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].order < out[j].order })

	cols := make([]Column, len(out))
	for i, r := range out {
		cols[i] = r.col
	}
	return cols
}

// Validate checks l against the available columns.
func Validate(available []Column, l Layout) error {
	known := make(map[string]Column, len(available))
	for _, c := range available {
		known[c.Key] = c
	}
	var problems []string
	seen := make(map[string]bool, len(l.Columns))
	for i, c := range l.Columns {
		col, ok := known[c.Key]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("columns[%d]: unknown column %q", i, c.Key))
			continue
		case seen[c.Key]:
			problems = append(problems, fmt.Sprintf("columns[%d]: duplicate column %q", i, c.Key))
		}
		seen[c.Key] = true
		if c.Width != 0 && (c.Width < MinWidth || c.Width > MaxWidth) {
			problems = append(problems, fmt.Sprintf("columns[%d]: width %d outside %d..%d", i, c.Width, MinWidth, MaxWidth))
		}
		if col.Required && c.Visible != nil && !*c.Visible {
			problems = append(problems, fmt.Sprintf("columns[%d]: column %q cannot be hidden", i, c.Key))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidLayout, strings.Join(problems, "; "))
	}
	return nil
}

func clamp(w int) int {
	switch {
	case w < MinWidth:
		return MinWidth
	case w > MaxWidth:
		return MaxWidth
	}
	return w
}
