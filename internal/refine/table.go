package refine

import (
	"fmt"
	"regexp"
	"strings"
)

// Row maps column name to value. Values are nil, string, int64, float64 or bool.
type Row map[string]any

// Table is an ordered set of columns plus rows.
type Table struct {
	Columns []string
	Rows    []Row
}

// HasColumn reports whether name is a column of t.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// PruneNullColumns drops every column whose value is nil in all rows.
func (t *Table) PruneNullColumns() []string {
	var kept, dropped []string
	for _, c := range t.Columns {
		seen := false
		for _, r := range t.Rows {
			if r[c] != nil {
				seen = true
				break
			}
		}
		if seen {
			kept = append(kept, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	for _, r := range t.Rows {
		for _, c := range dropped {
			delete(r, c)
		}
	}
	t.Columns = kept
	return dropped
}

// TrimStrings strips surrounding whitespace from every string value.
// Values that become empty stay empty strings.
func (t *Table) TrimStrings() {
	for _, r := range t.Rows {
		for k, v := range r {
			if s, ok := v.(string); ok {
				r[k] = strings.TrimSpace(s)
			}
		}
	}
}

// KeyColumns returns the columns matching any of the primary-key rules.
// A rule may reference the source name as {source}; matching is case-insensitive.
func KeyColumns(columns []string, source string, rules []string) ([]string, error) {
	patterns := make([]*regexp.Regexp, 0, len(rules))
	for _, rule := range rules {
		expr := strings.ReplaceAll(rule, "{source}", regexp.QuoteMeta(source))
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("primary key rule %q: %w", rule, err)
		}
		patterns = append(patterns, re)
	}

	var keys []string
	for _, c := range columns {
		for _, re := range patterns {
			if re.MatchString(c) {
				keys = append(keys, c)
				break
			}
		}
	}
	return keys, nil
}

// Dedupe keeps the first row for each distinct value of keys. With no keys
// the whole row is the key. It returns the number of rows removed.
func (t *Table) Dedupe(keys []string) int {
	if len(keys) == 0 {
		keys = t.Columns
	}
	seen := make(map[string]struct{}, len(t.Rows))
	out := t.Rows[:0]
	for _, r := range t.Rows {
		k := rowKey(r, keys)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	removed := len(t.Rows) - len(out)
	t.Rows = out
	return removed
}

// DropNullRows removes rows whose every column is nil.
func (t *Table) DropNullRows() int {
	out := t.Rows[:0]
	for _, r := range t.Rows {
		for _, c := range t.Columns {
			if r[c] != nil {
				out = append(out, r)
				break
			}
		}
	}
	removed := len(t.Rows) - len(out)
	t.Rows = out
	return removed
}

// Stamp sets column to value on every row, appending the column if new.
func (t *Table) Stamp(column string, value any) {
	if !t.HasColumn(column) {
		t.Columns = append(t.Columns, column)
	}
	for _, r := range t.Rows {
		r[column] = value
	}
}

// LeftJoin joins right onto t where t[leftKey] equals right[rightKey].
// Right columns that collide with left columns, ignoring case, are prefixed
// with prefix.
// Unmatched left rows keep nil right columns.
func (t *Table) LeftJoin(right *Table, leftKey, rightKey, prefix string) *Table {
	rename := make(map[string]string, len(right.Columns))
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	taken := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		taken[strings.ToLower(c)] = true
	}
	for _, c := range right.Columns {
		if c == rightKey && rightKey == leftKey {
			continue
		}
		name := c
		if taken[strings.ToLower(c)] {
			name = prefix + c
		}
		rename[c] = name
		out.Columns = append(out.Columns, name)
	}

	index := make(map[string][]Row)
	for _, r := range right.Rows {
		v := r[rightKey]
		if v == nil {
			continue
		}
		k := joinValue(v)
		index[k] = append(index[k], r)
	}

	for _, l := range t.Rows {
		var matches []Row
		if v := l[leftKey]; v != nil {
			matches = index[joinValue(v)]
		}
		if len(matches) == 0 {
			out.Rows = append(out.Rows, copyRow(l))
			continue
		}
		for _, m := range matches {
			row := copyRow(l)
			for from, to := range rename {
				row[to] = m[from]
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func rowKey(r Row, cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		b.WriteString(valueKey(r[c]))
		b.WriteByte(0)
	}
	return b.String()
}

// valueKey renders v so that nil, "1" and 1 stay distinct, while int64 and
// float64 with the same numeric value compare equal.
func valueKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "\x00null"
	case string:
		return "s:" + x
	case int64:
		return fmt.Sprintf("n:%d", x)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("n:%d", int64(x))
		}
		return fmt.Sprintf("n:%v", x)
	case bool:
		return fmt.Sprintf("b:%t", x)
	default:
		return fmt.Sprintf("o:%v", x)
	}
}

// joinValue compares join keys by their text form so a CSV "42" matches 42.
func joinValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
