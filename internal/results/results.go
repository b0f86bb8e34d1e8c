// Package results post-processes query result rows.
package results

import (
	"fmt"
	"strings"
)

// DefaultKeys identify a product row in the gold table.
var DefaultKeys = []string{"brand", "model", "profit"}

// Dedupe keeps the first row seen for each combination of keys, preserving
// order. A missing key counts as the empty string.
func Dedupe[V any](rows []map[string]V, keys []string) []map[string]V {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	seen := make(map[string]struct{}, len(rows))
	out := make([]map[string]V, 0, len(rows))
	for _, r := range rows {
		k := key(r, keys)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func key[V any](row map[string]V, keys []string) string {
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(0)
		}
		if v, ok := row[k]; ok {
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String()
}
