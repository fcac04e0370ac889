package indexer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EventFilter is one `key=value` condition of a tx_search query.
type EventFilter struct {
	Key   string
	Value string
}

// ParseEventFilters converts "type.attribute=value" strings into filters.
func ParseEventFilters(inputs []string) ([]EventFilter, error) {
	filters := make([]EventFilter, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		key, value, ok := strings.Cut(input, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid event filter: %s", input)
		}
		if strings.ContainsAny(key, " '") {
			return nil, fmt.Errorf("invalid event key: %s", key)
		}
		filters = append(filters, EventFilter{Key: key, Value: strings.Trim(value, "'\"")})
	}
	return filters, nil
}

// FiltersFromMap builds filters from a key/value map in key order.
func FiltersFromMap(m map[string]string) []EventFilter {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make([]EventFilter, 0, len(keys))
	for _, k := range keys {
		filters = append(filters, EventFilter{Key: k, Value: m[k]})
	}
	return filters
}

// BuildTxQuery returns the tx_search query for [from, to] plus the filters.
// Numeric values are left bare, everything else is single quoted.
func BuildTxQuery(from, to int64, filters []EventFilter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tx.height >= %d AND tx.height <= %d", from, to)
	for _, f := range filters {
		b.WriteString(" AND ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(queryValue(f.Value))
	}
	return b.String()
}

func queryValue(v string) string {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
}
