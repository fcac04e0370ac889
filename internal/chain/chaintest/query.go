package chaintest

import (
	"regexp"
	"strconv"
)

var (
	exactHeight = regexp.MustCompile(`tx\.height\s*=\s*(\d+)`)
	minHeight   = regexp.MustCompile(`tx\.height\s*>=\s*(\d+)`)
	maxHeight   = regexp.MustCompile(`tx\.height\s*<=\s*(\d+)`)
)

// parseHeightRange extracts the height bounds of a tx_search query.
func parseHeightRange(query string) (int64, int64, bool) {
	if m := exactHeight.FindStringSubmatch(query); m != nil {
		h, _ := strconv.ParseInt(m[1], 10, 64)
		return h, h, true
	}
	lo, hi := int64(0), int64(1<<62)
	found := false
	if m := minHeight.FindStringSubmatch(query); m != nil {
		lo, _ = strconv.ParseInt(m[1], 10, 64)
		found = true
	}
	if m := maxHeight.FindStringSubmatch(query); m != nil {
		hi, _ = strconv.ParseInt(m[1], 10, 64)
		found = true
	}
	return lo, hi, found
}
