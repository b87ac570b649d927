package differ

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseRanges reads the operator's range selection in the compact
// "6-7,12,40-55" form. Single keys become one-key ranges. The result is
// sorted by Start; overlapping or malformed selections are rejected so
// a garbled selection never reaches the executor.
func ParseRanges(s string) ([]KeyRange, error) {
	var ranges []KeyRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start, end, err := parseRangePart(part)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, KeyRange{Start: start, End: end})
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("empty range selection")
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start <= ranges[i-1].End {
			return nil, fmt.Errorf("ranges %d-%d and %d-%d overlap",
				ranges[i-1].Start, ranges[i-1].End, ranges[i].Start, ranges[i].End)
		}
	}
	return ranges, nil
}

func parseRangePart(part string) (int64, int64, error) {
	// SplitN on the dash after the first rune so negative keys parse.
	sep := strings.Index(part[1:], "-")
	if sep < 0 {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid key %q: %w", part, err)
		}
		return v, v, nil
	}
	sep++
	start, err := strconv.ParseInt(part[:sep], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range start in %q: %w", part, err)
	}
	end, err := strconv.ParseInt(part[sep+1:], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range end in %q: %w", part, err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("range %q ends before it starts", part)
	}
	return start, end, nil
}

// FormatRanges renders ranges back into the compact selection form.
func FormatRanges(ranges []KeyRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		if r.Start == r.End {
			parts[i] = strconv.FormatInt(r.Start, 10)
		} else {
			parts[i] = fmt.Sprintf("%d-%d", r.Start, r.End)
		}
	}
	return strings.Join(parts, ",")
}
