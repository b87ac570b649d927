package differ

import "fmt"

// KeyRange is a closed interval over key values. Count is the number of
// real missing keys inside it, not End-Start+1: ranges may span natural
// gaps in the reference side's key domain. Ranges within one response
// are non-overlapping and sorted ascending by Start.
type KeyRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Count int64 `json:"count"`
}

// rangeAccum compresses an ascending stream of missing keys into
// KeyRanges under the reference-side run policy: a run of missing keys
// stays open across keys absent from the reference stream (natural
// gaps) and is closed by Break, which the merge calls whenever a
// reference key turns out to exist on both sides. Truncation ceilings
// stop range emission early while keeping the already-accumulated
// counts as a valid lower bound.
type rangeAccum struct {
	ranges    []KeyRange
	open      bool
	cur       KeyRange
	total     int64
	truncated bool

	maxRanges  int
	maxMissing int64
}

func newRangeAccum(maxRanges int, maxMissing int64) *rangeAccum {
	return &rangeAccum{maxRanges: maxRanges, maxMissing: maxMissing}
}

// Add records one missing key. Returns false once this direction has
// hit a ceiling and stopped accumulating.
func (a *rangeAccum) Add(key int64) bool {
	if a.truncated {
		return false
	}
	if a.total >= a.maxMissing {
		a.truncate()
		return false
	}
	if a.open {
		a.cur.End = key
		a.cur.Count++
		a.total++
		return true
	}
	if len(a.ranges) >= a.maxRanges {
		a.truncate()
		return false
	}
	a.open = true
	a.cur = KeyRange{Start: key, End: key, Count: 1}
	a.total++
	return true
}

// Break closes the current run. Called when a reference-side key exists
// on both sides, and at end of stream.
func (a *rangeAccum) Break() {
	if a.open {
		a.ranges = append(a.ranges, a.cur)
		a.open = false
	}
}

func (a *rangeAccum) truncate() {
	a.Break()
	a.truncated = true
}

func (a *rangeAccum) finish() {
	a.Break()
}

// mergeDiff walks two ascending key streams with a sorted-merge
// comparison and accumulates both directions of the set difference in
// one pass, returning the number of keys present on both sides. Correct
// when either side is empty. It stops early only when both directions
// have hit their truncation ceilings.
func mergeDiff(src, tgt KeyIterator, srcMissing, tgtMissing *rangeAccum) (int64, error) {
	var matched int64

	srcKey, srcOK, err := src.Next()
	if err != nil {
		return matched, fmt.Errorf("source key stream: %w", err)
	}
	tgtKey, tgtOK, err := tgt.Next()
	if err != nil {
		return matched, fmt.Errorf("target key stream: %w", err)
	}

	for srcOK || tgtOK {
		if srcMissing.truncated && tgtMissing.truncated {
			break
		}
		switch {
		case srcOK && (!tgtOK || srcKey < tgtKey):
			srcMissing.Add(srcKey)
			srcKey, srcOK, err = src.Next()
			if err != nil {
				return matched, fmt.Errorf("source key stream: %w", err)
			}
		case tgtOK && (!srcOK || tgtKey < srcKey):
			tgtMissing.Add(tgtKey)
			tgtKey, tgtOK, err = tgt.Next()
			if err != nil {
				return matched, fmt.Errorf("target key stream: %w", err)
			}
		default: // equal: key exists on both sides, closes both runs
			matched++
			srcMissing.Break()
			tgtMissing.Break()
			srcKey, srcOK, err = src.Next()
			if err != nil {
				return matched, fmt.Errorf("source key stream: %w", err)
			}
			tgtKey, tgtOK, err = tgt.Next()
			if err != nil {
				return matched, fmt.Errorf("target key stream: %w", err)
			}
		}
	}

	srcMissing.finish()
	tgtMissing.finish()
	return matched, nil
}
