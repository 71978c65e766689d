package replay

import "fmt"

// LineRange represents an inclusive range of operation lines.
type LineRange struct {
	From uint64
	To   uint64
}

// SplitRange splits a line range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]LineRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("range end must be >= range start")
	}

	ranges := make([]LineRange, 0, (to-from)/batchSize+1)
	start := from
	for start <= to {
		remaining := to - start + 1
		var end uint64
		if remaining <= batchSize {
			end = to
		} else {
			end = start + batchSize - 1
		}
		ranges = append(ranges, LineRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
