package indexer

import "fmt"

// BlockRange represents an inclusive height range.
type BlockRange struct {
	From int64
	To   int64
}

// SplitRange splits a height range into batches of size batchSize.
func SplitRange(from, to, batchSize int64) ([]BlockRange, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to height must be >= from height")
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; start <= to; start += batchSize {
		end := start + batchSize - 1
		if end > to {
			end = to
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
	}

	return ranges, nil
}
