package channel

import "context"

// DefaultBatchSize is used when a backend does not declare its own limit
const DefaultBatchSize = 100

// Chunk splits items into consecutive batches of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// ChunkResult reports the outcome of one submitted chunk
type ChunkResult struct {
	Index  int
	Offset int
	Size   int
	Err    error
}

// SubmitChunks submits every chunk independently. A failing chunk does not
// stop the remaining ones; only context cancellation does.
func SubmitChunks[T any](ctx context.Context, items []T, size int, submit func(ctx context.Context, chunk []T) error) []ChunkResult {
	chunks := Chunk(items, size)
	results := make([]ChunkResult, 0, len(chunks))
	offset := 0
	for i, chunk := range chunks {
		res := ChunkResult{Index: i, Offset: offset, Size: len(chunk)}
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Err = submit(ctx, chunk)
		}
		results = append(results, res)
		offset += len(chunk)
	}
	return results
}

// FailedChunks returns the results that carry an error
func FailedChunks(results []ChunkResult) []ChunkResult {
	var failed []ChunkResult
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
