package partition

import (
	"errors"
	"fmt"
)

// ErrInvalidChunkCount is returned when items should be split into a non-positive number of chunks.
var ErrInvalidChunkCount = errors.New("chunk count must be positive")

// Result of Split.
type Result[T any] struct {
	// Chunks in the order of the input. Concatenating them reproduces the input.
	Chunks [][]T

	// Requested is the chunk count passed to Split.
	Requested int

	// Reduced is true when fewer chunks than Requested are produced
	// because there are fewer items than requested chunks.
	Reduced bool
}

// Len returns the number of chunks.
func (r Result[T]) Len() int {
	return len(r.Chunks)
}

// Notice describes the reduced parallelism, if any.
//
// It returns an empty string when the request has been fulfilled as is.
func (r Result[T]) Notice() string {
	if !r.Reduced {
		return ""
	}
	return fmt.Sprintf(
		"%d chunks are requested, but there are only %d items. %d chunks are created.",
		r.Requested, len(r.Chunks), len(r.Chunks),
	)
}

// Split divides items into k contiguous chunks whose sizes differ by at most one.
//
// The first len(items) % k chunks get the larger size.
//
// When k > len(items), each item makes its own chunk and Result.Reduced is set.
// An empty items makes no chunks for any k.
//
// # Returns
//
// - Result[T]: chunks. Each chunk is a sub-slice of items; appending to a chunk never overwrites its neighbour.
//
// - error: ErrInvalidChunkCount if k < 1 and items is not empty.
func Split[T any](items []T, k int) (Result[T], error) {
	n := len(items)
	if n == 0 {
		return Result[T]{Chunks: [][]T{}, Requested: k}, nil
	}
	if k < 1 {
		return Result[T]{}, fmt.Errorf("%w: %d chunks for %d items", ErrInvalidChunkCount, k, n)
	}

	result := Result[T]{Requested: k}
	if n < k {
		k = n
		result.Reduced = true
	}

	size, rem := n/k, n%k
	chunks := make([][]T, 0, k)
	head := 0
	for i := 0; i < k; i++ {
		tail := head + size
		if i < rem {
			tail += 1
		}
		chunks = append(chunks, items[head:tail:tail])
		head = tail
	}
	result.Chunks = chunks
	return result, nil
}
