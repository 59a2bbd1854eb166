package reconcile

// Chunk splits items into consecutive slices of at most size elements. A size
// below one uses DefaultChunkSize.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = DefaultChunkSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
