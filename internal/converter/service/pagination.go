package service

// Paginate returns the zero-indexed slice [(page-1)*size, page*size) of
// items, clipped to its length. Pages past the end are empty.
func Paginate[T any](items []T, page, size int) []T {
	if page < 1 || size < 1 {
		return []T{}
	}
	if page-1 >= (len(items)+size-1)/size {
		return []T{}
	}

	start := (page - 1) * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}

	return items[start:end]
}
