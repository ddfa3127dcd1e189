package markup

// ----------------------------- Size hint ------------------------------------

// maxSizeHint caps the capacity requested up front for a single render.
const maxSizeHint = 1 << 16

// sizeHint estimates the rendered size of a template from the byte extent of
// its body source. The estimate only pre-sizes output buffers.
func sizeHint(start, end int) int {
	if end <= start {
		return 0
	}
	return end - start
}

// growHint is the capacity to reserve for a render with the given hint.
func growHint(hint int) int {
	if hint > maxSizeHint {
		return maxSizeHint
	}
	return hint
}
