package clustering

// LabelAllocator hands out cluster labels that are unique within one run.
// Sub-clustering threads a single allocator through every split so new
// labels never collide with proposed ones or with each other.
type LabelAllocator struct {
	next int
}

// NewLabelAllocator starts allocating at start.
func NewLabelAllocator(start int) *LabelAllocator {
	return &LabelAllocator{next: start}
}

// Next returns a fresh label.
func (a *LabelAllocator) Next() int {
	l := a.next
	a.next++
	return l
}
