package detect

// Window is a fixed-capacity FIFO of recent upstream status codes.
// It keeps a running count of 5xx codes so ErrorRate is O(1).
type Window struct {
	codes  []int
	size   int
	head   int // next write position
	full   bool
	errors int
}

// NewWindow creates a window holding up to size codes. size must be positive.
func NewWindow(size int) *Window {
	return &Window{
		codes: make([]int, size),
		size:  size,
	}
}

// Push appends code, evicting the oldest entry once the window is full.
func (w *Window) Push(code int) {
	if w.full && isServerError(w.codes[w.head]) {
		w.errors--
	}
	w.codes[w.head] = code
	if isServerError(code) {
		w.errors++
	}

	w.head = (w.head + 1) % w.size
	if w.head == 0 {
		w.full = true
	}
}

// Full reports whether the window has reached capacity at least once.
func (w *Window) Full() bool { return w.full }

// Len returns the number of codes currently held.
func (w *Window) Len() int {
	if w.full {
		return w.size
	}
	return w.head
}

// Size returns the window capacity.
func (w *Window) Size() int { return w.size }

// Errors returns the number of 5xx codes currently held.
func (w *Window) Errors() int { return w.errors }

// ErrorRate returns the percentage of 5xx codes over the window capacity.
// It is only meaningful once Full reports true.
func (w *Window) ErrorRate() float64 {
	return float64(w.errors) / float64(w.size) * 100
}

// Codes returns the held codes, oldest first.
func (w *Window) Codes() []int {
	n := w.Len()
	out := make([]int, n)
	start := 0
	if w.full {
		start = w.head
	}
	for i := range n {
		out[i] = w.codes[(start+i)%w.size]
	}
	return out
}

func isServerError(code int) bool {
	return code >= 500 && code <= 599
}
