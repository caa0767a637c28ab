package oif

// window is a FIFO of samples backed by a growable ring buffer.
type window struct {
	buf   [][]float64
	head  int
	count int
}

func (w *window) Len() int {
	return w.count
}

func (w *window) push(row []float64) {
	if w.count == len(w.buf) {
		w.grow()
	}
	w.buf[(w.head+w.count)%len(w.buf)] = row
	w.count++
}

// popN removes and returns the n oldest samples, oldest first.
func (w *window) popN(n int) [][]float64 {
	if n > w.count {
		n = w.count
	}
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = w.buf[w.head]
		w.buf[w.head] = nil
		w.head = (w.head + 1) % len(w.buf)
	}
	w.count -= n
	return out
}

func (w *window) grow() {
	size := 2 * len(w.buf)
	if size == 0 {
		size = 16
	}
	buf := make([][]float64, size)
	for i := 0; i < w.count; i++ {
		buf[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	w.buf = buf
	w.head = 0
}
