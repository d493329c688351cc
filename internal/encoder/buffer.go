package encoder

// boundedBuffer is an append-only byte buffer that refuses to grow past a
// fixed limit. An append that would cross the limit is discarded and
// latches the overflow flag.
type boundedBuffer struct {
	b        []byte
	limit    int
	overflow bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	capacity := 256
	if limit < capacity {
		capacity = limit
	}
	return &boundedBuffer{b: make([]byte, 0, capacity), limit: limit}
}

func (w *boundedBuffer) appendString(s string) {
	if w.overflow || len(w.b)+len(s) > w.limit {
		w.overflow = true
		return
	}
	w.b = append(w.b, s...)
}

func (w *boundedBuffer) appendByte(c byte) {
	if w.overflow || len(w.b)+1 > w.limit {
		w.overflow = true
		return
	}
	w.b = append(w.b, c)
}

func (w *boundedBuffer) Len() int { return len(w.b) }

func (w *boundedBuffer) Overflowed() bool { return w.overflow }

func (w *boundedBuffer) Bytes() []byte { return w.b }
