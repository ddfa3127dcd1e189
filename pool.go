package markup

import (
	"bytes"
	"sync"
)

// ----------------------------- Buffer and frame pools -----------------------

var bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// frame holds the slots of one render: fields first, then every local the
// builder allocated.
type frame struct {
	slots []any
}

var framePool = sync.Pool{
	New: func() any {
		return &frame{slots: make([]any, 0, 16)} // pre-allocate common size
	},
}

func getFrame(n int) *frame {
	f := framePool.Get().(*frame)
	if cap(f.slots) < n {
		f.slots = make([]any, n)
	} else {
		f.slots = f.slots[:n]
	}
	return f
}

// putFrame clears the slots so pooled frames do not pin render data.
func putFrame(f *frame) {
	clear(f.slots)
	f.slots = f.slots[:0]
	framePool.Put(f)
}

func getBuffer(hint int) *bytes.Buffer {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.Grow(growHint(hint))
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 4*maxSizeHint {
		return
	}
	bufPool.Put(buf)
}
