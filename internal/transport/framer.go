package transport

import "bytes"

// lineFramer buffers received bytes until a terminator arrives.
// It is used only by the receive goroutine.
type lineFramer struct {
	terminator []byte
	max        int
	pending    []byte
}

func newLineFramer(terminator string, maxPending int) *lineFramer {
	return &lineFramer{
		terminator: []byte(terminator),
		max:        maxPending,
	}
}

// push appends chunk and returns the complete prefix (ending at the last
// terminator), or nil when no complete line is buffered yet.
func (f *lineFramer) push(chunk []byte) []byte {
	f.pending = append(f.pending, chunk...)

	i := bytes.LastIndex(f.pending, f.terminator)
	if i < 0 {
		if f.max > 0 && len(f.pending) >= f.max {
			out := f.pending
			f.pending = nil
			return out
		}
		return nil
	}

	end := i + len(f.terminator)
	out := make([]byte, end)
	copy(out, f.pending[:end])

	rest := f.pending[end:]
	if len(rest) == 0 {
		f.pending = f.pending[:0]
	} else {
		f.pending = append([]byte(nil), rest...)
	}
	return out
}

// reset drops any partial line, used when a connection is replaced.
func (f *lineFramer) reset() {
	f.pending = nil
}
