package bridge

import "github.com/dcrodman/pjet/internal/protocol"

// frameCapacity is the size of the receive buffer, and so the most input a
// single tick will ever process.
const frameCapacity = 64 * 1024

// frameBuffer holds bytes received from the client. Only [start, end) is
// unconsumed; anything outside of it is stale.
type frameBuffer struct {
	bytes [frameCapacity]byte
	start int
	end   int
}

func (f *frameBuffer) empty() bool { return f.start == f.end }

func (f *frameBuffer) pending() []byte { return f.bytes[f.start:f.end] }

// ready reports whether at least one complete command is buffered.
func (f *frameBuffer) ready() bool {
	return !f.empty() && protocol.FrameLength(f.bytes[f.start]) <= f.end-f.start
}

// compact moves any unconsumed bytes (at most one incomplete frame) to the
// front of the buffer so that start is 0 before the next read.
func (f *frameBuffer) compact() {
	f.end = copy(f.bytes[:], f.bytes[f.start:f.end])
	f.start = 0
}

// free returns the writable space behind the unconsumed region.
func (f *frameBuffer) free() []byte { return f.bytes[f.end:] }

func (f *frameBuffer) fill(n int) { f.end += n }

func (f *frameBuffer) consume(n int) { f.start += n }

func (f *frameBuffer) reset() {
	f.start = 0
	f.end = 0
}
