package protocol

// Decoder reassembles commands from a byte stream that may split frames at
// arbitrary points, such as TCP segments pulled from a packet capture.
type Decoder struct {
	pending [MaxFrameLength]byte
	n       int
}

// Feed decodes every complete command contained in the previously buffered
// bytes followed by data, calling fn for each in stream order. Trailing bytes
// of an incomplete frame are kept until the next call.
func (d *Decoder) Feed(data []byte, fn func(Command)) {
	for len(data) > 0 {
		if d.n == 0 {
			cmd, n, ok := Decode(data)
			if !ok {
				d.n = copy(d.pending[:], data)
				return
			}
			fn(cmd)
			data = data[n:]
			continue
		}

		need := FrameLength(d.pending[0]) - d.n
		if need > len(data) {
			d.n += copy(d.pending[d.n:], data)
			return
		}
		d.n += copy(d.pending[d.n:], data[:need])
		data = data[need:]

		cmd, _, _ := Decode(d.pending[:d.n])
		d.n = 0
		fn(cmd)
	}
}

// Pending returns the number of bytes held for an incomplete frame.
func (d *Decoder) Pending() int { return d.n }

// Reset discards any partially buffered frame.
func (d *Decoder) Reset() { d.n = 0 }
