// Package protocol implements the wire format spoken between a remote debug
// tool and the bridge. Every command is a one byte opcode followed by a fixed
// number of argument bytes; there are no length prefixes or delimiters.
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	OpBlinkOn  byte = 'B'
	OpBlinkOff byte = 'b'
	OpWrite    byte = 'w'
	OpRead     byte = 'r'
	OpQuit     byte = 'Q'
)

// Frame lengths, opcode included.
const (
	writeFrameLength   = 6
	readFrameLength    = 2
	defaultFrameLength = 1

	// MaxFrameLength is the length of the longest command frame.
	MaxFrameLength = writeFrameLength
	// ResponseSize is the number of bytes sent back for each register read.
	ResponseSize = 4
)

// FrameLength returns the number of bytes consumed from the stream by a
// command starting with op. Unrecognized opcodes occupy a single byte.
func FrameLength(op byte) int {
	switch op {
	case OpWrite:
		return writeFrameLength
	case OpRead:
		return readFrameLength
	default:
		return defaultFrameLength
	}
}

// Known reports whether op is one of the recognized opcodes.
func Known(op byte) bool {
	switch op {
	case OpBlinkOn, OpBlinkOff, OpWrite, OpRead, OpQuit:
		return true
	}
	return false
}

// OpcodeName returns a short human readable name for op, used for logs
// and metric labels.
func OpcodeName(op byte) string {
	switch op {
	case OpBlinkOn:
		return "blink_on"
	case OpBlinkOff:
		return "blink_off"
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	case OpQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Command is a single decoded frame. Addr is only meaningful for reads and
// writes, Value only for writes.
type Command struct {
	Op    byte
	Addr  uint8
	Value uint32
}

func (c Command) String() string {
	switch c.Op {
	case OpWrite:
		return fmt.Sprintf("write addr=0x%02x value=0x%08x", c.Addr, c.Value)
	case OpRead:
		return fmt.Sprintf("read addr=0x%02x", c.Addr)
	case OpBlinkOn, OpBlinkOff, OpQuit:
		return OpcodeName(c.Op)
	default:
		return fmt.Sprintf("unknown opcode %q (0x%02x)", c.Op, c.Op)
	}
}

// Decode decodes the command at the front of data. It returns the command,
// the number of bytes it occupies and whether data held the complete frame.
// When ok is false nothing was consumed.
func Decode(data []byte) (cmd Command, n int, ok bool) {
	if len(data) == 0 {
		return Command{}, 0, false
	}

	cmd.Op = data[0]
	n = FrameLength(cmd.Op)
	if len(data) < n {
		return Command{}, 0, false
	}

	switch cmd.Op {
	case OpWrite:
		cmd.Addr = data[1]
		cmd.Value = binary.LittleEndian.Uint32(data[2:writeFrameLength])
	case OpRead:
		cmd.Addr = data[1]
	}
	return cmd, n, true
}

// AppendTo appends the wire encoding of c to dst.
func (c Command) AppendTo(dst []byte) []byte {
	switch c.Op {
	case OpWrite:
		dst = append(dst, c.Op, c.Addr)
		return binary.LittleEndian.AppendUint32(dst, c.Value)
	case OpRead:
		return append(dst, c.Op, c.Addr)
	default:
		return append(dst, c.Op)
	}
}

// PutResponse encodes a register value into the first ResponseSize bytes of dst.
func PutResponse(dst []byte, value uint32) {
	binary.LittleEndian.PutUint32(dst, value)
}

// DecodeResponse decodes a register value sent in reply to a read.
func DecodeResponse(data []byte) uint32 {
	return binary.LittleEndian.Uint32(data[:ResponseSize])
}
