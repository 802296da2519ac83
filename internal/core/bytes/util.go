package bytes

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const displayWidth = 16

// WritePayload writes data to w in two columns, one for bytes and the other
// for their ascii representation, sixteen bytes per line.
func WritePayload(w io.Writer, data []byte) {
	for offset := 0; offset < len(data); offset += displayWidth {
		end := offset + displayWidth
		if end > len(data) {
			end = len(data)
		}
		writePayloadLine(w, data[offset:end], offset)
	}
}

// FormatPayload returns the output of WritePayload as a string.
func FormatPayload(data []byte) string {
	var sb strings.Builder
	WritePayload(&sb, data)
	return sb.String()
}

// writePayloadLine writes one line of data.
func writePayloadLine(w io.Writer, data []byte, offset int) {
	fmt.Fprintf(w, "(%04X) ", offset)
	// Print our bytes.
	for i, j := 0, 0; i < len(data); i++ {
		if j == 8 {
			// Visual aid - spacing between groups of 8 bytes.
			j = 0
			fmt.Fprint(w, "  ")
		}
		fmt.Fprintf(w, "%02x ", data[i])
		j++
	}
	// Fill in the gap if we don't have enough bytes to fill the line.
	for i := len(data); i < displayWidth; i++ {
		if i == 8 {
			fmt.Fprint(w, "  ")
		}
		fmt.Fprint(w, "   ")
	}
	fmt.Fprint(w, "    ")
	// Display the print characters as-is, others as periods.
	for _, c := range data {
		if c < 0x80 && strconv.IsPrint(rune(c)) {
			fmt.Fprintf(w, "%c", c)
		} else {
			fmt.Fprint(w, ".")
		}
	}
	fmt.Fprintln(w)
}
