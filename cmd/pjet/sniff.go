package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"

	"github.com/dcrodman/pjet/internal/protocol"
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Decodes bridge traffic from a packet capture",
	Args:  cobra.NoArgs,
	RunE:  SniffCommand,
}

var (
	CaptureFileFlag string
	CapturePortFlag uint16
)

func SniffCommand(cmd *cobra.Command, args []string) error {
	f, err := os.Open(CaptureFileFlag)
	if err != nil {
		return fmt.Errorf("error opening capture: %w", err)
	}
	defer f.Close()

	return decodeCapture(f, CapturePortFlag, os.Stdout)
}

// responseReader reassembles read responses from the server's side of a
// connection.
type responseReader struct {
	pending [protocol.ResponseSize]byte
	n       int
}

func (r *responseReader) feed(data []byte, fn func(uint32)) {
	for len(data) > 0 {
		copied := copy(r.pending[r.n:], data)
		r.n += copied
		data = data[copied:]
		if r.n == protocol.ResponseSize {
			fn(protocol.DecodeResponse(r.pending[:]))
			r.n = 0
		}
	}
}

// decodeCapture prints the commands and responses exchanged with a bridge
// listening on port. Streams are keyed by the client's endpoint so frames
// split across segments are reassembled. Retransmitted segments are not
// detected and will be printed twice.
func decodeCapture(r io.Reader, port uint16, out io.Writer) error {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("error reading capture: %w", err)
	}

	commands := make(map[string]*protocol.Decoder)
	responses := make(map[string]*responseReader)

	packetSource := gopacket.NewPacketSource(reader, reader.LinkType())
	for packet := range packetSource.Packets() {
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil || packet.NetworkLayer() == nil {
			continue
		}
		tcp := tcpLayer.(*layers.TCP)
		payload := tcp.LayerPayload()
		network := packet.NetworkLayer().NetworkFlow()
		timestamp := packet.Metadata().Timestamp.Format("15:04:05.000000")

		switch {
		case uint16(tcp.DstPort) == port:
			client := fmt.Sprintf("%v:%d", network.Src(), tcp.SrcPort)
			if tcp.SYN {
				fmt.Fprintf(out, "%s %s connected\n", timestamp, client)
				delete(commands, client)
				delete(responses, client)
			}
			if tcp.FIN || tcp.RST {
				fmt.Fprintf(out, "%s %s disconnected\n", timestamp, client)
			}
			if len(payload) == 0 {
				continue
			}

			d, ok := commands[client]
			if !ok {
				d = &protocol.Decoder{}
				commands[client] = d
			}
			d.Feed(payload, func(cmd protocol.Command) {
				fmt.Fprintf(out, "%s %s -> bridge: %v\n", timestamp, client, cmd)
			})

		case uint16(tcp.SrcPort) == port:
			if len(payload) == 0 {
				continue
			}
			client := fmt.Sprintf("%v:%d", network.Dst(), tcp.DstPort)

			rr, ok := responses[client]
			if !ok {
				rr = &responseReader{}
				responses[client] = rr
			}
			rr.feed(payload, func(value uint32) {
				fmt.Fprintf(out, "%s bridge -> %s: value=0x%08x\n", timestamp, client, value)
			})
		}
	}
	return nil
}
