package main

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const bridgePort = 4500

type segment struct {
	fromClient bool
	syn        bool
	payload    []byte
}

// writeCapture serializes segments between 10.0.0.1:50000 and the bridge at
// 10.0.0.2 into an in-memory pcap file.
func writeCapture(t *testing.T, segments []segment) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}

	client, bridge := net.IP{10, 0, 0, 1}, net.IP{10, 0, 0, 2}
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	for i, s := range segments {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 1},
			DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 2},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: client, DstIP: bridge}
		tcp := &layers.TCP{SrcPort: 50000, DstPort: bridgePort, SYN: s.syn, ACK: !s.syn, Window: 1024}
		if !s.fromClient {
			ip.SrcIP, ip.DstIP = bridge, client
			tcp.SrcPort, tcp.DstPort = bridgePort, 50000
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatal(err)
		}

		out := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
		if err := gopacket.SerializeLayers(out, opts, eth, ip, tcp, gopacket.Payload(s.payload)); err != nil {
			t.Fatal(err)
		}
		data := out.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     start.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatal(err)
		}
	}
	return buf
}

func TestDecodeCapture(t *testing.T) {
	capture := writeCapture(t, []segment{
		{fromClient: true, syn: true},
		// A write split across two segments followed by a read.
		{fromClient: true, payload: []byte{'w', 0x04, 0xdd, 0xcc}},
		{fromClient: true, payload: []byte{0xbb, 0xaa, 'r', 0x04}},
		{fromClient: false, payload: []byte{0xdd, 0xcc}},
		{fromClient: false, payload: []byte{0xbb, 0xaa}},
		{fromClient: true, payload: []byte{'x', 'Q'}},
	})

	out := &bytes.Buffer{}
	if err := decodeCapture(capture, bridgePort, out); err != nil {
		t.Fatalf("decodeCapture() returned an unexpected error: %v", err)
	}

	var got []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		// Drop the timestamp.
		got = append(got, line[strings.Index(line, " ")+1:])
	}
	want := []string{
		"10.0.0.1:50000 connected",
		"10.0.0.1:50000 -> bridge: write addr=0x04 value=0xaabbccdd",
		"10.0.0.1:50000 -> bridge: read addr=0x04",
		"bridge -> 10.0.0.1:50000: value=0xaabbccdd",
		"10.0.0.1:50000 -> bridge: unknown opcode 'x' (0x78)",
		"10.0.0.1:50000 -> bridge: quit",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected decoded traffic; diff:\n%s", diff)
	}
}

func TestDecodeCapture_NotAPcap(t *testing.T) {
	if err := decodeCapture(strings.NewReader("not a capture"), bridgePort, &bytes.Buffer{}); err == nil {
		t.Error("expected an error for an invalid capture file")
	}
}
