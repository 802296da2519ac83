package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dcrodman/pjet/internal/trace"
)

// fields splits tabwriter output into whitespace-separated columns per line.
func fields(out string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		rows = append(rows, strings.Fields(line))
	}
	return rows
}

func TestPrintSessions(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.Local)
	ended := start.Add(1500 * time.Millisecond)

	tests := []struct {
		name     string
		sessions []trace.Session
		want     [][]string
	}{
		{
			name:     "no sessions",
			sessions: nil,
			want:     [][]string{{"ID", "CLIENT", "STARTED", "DURATION", "ENDED", "BY"}},
		},
		{
			name: "ended and open sessions",
			sessions: []trace.Session{
				{ID: 1, RemoteAddr: "127.0.0.1:5000", StartedAt: start, EndedAt: &ended, EndReason: "quit"},
				{ID: 2, RemoteAddr: "127.0.0.1:5001", StartedAt: start},
			},
			want: [][]string{
				{"ID", "CLIENT", "STARTED", "DURATION", "ENDED", "BY"},
				{"1", "127.0.0.1:5000", "2026-10-19", "12:00:00", "1.5s", "quit"},
				{"2", "127.0.0.1:5001", "2026-10-19", "12:00:00", "-", "(open)"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			printSessions(out, tt.sessions)

			if diff := cmp.Diff(tt.want, fields(out.String())); diff != "" {
				t.Errorf("unexpected session listing; diff:\n%s", diff)
			}
		})
	}
}

func TestPrintAccesses(t *testing.T) {
	out := &bytes.Buffer{}
	printAccesses(out, []trace.RegisterAccess{
		{SessionID: 1, Seq: 0, Op: "write", Addr: 0x10, Value: 1},
		{SessionID: 1, Seq: 1, Op: "read", Addr: 0x04, Value: 0xdeadbeef},
	})

	want := [][]string{
		{"SEQ", "OP", "ADDR", "VALUE"},
		{"0", "write", "0x10", "0x00000001"},
		{"1", "read", "0x04", "0xdeadbeef"},
	}
	if diff := cmp.Diff(want, fields(out.String())); diff != "" {
		t.Errorf("unexpected access listing; diff:\n%s", diff)
	}
}
