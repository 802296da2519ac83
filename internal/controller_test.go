package internal

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/dcrodman/pjet/internal/core"
	"github.com/dcrodman/pjet/internal/dmi"
	"github.com/dcrodman/pjet/internal/protocol"
	"github.com/dcrodman/pjet/internal/trace"
)

func testConfig(t *testing.T) *core.Config {
	cfg := &core.Config{Hostname: "127.0.0.1"}
	cfg.Bridge.WriteTimeout = time.Second
	cfg.Simulation.TickInterval = time.Millisecond
	cfg.Trace.Enabled = true
	cfg.Trace.Engine = "sqlite"
	cfg.Trace.Filename = filepath.Join(t.TempDir(), "trace.db")
	return cfg
}

func TestController_ServesDebugClient(t *testing.T) {
	cfg := testConfig(t)
	logger, _ := test.NewNullLogger()

	addrs := make(chan *net.TCPAddr, 1)
	controller := &Controller{
		Config:   cfg,
		Logger:   logger,
		OnListen: func(addr *net.TCPAddr) { addrs <- addr },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- controller.Start(ctx) }()

	var addr *net.TCPAddr
	select {
	case addr = <-addrs:
	case err := <-done:
		t.Fatalf("Start() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the bridge to listen")
	}

	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		t.Fatalf("error connecting to bridge: %v", err)
	}
	defer conn.Close()

	var stream []byte
	stream = protocol.Command{Op: protocol.OpWrite, Addr: dmi.DMControl, Value: 1}.AppendTo(stream)
	stream = protocol.Command{Op: protocol.OpWrite, Addr: dmi.Data1, Value: 0x01020304}.AppendTo(stream)
	stream = protocol.Command{Op: protocol.OpRead, Addr: dmi.Data1}.AppendTo(stream)
	if _, err := conn.Write(stream); err != nil {
		t.Fatalf("error writing commands: %v", err)
	}

	response := make([]byte, protocol.ResponseSize)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(conn, response); err != nil {
		t.Fatalf("error reading response: %v", err)
	}
	if diff := cmp.Diff([]byte{0x04, 0x03, 0x02, 0x01}, response); diff != "" {
		t.Errorf("unexpected response bytes; diff:\n%s", diff)
	}

	if _, err := conn.Write([]byte{protocol.OpQuit}); err != nil {
		t.Fatalf("error writing quit: %v", err)
	}
	if _, err := conn.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("expected EOF after quit, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned an unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the controller to stop")
	}

	store, err := trace.Open("sqlite", cfg.Trace.Filename, "", false)
	if err != nil {
		t.Fatalf("error opening trace database: %v", err)
	}
	defer store.Close()

	sessions, err := store.Sessions()
	if err != nil || len(sessions) != 1 {
		t.Fatalf("Sessions() = %+v, %v; want one session", sessions, err)
	}
	if sessions[0].EndReason != "quit" {
		t.Errorf("EndReason = %q, want quit", sessions[0].EndReason)
	}
	accesses, _ := store.Accesses(sessions[0].ID)
	if len(accesses) != 3 {
		t.Errorf("recorded %d accesses, want 3", len(accesses))
	}
}

func TestController_InvalidTickInterval(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.TickInterval = 0
	logger, _ := test.NewNullLogger()

	controller := &Controller{Config: cfg, Logger: logger}
	if err := controller.Start(context.Background()); err == nil {
		t.Error("expected an error for a zero tick interval")
	}
}
