// Package bridge connects a single remote debug client to an in-process debug
// module. It is driven entirely by the host simulation calling Tick once per
// step: each call does a bounded amount of work and never waits for the
// client to connect or send data.
package bridge

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pjet/internal/core/bytes"
	"github.com/dcrodman/pjet/internal/core/metrics"
	"github.com/dcrodman/pjet/internal/transport"
)

// DebugModule is the debug-access interface of the simulated core.
type DebugModule interface {
	// AdvanceIdle moves the debug transport through one idle cycle. It is
	// called once before every command.
	AdvanceIdle()
	WriteRegister(addr uint8, value uint32)
	ReadRegister(addr uint8) uint32
}

// Acceptor is the listening side of the bridge. TryAccept returns
// transport.ErrWouldBlock when no client is waiting.
type Acceptor interface {
	TryAccept() (transport.Conn, error)
	Close() error
}

// Blinker receives the diagnostic blink commands.
type Blinker interface {
	Blink(on bool)
}

// Access is a single register read or write performed on behalf of a client.
type Access struct {
	Op    byte
	Addr  uint8
	Value uint32
}

// Recorder persists a history of client sessions. Failures are logged and
// otherwise ignored.
type Recorder interface {
	StartSession(remoteAddr string, at time.Time) (uint64, error)
	// RecordAccesses is called once per batch with the accesses it made, in
	// order. The slice is reused after the call returns.
	RecordAccesses(session uint64, accesses []Access) error
	EndSession(session uint64, reason string, at time.Time) error
}

// Reasons a client session ends.
const (
	ReasonQuit     = "quit"
	ReasonEOF      = "eof"
	ReasonShutdown = "shutdown"
)

// Config contains the collaborators and options for a Bridge. Listener,
// Module and Logger are required.
type Config struct {
	Listener Acceptor
	Module   DebugModule
	Logger   logrus.FieldLogger

	Blinker  Blinker
	Recorder Recorder
	Metrics  *metrics.Collectors

	// Repeated warnings about the same unrecognized opcode inside this window
	// are logged at debug level. Zero warns about every occurrence.
	UnknownOpcodeWindow time.Duration
	// Dump every received batch and response to the debug log.
	PacketLogging bool
}

// Bridge owns the listener, at most one client connection, and the buffers
// reused on every tick.
type Bridge struct {
	listener Acceptor
	logger   logrus.FieldLogger
	recorder Recorder
	metrics  *metrics.Collectors
	debug    bool

	client  transport.Conn
	session uint64

	frame  *frameBuffer
	engine *engine
}

func New(cfg Config) *Bridge {
	return &Bridge{
		listener: cfg.Listener,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		debug:    cfg.PacketLogging,
		frame:    &frameBuffer{},
		engine:   newEngine(&cfg),
	}
}

// Connected reports whether a client is currently attached.
func (b *Bridge) Connected() bool { return b.client != nil }

// Tick does one step of work: accept a client if there is none, read
// whatever the client has sent, execute it and send back the responses.
// Recoverable conditions (nothing to accept or read, the client leaving)
// are handled internally; the only errors returned are *FatalError.
func (b *Bridge) Tick() error {
	if b.client == nil {
		if err := b.accept(); err != nil {
			return err
		}
		if b.client == nil {
			return nil
		}
	}
	return b.service()
}

func (b *Bridge) accept() error {
	conn, err := b.listener.TryAccept()
	if errors.Is(err, transport.ErrWouldBlock) {
		return nil
	} else if err != nil {
		return &FatalError{Op: "accept", Err: err}
	}

	b.client = conn
	b.frame.reset()
	b.metrics.SessionStarted()

	if b.recorder != nil {
		session, err := b.recorder.StartSession(conn.RemoteAddr(), time.Now())
		if err != nil {
			b.logger.Warnf("failed to record session start: %v", err)
		}
		b.session = session
	}

	b.logger.WithFields(logrus.Fields{
		"client":  conn.RemoteAddr(),
		"session": b.session,
	}).Info("accepted connection")
	return nil
}

// service runs the I/O step for an attached client: at most one read, one
// batch and one flush.
func (b *Bridge) service() error {
	if !b.frame.ready() {
		b.frame.compact()

		n, err := b.client.TryRead(b.frame.free())
		switch {
		case errors.Is(err, transport.ErrWouldBlock):
			return nil
		case errors.Is(err, io.EOF), err == nil && n == 0:
			b.logger.Infof("client %s closed the connection", b.client.RemoteAddr())
			b.disconnect(ReasonEOF)
			return nil
		case err != nil:
			return &FatalError{Op: "read", Err: err}
		}

		if b.debug {
			b.logger.Debugf("received %d bytes from %s:\n%s",
				n, b.client.RemoteAddr(), bytes.FormatPayload(b.frame.free()[:n]))
		}
		b.frame.fill(n)
		b.metrics.Received(n)
	}

	quit, processed := b.engine.drain(b.frame)
	if processed > 0 {
		b.metrics.Batch(processed)
	}

	if err := b.flush(); err != nil {
		return err
	}
	b.recordBatch()

	if quit {
		b.logger.Infof("client %s sent quit", b.client.RemoteAddr())
		b.disconnect(ReasonQuit)
	}
	return nil
}

// flush writes every response byte from the last batch, retrying until the
// socket has accepted all of it.
func (b *Bridge) flush() error {
	data := b.engine.pendingResponse()
	if len(data) == 0 {
		return nil
	}

	if b.debug {
		b.logger.Debugf("sending %d bytes to %s:\n%s",
			len(data), b.client.RemoteAddr(), bytes.FormatPayload(data))
	}

	for sent := 0; sent < len(data); {
		n, err := b.client.Write(data[sent:])
		if err != nil {
			return &FatalError{Op: "write", Err: err}
		}
		sent += n
	}
	b.metrics.Sent(len(data))
	return nil
}

func (b *Bridge) recordBatch() {
	if b.recorder == nil || len(b.engine.accesses) == 0 {
		return
	}
	if err := b.recorder.RecordAccesses(b.session, b.engine.accesses); err != nil {
		b.logger.Warnf("failed to record register accesses: %v", err)
	}
}

// disconnect closes the client and makes the bridge eligible to accept a new
// one on the next tick. Anything left in the receive buffer is discarded.
func (b *Bridge) disconnect(reason string) {
	addr := b.client.RemoteAddr()
	if err := b.client.Close(); err != nil {
		b.logger.Warnf("failed to close client connection: %s", err)
	}
	b.client = nil
	b.frame.reset()
	b.metrics.SessionEnded(reason)

	if b.recorder != nil {
		if err := b.recorder.EndSession(b.session, reason, time.Now()); err != nil {
			b.logger.Warnf("failed to record session end: %v", err)
		}
		b.session = 0
	}

	b.logger.Infof("disconnected client %s (%s)", addr, reason)
}

// Close disconnects any attached client and stops listening.
func (b *Bridge) Close() error {
	if b.client != nil {
		b.disconnect(ReasonShutdown)
	}
	return b.listener.Close()
}
