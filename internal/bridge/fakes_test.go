package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/dcrodman/pjet/internal/transport"
)

// fakeModule records every call made against it in order.
type fakeModule struct {
	calls  []string
	values map[uint8]uint32
}

func newFakeModule() *fakeModule {
	return &fakeModule{values: make(map[uint8]uint32)}
}

func (m *fakeModule) AdvanceIdle() { m.calls = append(m.calls, "idle") }

func (m *fakeModule) WriteRegister(addr uint8, value uint32) {
	m.calls = append(m.calls, fmt.Sprintf("write(0x%02x, 0x%08x)", addr, value))
	m.values[addr] = value
}

func (m *fakeModule) ReadRegister(addr uint8) uint32 {
	m.calls = append(m.calls, fmt.Sprintf("read(0x%02x)", addr))
	return m.values[addr]
}

// fakeConn serves queued reads and collects everything written to it.
type fakeConn struct {
	reads    [][]byte
	readErrs []error
	written  []byte
	closed   bool

	readCalls  int
	writeCalls int
	// Limits how many bytes a single Write accepts; zero means no limit.
	writeChunk int
	writeErr   error
}

func (c *fakeConn) queue(data ...byte) {
	c.reads = append(c.reads, data)
	c.readErrs = append(c.readErrs, nil)
}

func (c *fakeConn) queueErr(err error) {
	c.reads = append(c.reads, nil)
	c.readErrs = append(c.readErrs, err)
}

func (c *fakeConn) TryRead(p []byte) (int, error) {
	c.readCalls++
	if len(c.reads) == 0 {
		return 0, transport.ErrWouldBlock
	}
	data, err := c.reads[0], c.readErrs[0]
	c.reads, c.readErrs = c.reads[1:], c.readErrs[1:]
	if err != nil {
		return 0, err
	}
	return copy(p, data), nil
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeCalls++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	n := len(p)
	if c.writeChunk > 0 && n > c.writeChunk {
		n = c.writeChunk
	}
	c.written = append(c.written, p[:n]...)
	return n, nil
}

func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:40000" }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// fakeListener hands out queued connections one per TryAccept.
type fakeListener struct {
	pending   []*fakeConn
	acceptErr error
	accepts   int
	closed    bool
}

func (l *fakeListener) TryAccept() (transport.Conn, error) {
	l.accepts++
	if l.acceptErr != nil {
		return nil, l.acceptErr
	}
	if len(l.pending) == 0 {
		return nil, transport.ErrWouldBlock
	}
	c := l.pending[0]
	l.pending = l.pending[1:]
	return c, nil
}

func (l *fakeListener) Close() error {
	l.closed = true
	return nil
}

type fakeBlinker struct{ states []bool }

func (b *fakeBlinker) Blink(on bool) { b.states = append(b.states, on) }

type recordedSession struct {
	remoteAddr string
	accesses   []Access
	reason     string
}

type fakeRecorder struct {
	sessions []*recordedSession
	fail     bool
}

var errRecorder = errors.New("recorder unavailable")

func (r *fakeRecorder) StartSession(remoteAddr string, _ time.Time) (uint64, error) {
	if r.fail {
		return 0, errRecorder
	}
	r.sessions = append(r.sessions, &recordedSession{remoteAddr: remoteAddr})
	return uint64(len(r.sessions)), nil
}

func (r *fakeRecorder) RecordAccesses(session uint64, accesses []Access) error {
	if r.fail {
		return errRecorder
	}
	s := r.sessions[session-1]
	s.accesses = append(s.accesses, accesses...)
	return nil
}

func (r *fakeRecorder) EndSession(session uint64, reason string, _ time.Time) error {
	if r.fail {
		return errRecorder
	}
	r.sessions[session-1].reason = reason
	return nil
}

var (
	_ transport.Conn = (*fakeConn)(nil)
	_ Acceptor       = (*fakeListener)(nil)
)
