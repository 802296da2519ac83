// Package transport provides a TCP listener and client connection whose
// accept and read operations never wait. They are issued directly against the
// underlying socket so that a caller driven by an external loop can poll them
// once per iteration.
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned when no connection is pending or no data is
// available. It is an expected condition, not a failure.
var ErrWouldBlock = errors.New("operation would block")

// Conn is a client connection as seen by the bridge.
type Conn interface {
	// TryRead reads whatever is available right now into p. It returns
	// ErrWouldBlock if nothing is available and io.EOF once the remote end
	// has closed the stream.
	TryRead(p []byte) (int, error)
	// Write sends p, waiting for socket buffer space if needed.
	Write(p []byte) (int, error)
	RemoteAddr() string
	Close() error
}

// Listener accepts at most one connection per TryAccept call.
type Listener struct {
	socket *net.TCPListener
	raw    syscall.RawConn

	// WriteTimeout bounds every Write on connections accepted by this
	// listener. Zero means writes may wait indefinitely.
	WriteTimeout time.Duration
}

// Listen opens a TCP socket on address. A port of 0 lets the OS choose one,
// which can be found through Addr.
func Listen(address string) (*Listener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address %s: %w", address, err)
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %w", err)
	}

	raw, err := socket.SyscallConn()
	if err != nil {
		_ = socket.Close()
		return nil, fmt.Errorf("error accessing listener socket: %w", err)
	}

	return &Listener{socket: socket, raw: raw}, nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() *net.TCPAddr {
	return l.socket.Addr().(*net.TCPAddr)
}

// Port returns the port the listener is bound to.
func (l *Listener) Port() int {
	return l.Addr().Port
}

// TryAccept accepts a pending connection, returning ErrWouldBlock when there
// is none waiting.
func (l *Listener) TryAccept() (Conn, error) {
	var nfd int
	var opErr error
	err := l.raw.Control(func(fd uintptr) {
		nfd, _, opErr = unix.Accept(int(fd))
	})
	if err != nil {
		return nil, fmt.Errorf("error accessing listener socket: %w", err)
	}

	if opErr != nil {
		if wouldBlock(opErr) || opErr == unix.ECONNABORTED {
			return nil, ErrWouldBlock
		}
		return nil, os.NewSyscallError("accept", opErr)
	}

	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return nil, os.NewSyscallError("setnonblock", err)
	}

	conn, err := newConn(nfd, l.WriteTimeout)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close stops listening. Connections already accepted are unaffected.
func (l *Listener) Close() error {
	return l.socket.Close()
}

type tcpConn struct {
	connection   *net.TCPConn
	raw          syscall.RawConn
	remoteAddr   string
	writeTimeout time.Duration
}

// newConn takes ownership of fd and hands it to the runtime network poller
// so writes and Close go through the regular net.Conn machinery.
func newConn(fd int, writeTimeout time.Duration) (*tcpConn, error) {
	file := os.NewFile(uintptr(fd), "pjet-client")
	defer file.Close()

	c, err := net.FileConn(file)
	if err != nil {
		return nil, fmt.Errorf("error wrapping client socket: %w", err)
	}

	connection, ok := c.(*net.TCPConn)
	if !ok {
		_ = c.Close()
		return nil, fmt.Errorf("unexpected connection type %T", c)
	}
	_ = connection.SetNoDelay(true)

	raw, err := connection.SyscallConn()
	if err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("error accessing client socket: %w", err)
	}

	return &tcpConn{
		connection:   connection,
		raw:          raw,
		remoteAddr:   connection.RemoteAddr().String(),
		writeTimeout: writeTimeout,
	}, nil
}

func (c *tcpConn) TryRead(p []byte) (int, error) {
	var n int
	var opErr error
	err := c.raw.Read(func(fd uintptr) bool {
		n, opErr = unix.Read(int(fd), p)
		// Always report done; the caller polls again on its next iteration.
		return true
	})
	if err != nil {
		return 0, err
	}

	switch {
	case opErr != nil && (wouldBlock(opErr) || opErr == unix.EINTR):
		return 0, ErrWouldBlock
	case opErr != nil:
		return 0, os.NewSyscallError("read", opErr)
	case n == 0 && len(p) > 0:
		return 0, io.EOF
	}
	return n, nil
}

func (c *tcpConn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.connection.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.connection.Write(p)
}

func (c *tcpConn) RemoteAddr() string { return c.remoteAddr }

func (c *tcpConn) Close() error {
	return c.connection.Close()
}

func wouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
