package bridge

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/pjet/internal/core/metrics"
	"github.com/dcrodman/pjet/internal/protocol"
)

// responseCapacity covers a buffer consisting entirely of reads, each of
// which produces more output than it consumes.
const responseCapacity = frameCapacity / 2 * protocol.ResponseSize

// engine executes buffered commands against the debug module.
type engine struct {
	module  DebugModule
	blinker Blinker
	logger  logrus.FieldLogger
	metrics *metrics.Collectors

	// Tracks which unrecognized opcodes were warned about recently.
	warned     *gocache.Cache
	warnWindow time.Duration

	response    [responseCapacity]byte
	responseLen int

	record   bool
	accesses []Access
}

func newEngine(cfg *Config) *engine {
	e := &engine{
		module:  cfg.Module,
		blinker: cfg.Blinker,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		record:  cfg.Recorder != nil,
	}
	if cfg.UnknownOpcodeWindow > 0 {
		// At most 256 keys, so expired entries are left for Add to overwrite
		// rather than starting a janitor goroutine.
		e.warned = gocache.New(cfg.UnknownOpcodeWindow, 0)
		e.warnWindow = cfg.UnknownOpcodeWindow
	}
	if e.record {
		e.accesses = make([]Access, 0, frameCapacity/protocol.FrameLength(protocol.OpRead))
	}
	return e
}

// drain executes every complete command in the unconsumed region of f,
// stopping early after a quit. The responses produced are available through
// pendingResponse until the next call. It reports whether the client asked to
// quit and how many bytes were consumed.
func (e *engine) drain(f *frameBuffer) (quit bool, processed int) {
	e.responseLen = 0
	e.accesses = e.accesses[:0]

	for !f.empty() {
		// Cannot trip while frame lengths fit in the buffer.
		if processed > frameCapacity {
			e.logger.Warnf("aborting batch after processing %d bytes", processed)
			break
		}

		cmd, n, ok := protocol.Decode(f.pending())
		if !ok {
			// The rest of this frame has not arrived yet.
			break
		}

		e.module.AdvanceIdle()
		quit = e.execute(cmd)
		f.consume(n)
		processed += n

		if quit {
			break
		}
	}
	return quit, processed
}

func (e *engine) execute(cmd protocol.Command) (quit bool) {
	e.metrics.Command(cmd.Op)

	switch cmd.Op {
	case protocol.OpBlinkOn:
		e.blink(true)
	case protocol.OpBlinkOff:
		e.blink(false)
	case protocol.OpWrite:
		e.module.WriteRegister(cmd.Addr, cmd.Value)
		e.recordAccess(cmd.Op, cmd.Addr, cmd.Value)
	case protocol.OpRead:
		value := e.module.ReadRegister(cmd.Addr)
		protocol.PutResponse(e.response[e.responseLen:], value)
		e.responseLen += protocol.ResponseSize
		e.recordAccess(cmd.Op, cmd.Addr, value)
	case protocol.OpQuit:
		return true
	default:
		e.unsupported(cmd.Op)
	}
	return false
}

func (e *engine) blink(on bool) {
	if e.blinker != nil {
		e.blinker.Blink(on)
		return
	}
	if on {
		e.logger.Info("*BLINK*")
	} else {
		e.logger.Info("_______")
	}
}

func (e *engine) unsupported(op byte) {
	if e.warned == nil {
		e.logger.Warnf("got unsupported command %q", op)
		return
	}

	key := fmt.Sprintf("%02x", op)
	log := e.logger.WithField("opcode", key)
	if err := e.warned.Add(key, struct{}{}, gocache.DefaultExpiration); err == nil {
		log.Warnf("got unsupported command %q (repeats within %v logged at debug level)", op, e.warnWindow)
	} else {
		log.Debugf("got unsupported command %q", op)
	}
}

func (e *engine) recordAccess(op byte, addr uint8, value uint32) {
	if !e.record {
		return
	}
	e.accesses = append(e.accesses, Access{Op: op, Addr: addr, Value: value})
}

func (e *engine) pendingResponse() []byte {
	return e.response[:e.responseLen]
}
