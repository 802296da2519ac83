// Package dmi is a register-level model of a RISC-V debug module as seen
// through its debug module interface. It gives the bridge something to drive
// when no simulated core is attached.
package dmi

// Register addresses on the debug module interface.
const (
	Data0      uint8 = 0x04
	Data1      uint8 = 0x05
	DMControl  uint8 = 0x10
	DMStatus   uint8 = 0x11
	HartInfo   uint8 = 0x12
	AbstractCS uint8 = 0x16
	Command    uint8 = 0x17
	ProgBuf0   uint8 = 0x20
)

const (
	dataCount   = 2
	progBufSize = 8

	dmControlActive    = 1 << 0
	dmControlAckReset  = 1 << 28
	dmControlResumeReq = 1 << 30
	dmControlHaltReq   = 1 << 31

	dmStatusVersion       = 2 // RISC-V debug 0.13
	dmStatusAuthenticated = 1 << 7
	dmStatusAnyHalted     = 1 << 8
	dmStatusAllHalted     = 1 << 9
	dmStatusAnyRunning    = 1 << 10
	dmStatusAllRunning    = 1 << 11
	dmStatusAnyResumeAck  = 1 << 16
	dmStatusAllResumeAck  = 1 << 17

	abstractCSErrShift = 8
	abstractCSErrMask  = 0x7 << abstractCSErrShift

	cmdErrNotSupported = 2
	cmdErrHaltResume   = 4

	// hartinfo: nscratch=1, dataaccess=1, datasize=dataCount, dataaddr=0x380.
	hartInfoValue = 1<<20 | 1<<16 | dataCount<<12 | 0x380
)

// Module holds the state of a single-hart debug module.
type Module struct {
	regs      [256]uint32
	halted    bool
	resumeAck bool

	idleCycles uint64
	reads      uint64
	writes     uint64
}

// New returns a debug module in its post-reset state (inactive, hart running).
func New() *Module {
	m := &Module{}
	m.reset()
	return m
}

func (m *Module) reset() {
	m.regs = [256]uint32{}
	m.regs[AbstractCS] = progBufSize<<24 | dataCount
	m.halted = false
	m.resumeAck = false
}

func (m *Module) active() bool {
	return m.regs[DMControl]&dmControlActive != 0
}

// AdvanceIdle advances the debug transport by one idle cycle.
func (m *Module) AdvanceIdle() {
	m.idleCycles++
}

// WriteRegister writes value to the register at addr. Read-only registers
// ignore writes, as does everything but dmcontrol while the module is inactive.
func (m *Module) WriteRegister(addr uint8, value uint32) {
	m.writes++

	if addr == DMControl {
		m.writeDMControl(value)
		return
	}
	if !m.active() {
		return
	}

	switch addr {
	case DMStatus, HartInfo:
	case AbstractCS:
		// cmderr is write-1-to-clear, everything else is read-only.
		m.regs[AbstractCS] &^= value & abstractCSErrMask
	case Command:
		m.regs[Command] = value
		m.execute()
	default:
		m.regs[addr] = value
	}
}

func (m *Module) writeDMControl(value uint32) {
	if value&dmControlActive == 0 {
		m.reset()
		return
	}

	switch {
	case value&dmControlHaltReq != 0:
		m.halted = true
		m.resumeAck = false
	case value&dmControlResumeReq != 0 && m.halted:
		m.halted = false
		m.resumeAck = true
	}

	// Request bits are not stored.
	m.regs[DMControl] = value &^ (dmControlHaltReq | dmControlResumeReq | dmControlAckReset)
}

// execute runs the abstract command last written to the command register.
// The model has no hart state behind it, so commands only report errors.
func (m *Module) execute() {
	if m.regs[AbstractCS]&abstractCSErrMask != 0 {
		return
	}
	err := uint32(cmdErrNotSupported)
	if !m.halted {
		err = cmdErrHaltResume
	}
	m.regs[AbstractCS] |= err << abstractCSErrShift
}

// ReadRegister returns the current value of the register at addr.
func (m *Module) ReadRegister(addr uint8) uint32 {
	m.reads++

	switch addr {
	case DMControl:
		return m.regs[DMControl]
	case DMStatus:
		return m.status()
	case HartInfo:
		return hartInfoValue
	case Command:
		// Write-only.
		return 0
	}
	if !m.active() {
		return 0
	}
	return m.regs[addr]
}

func (m *Module) status() uint32 {
	status := uint32(dmStatusVersion | dmStatusAuthenticated)
	if m.halted {
		status |= dmStatusAnyHalted | dmStatusAllHalted
	} else {
		status |= dmStatusAnyRunning | dmStatusAllRunning
	}
	if m.resumeAck {
		status |= dmStatusAnyResumeAck | dmStatusAllResumeAck
	}
	return status
}

// State is a point-in-time copy of the module used for diagnostics.
type State struct {
	Active     bool
	Halted     bool
	IdleCycles uint64
	Reads      uint64
	Writes     uint64
	Data       [dataCount]uint32
	ProgBuf    [progBufSize]uint32
}

// Snapshot returns a copy of the module's observable state.
func (m *Module) Snapshot() State {
	s := State{
		Active:     m.active(),
		Halted:     m.halted,
		IdleCycles: m.idleCycles,
		Reads:      m.reads,
		Writes:     m.writes,
	}
	copy(s.Data[:], m.regs[Data0:Data0+dataCount])
	copy(s.ProgBuf[:], m.regs[ProgBuf0:ProgBuf0+progBufSize])
	return s
}
