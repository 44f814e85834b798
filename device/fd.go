package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/metrics"
	"github.com/moffa90/go-pldm/protocol"
)

// FD is the firmware device side of a PLDM firmware update. It is driven by
// Step: every incoming message and every timer tick goes through it, and it
// returns at most one message to send.
//
// Step must not be called concurrently; a second concurrent call answers
// requests with NotReady. The accessors are safe to call at any time.
type FD struct {
	ops    Ops
	config Config
	iids   *protocol.InstanceIDs
	busy   atomic.Bool

	// mu guards st. Only Step writes st, and it never holds mu across an
	// Ops call.
	mu sync.Mutex
	st fdState
}

// fdState is the mutable state of the FD.
type fdState struct {
	state  fwupdate.State
	prev   fwupdate.State
	reason fwupdate.ReasonCode

	auxState  fwupdate.AuxState
	auxStatus fwupdate.AuxStateStatus

	tid uint8

	maxXfer       uint32
	numComponents uint16
	passed        int
	passResults   []fwupdate.ComponentResponseCode
	params        *fwupdate.FirmwareParameters

	component fwupdate.FirmwareComponent
	flags     fwupdate.UpdateOptionFlags
	download  downloadWindow
	applied   int

	verifyProgress uint8
	applyProgress  uint8

	t1  time.Time
	req reqSlot
}

// downloadWindow is the last chunk requested with RequestFirmwareData.
type downloadWindow struct {
	offset uint32
	length uint32
}

// New creates an FD backed by ops.
//
// Example:
//
//	fd := device.New(ops,
//	    device.WithLogger(logger),
//	    device.WithT1Timeout(60*time.Second),
//	)
func New(ops Ops, opts ...Option) *FD {
	if ops == nil {
		panic("ops cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &FD{
		ops:    ops,
		config: cfg,
		iids:   protocol.NewInstanceIDs(0),
		st: fdState{
			state:    fwupdate.StateIdle,
			prev:     fwupdate.StateIdle,
			reason:   fwupdate.ReasonInitialization,
			auxState: fwupdate.AuxIdleLearnComponentsReadyXfer,
			tid:      cfg.TID,
		},
	}
}

// Step processes one incoming message, or a timer tick when in is nil.
//
// A request returns its response. A response is matched against the
// outstanding FD request and may return the next FD request. A tick checks
// the inactivity timeout and the retry timer and may return an FD request.
func (fd *FD) Step(ctx context.Context, now time.Time, in []byte) ([]byte, error) {
	if !fd.busy.CompareAndSwap(false, true) {
		if hdr, err := protocol.UnpackHeader(in); err == nil && hdr.Request {
			return protocol.EncodeFailure(hdr, protocol.NotReady)
		}
		return nil, ErrBusy
	}
	defer fd.busy.Store(false)

	if in == nil {
		fd.Tick(now)
		return fd.poll(ctx, now)
	}

	hdr, err := protocol.UnpackHeader(in)
	if err != nil {
		if len(in) < protocol.HeaderSize || !hdr.Request {
			return nil, err
		}
		hdr.Version = protocol.HeaderVersion
		fd.logDebug("malformed header", "header", hdr, "error", err.Error())
		return fd.fail(hdr, protocol.InvalidData)
	}

	if hdr.Request {
		return fd.handleRequest(ctx, now, hdr, in)
	}
	if err := fd.handleResponse(ctx, now, hdr, in); err != nil {
		return nil, err
	}
	return fd.poll(ctx, now)
}

// Tick forces Idle when the FD has been in a non-Idle state for longer than
// the T1 timeout without hearing from the update agent.
func (fd *FD) Tick(now time.Time) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	s := &fd.st
	if s.state == fwupdate.StateIdle || s.t1.IsZero() {
		return
	}
	if now.Sub(s.t1) <= fd.config.T1Timeout {
		return
	}

	reason := fwupdate.TimeoutReason(s.state)
	fd.config.Logger.Info("update timed out", "state", s.state, "reason", reason)
	if s.state != fwupdate.StateActivate {
		s.auxState = fwupdate.AuxOperationFailed
		s.auxStatus = fwupdate.AuxStatusTimeout
	}
	fd.toIdleLocked(reason)
}

// State returns the current FD state.
func (fd *FD) State() fwupdate.State {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.st.state
}

// Status is a snapshot of the FD state as reported by GetStatus.
type Status struct {
	State           fwupdate.State
	PreviousState   fwupdate.State
	Reason          fwupdate.ReasonCode
	AuxState        fwupdate.AuxState
	AuxStateStatus  fwupdate.AuxStateStatus
	MaxTransferSize uint32
	Component       fwupdate.FirmwareComponent
	Applied         int
}

// Status returns a snapshot of the FD state.
func (fd *FD) Status() Status {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	s := &fd.st
	return Status{
		State:           s.state,
		PreviousState:   s.prev,
		Reason:          s.reason,
		AuxState:        s.auxState,
		AuxStateStatus:  s.auxStatus,
		MaxTransferSize: s.maxXfer,
		Component:       s.component,
		Applied:         s.applied,
	}
}

// TID returns the terminus ID of the FD.
func (fd *FD) TID() uint8 {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.st.tid
}

// Outstanding reports whether an FD request is waiting for its response.
func (fd *FD) Outstanding() bool {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.st.req.state == slotSent
}

// DownloadWindow returns the offset and length of the last requested chunk.
func (fd *FD) DownloadWindow() (offset, length uint32) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.st.download.offset, fd.st.download.length
}

// transitionLocked moves to state to. mu must be held.
func (fd *FD) transitionLocked(to fwupdate.State) {
	s := &fd.st
	if s.state == to {
		return
	}
	from := s.state
	s.prev = from
	s.state = to

	fd.logDebug("state transition", "from", from, "to", to)
	if fd.config.Metrics {
		metrics.FDStateTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
	}
}

// toIdleLocked leaves update mode with reason. mu must be held.
func (fd *FD) toIdleLocked(reason fwupdate.ReasonCode) {
	s := &fd.st
	s.reason = reason
	s.component = fwupdate.FirmwareComponent{}
	s.flags = 0
	s.download = downloadWindow{}
	s.passed = 0
	s.passResults = nil
	s.params = nil
	s.numComponents = 0
	s.verifyProgress = 0
	s.applyProgress = 0
	s.applied = 0
	s.t1 = time.Time{}
	s.req = reqSlot{}
	fd.transitionLocked(fwupdate.StateIdle)
}

// fail encodes a response to hdr carrying only cc.
func (fd *FD) fail(hdr protocol.Header, cc protocol.CompletionCode) ([]byte, error) {
	return fd.respond(hdr, protocol.CodeResponse{CompletionCode: cc})
}

// respond encodes the response to hdr and records it.
func (fd *FD) respond(hdr protocol.Header, p protocol.Encoder) ([]byte, error) {
	resp, err := protocol.EncodeMessage(hdr.Response(), p)
	if err != nil {
		return nil, fmt.Errorf("encode %s response: %w", commandName(hdr), err)
	}
	if fd.config.Metrics {
		cc, _ := protocol.ResponseCode(resp)
		metrics.FDRequestsTotal.WithLabelValues(commandName(hdr), metrics.CodeLabel(uint8(cc))).Inc()
	}
	return resp, nil
}

func commandName(hdr protocol.Header) string {
	if hdr.Type == protocol.TypeFirmwareUpdate {
		return fwupdate.CommandName(hdr.Command)
	}
	return protocol.ControlCommandName(hdr.Command)
}

// logDebug logs at verbosity 1.
func (fd *FD) logDebug(msg string, keysAndValues ...interface{}) {
	fd.config.Logger.V(1).Info(msg, keysAndValues...)
}
