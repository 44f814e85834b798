package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"

	"github.com/moffa90/go-pldm/fwpkg"
	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/metrics"
	"github.com/moffa90/go-pldm/protocol"
	"github.com/moffa90/go-pldm/transport"
)

// Agent updates one firmware device with a firmware package.
//
// Two state machines drive it: discovery, which checks what the FD supports,
// and update, which runs the firmware update proper. Both run on a single
// event loop fed by the socket, a timer and Cancel.
type Agent struct {
	sock   transport.Socket
	pkg    *fwpkg.Package
	config Config
	log    logr.Logger

	ids   *protocol.InstanceIDs
	inbox chan input
	queue []event

	discovery *fsm.FSM
	update    *fsm.FSM

	// Owned by the event loop.
	now          time.Time
	started      time.Time
	lastRx       time.Time
	req          *outstanding
	versions     map[uint8]protocol.Ver32
	inUpdate     bool
	params       *fwupdate.FirmwareParameters
	comps        []component
	passed       int
	current      int
	startedComps int
	applied      int
	rejected     []*ComponentRejectedError

	mu             sync.Mutex
	record         int
	descriptors    []fwupdate.Descriptor
	activationTime uint16
	err            error
	finished       bool
	done           chan struct{}
}

type componentStatus int

const (
	compPending componentStatus = iota
	compUpdating
	compApplied
	compSkipped
)

// component is a selected component and how far it got.
type component struct {
	Selection
	passCode fwupdate.ComponentResponseCode
	status   componentStatus
}

// outstanding is the request awaiting a response.
type outstanding struct {
	hdr     protocol.Header
	msg     []byte
	sentAt  time.Time
	retries int
}

// input is one item of the event loop inbox.
type input struct {
	at     time.Time
	msg    []byte
	err    error
	cancel bool
}

// event is a state machine event queued by an action.
type event struct {
	machine *fsm.FSM
	name    string
	arg     interface{}
}

// New creates an Agent that updates the FD on the other end of sock with pkg.
//
// Example:
//
//	pkg, _ := fwpkg.Load("manifest.yaml")
//	ua := agent.New(sock, pkg,
//	    agent.WithLogger(logger),
//	    agent.WithProgressCallback(progressFunc),
//	)
//	err := ua.Run(ctx)
func New(sock transport.Socket, pkg *fwpkg.Package, opts ...Option) *Agent {
	if sock == nil {
		panic("socket cannot be nil")
	}
	if pkg == nil {
		panic("package cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Agent{
		sock:     sock,
		pkg:      pkg,
		config:   cfg,
		log:      cfg.Logger.WithName("agent"),
		ids:      protocol.NewInstanceIDs(0),
		inbox:    make(chan input, cfg.QueueSize),
		versions: make(map[uint8]protocol.Ver32),
		current:  -1,
		record:   -1,
		done:     make(chan struct{}),
	}
	a.discovery = newDiscoveryFSM(a)
	a.update = newUpdateFSM(a)
	return a
}

// Run performs the update and returns its result. It returns once the update
// is done, ctx is cancelled or the socket fails. Run must be called once.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.receive(gctx)
	})
	g.Go(func() error {
		defer cancel()
		a.loop(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return a.Err()
}

// Cancel stops the update. The FD is told to leave update mode if it
// entered it.
func (a *Agent) Cancel() {
	select {
	case a.inbox <- input{at: time.Now(), cancel: true}:
	case <-a.done:
	}
}

// Done is closed when the update has finished.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Err returns the result of a finished update.
func (a *Agent) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// State returns the state of the update machine.
func (a *Agent) State() string {
	return a.update.Current()
}

// DiscoveryState returns the state of the discovery machine.
func (a *Agent) DiscoveryState() string {
	return a.discovery.Current()
}

// DeviceID returns the device record matched to the FD, once known.
func (a *Agent) DeviceID() (*fwpkg.DeviceIDRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.record < 0 {
		return nil, false
	}
	return &a.pkg.DeviceIDRecords[a.record], true
}

// Descriptors returns the descriptors the FD reported.
func (a *Agent) Descriptors() []fwupdate.Descriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]fwupdate.Descriptor(nil), a.descriptors...)
}

// ActivationTime returns the activation time estimated by the FD.
func (a *Agent) ActivationTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Duration(a.activationTime) * time.Second
}

func (a *Agent) receive(ctx context.Context) error {
	for {
		msg, err := a.sock.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				a.post(ctx, input{at: time.Now(), err: err})
			}
			return nil
		}
		if !a.post(ctx, input{at: time.Now(), msg: msg}) {
			return nil
		}
	}
}

func (a *Agent) post(ctx context.Context, in input) bool {
	select {
	case a.inbox <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *Agent) loop(ctx context.Context) {
	a.begin(ctx, time.Now())

	ticker := time.NewTicker(a.tickInterval())
	defer ticker.Stop()

	for !a.isFinished() {
		select {
		case <-ctx.Done():
			a.handle(ctx, input{at: time.Now(), cancel: true, err: ctx.Err()})
		case in := <-a.inbox:
			a.handle(ctx, in)
		case now := <-ticker.C:
			a.handle(ctx, input{at: now})
		}
	}
}

func (a *Agent) tickInterval() time.Duration {
	d := a.config.ResponseTimeout / 5
	switch {
	case d < 10*time.Millisecond:
		return 10 * time.Millisecond
	case d > time.Second:
		return time.Second
	}
	return d
}

// begin starts discovery, or the update when discovery is skipped.
func (a *Agent) begin(ctx context.Context, now time.Time) {
	a.now = now
	a.started = now
	a.lastRx = now
	a.log.Info("starting update", "components", len(a.pkg.Components), "records", len(a.pkg.DeviceIDRecords))
	if a.config.Discovery.Start() {
		a.push(a.discovery, evNext)
	} else {
		a.push(a.update, evStart)
	}
	a.drain(ctx)
}

// handle processes one input and every event it causes.
func (a *Agent) handle(ctx context.Context, in input) {
	if a.isFinished() {
		return
	}
	a.now = in.at

	switch {
	case in.cancel:
		err := ErrCancelled
		if in.err != nil {
			err = fmt.Errorf("%w: %w", ErrCancelled, in.err)
		}
		a.finish(err)
	case in.err != nil:
		a.finish(fmt.Errorf("receive: %w", in.err))
	case in.msg != nil:
		a.dispatch(ctx, in.msg)
	default:
		a.checkTimeouts(ctx)
	}
	a.drain(ctx)
}

func (a *Agent) drain(ctx context.Context) {
	for len(a.queue) > 0 {
		ev := a.queue[0]
		a.queue = a.queue[1:]
		a.fire(ctx, ev)
	}
}

func (a *Agent) push(m *fsm.FSM, name string) {
	a.queue = append(a.queue, event{machine: m, name: name})
}

// finish flushes the queue and ends the update with err.
func (a *Agent) finish(err error) {
	if a.update.Is(StateDone) {
		return
	}
	a.queue = []event{{machine: a.update, name: evFinish, arg: err}}
}

func (a *Agent) fire(ctx context.Context, ev event) {
	err := ev.machine.Event(ev.name, ctx, ev.arg)
	var noTransition fsm.NoTransitionError
	if err == nil || errors.As(err, &noTransition) {
		return
	}
	a.log.Error(err, "state machine event rejected", "event", ev.name, "state", ev.machine.Current())
	if ev.name != evFinish {
		a.finish(fmt.Errorf("event %s in state %s: %w", ev.name, ev.machine.Current(), err))
	}
}

func eventContext(e *fsm.Event) context.Context {
	if len(e.Args) > 0 {
		if ctx, ok := e.Args[0].(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}

func eventArg(e *fsm.Event) interface{} {
	if len(e.Args) > 1 {
		return e.Args[1]
	}
	return nil
}

// request sends a request and makes it the outstanding one.
func (a *Agent) request(ctx context.Context, pldmType, cmd uint8, p protocol.Encoder) {
	hdr := protocol.NewRequestHeader(a.ids.Next(), pldmType, cmd)
	msg, err := protocol.EncodeMessage(hdr, p)
	if err != nil {
		a.finish(err)
		return
	}

	a.req = &outstanding{hdr: hdr, msg: msg, sentAt: a.now}
	a.log.V(1).Info("sending request", "command", commandName(pldmType, cmd), "instanceID", hdr.InstanceID)
	if err := a.sock.Send(ctx, msg); err != nil {
		a.finish(fmt.Errorf("send %s: %w", commandName(pldmType, cmd), err))
	}
}

// checkTimeouts resends an unanswered request or gives up on a silent FD.
func (a *Agent) checkTimeouts(ctx context.Context) {
	if r := a.req; r != nil {
		if a.now.Sub(r.sentAt) < a.config.ResponseTimeout {
			return
		}
		name := commandName(r.hdr.Type, r.hdr.Command)
		if r.retries >= a.config.Retries {
			a.finish(fmt.Errorf("%w: no response to %s", ErrTimeout, name))
			return
		}
		r.retries++
		r.sentAt = a.now
		a.log.Info("resending request", "command", name, "instanceID", r.hdr.InstanceID, "attempt", r.retries)
		if err := a.sock.Send(ctx, r.msg); err != nil {
			a.finish(fmt.Errorf("send %s: %w", name, err))
		}
		return
	}

	switch a.update.Current() {
	case StateDownload, StateVerify, StateApply:
		if a.now.Sub(a.lastRx) >= a.config.InactivityTimeout {
			a.finish(fmt.Errorf("%w: no request from the FD in %s", ErrTimeout, a.update.Current()))
		}
	}
}

// dispatch routes a received message.
func (a *Agent) dispatch(ctx context.Context, msg []byte) {
	hdr, err := protocol.DecodeMessage(msg, nil)
	if err != nil {
		a.drop(hdr, "undecodable message", err)
		return
	}

	if hdr.Request {
		a.lastRx = a.now
		out, err := a.respond(hdr, msg)
		if err != nil {
			a.log.Error(err, "encoding response", "command", commandName(hdr.Type, hdr.Command))
			return
		}
		if err := a.sock.Send(ctx, out); err != nil {
			a.finish(fmt.Errorf("send response: %w", err))
		}
		return
	}

	if a.req == nil || !a.req.hdr.Matches(hdr) {
		a.drop(hdr, "unexpected response", nil)
		return
	}
	a.req = nil
	a.lastRx = a.now
	a.log.V(1).Info("response received", "command", commandName(hdr.Type, hdr.Command), "instanceID", hdr.InstanceID)

	switch hdr.Type {
	case protocol.TypeBase:
		err = a.discoveryResponse(ctx, hdr, msg)
	default:
		err = a.updateResponse(ctx, hdr, msg)
	}
	if err != nil {
		a.finish(err)
	}
}

func (a *Agent) drop(hdr protocol.Header, why string, err error) {
	if err == nil {
		err = errors.New(why)
	}
	a.log.Error(err, "dropping message", "header", hdr.String(), "state", a.update.Current())
	if a.config.Metrics {
		metrics.UADroppedMessagesTotal.Inc()
	}
}

// complete records the result once the update machine is Done.
func (a *Agent) complete(ctx context.Context, err error) {
	a.req = nil
	if err != nil && a.inUpdate {
		a.cancelUpdate(ctx)
	}
	if !a.discovery.Is(DiscoveryDone) {
		_ = a.discovery.Event(evCancel, ctx)
	}

	a.mu.Lock()
	a.err = err
	a.finished = true
	a.mu.Unlock()

	result := metrics.ResultSuccess
	switch {
	case errors.Is(err, ErrCancelled):
		result = metrics.ResultCancelled
	case errors.Is(err, ErrNothingToUpdate):
		result = metrics.ResultNothingToDo
	case err != nil:
		result = metrics.ResultFailure
	}
	if a.config.Metrics {
		metrics.UAUpdatesTotal.WithLabelValues(result).Inc()
	}

	if err != nil {
		a.log.Error(err, "update finished", "result", result, "elapsed", a.now.Sub(a.started).String())
	} else {
		a.log.Info("update finished", "result", result, "applied", a.applied,
			"elapsed", a.now.Sub(a.started).String())
		a.report(Progress{Phase: PhaseComplete, Percentage: 100})
	}
	close(a.done)
}

// cancelUpdate tells the FD to leave update mode without waiting for the
// answer.
func (a *Agent) cancelUpdate(ctx context.Context) {
	hdr := protocol.NewRequestHeader(a.ids.Next(), protocol.TypeFirmwareUpdate, fwupdate.CmdCancelUpdate)
	msg, err := protocol.EncodeMessage(hdr, nil)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.ResponseTimeout)
	defer cancel()
	if err := a.sock.Send(ctx, msg); err != nil {
		a.log.Error(err, "sending CancelUpdate")
	}
	a.inUpdate = false
}

func (a *Agent) isFinished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished
}

func (a *Agent) report(p Progress) {
	if a.config.ProgressCallback == nil {
		return
	}
	p.Component = -1
	if a.current >= 0 && a.current < len(a.comps) {
		p.Component = a.comps[a.current].Image
	}
	p.CurrentComponent = a.startedComps
	p.TotalComponents = len(a.comps)
	p.ElapsedTime = a.now.Sub(a.started)
	a.config.ProgressCallback(p)
}

func commandName(pldmType, cmd uint8) string {
	if pldmType == protocol.TypeBase {
		return protocol.ControlCommandName(cmd)
	}
	return fwupdate.CommandName(cmd)
}
