package agent

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/looplab/fsm"

	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
)

// States of the update machine.
const (
	StateIdle                       = "Idle"
	StateQueryDeviceIdentifiersSent = "QueryDeviceIdentifiersSent"
	StateGetFirmwareParametersSent  = "GetFirmwareParametersSent"
	StateReceivedFirmwareParameters = "ReceivedFirmwareParameters"
	StateRequestUpdateSent          = "RequestUpdateSent"
	StateLearnComponents            = "LearnComponents"
	StateReadyXfer                  = "ReadyXfer"
	StateUpdateComponentSent        = "UpdateComponentSent"
	StateDownload                   = "Download"
	StateVerify                     = "Verify"
	StateApply                      = "Apply"
	StateActivateSent               = "ActivateSent"
	StateDone                       = "Done"
)

// Events of the update machine.
const (
	evStart      = "start"
	evIdentified = "identified"
	evParams     = "params"
	evRequest    = "request"
	evLearn      = "learn"
	evReady      = "ready"
	evUpdate     = "update"
	evSkip       = "skip"
	evDownload   = "download"
	evVerify     = "verify"
	evApply      = "apply"
	evApplied    = "applied"
	evActivate   = "activate"
	evFinish     = "finish"
)

var activeStates = []string{
	StateIdle,
	StateQueryDeviceIdentifiersSent,
	StateGetFirmwareParametersSent,
	StateReceivedFirmwareParameters,
	StateRequestUpdateSent,
	StateLearnComponents,
	StateReadyXfer,
	StateUpdateComponentSent,
	StateDownload,
	StateVerify,
	StateApply,
	StateActivateSent,
}

func newUpdateFSM(a *Agent) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evStart, Src: []string{StateIdle}, Dst: StateQueryDeviceIdentifiersSent},
			{Name: evIdentified, Src: []string{StateQueryDeviceIdentifiersSent}, Dst: StateGetFirmwareParametersSent},
			{Name: evParams, Src: []string{StateGetFirmwareParametersSent}, Dst: StateReceivedFirmwareParameters},
			{Name: evRequest, Src: []string{StateReceivedFirmwareParameters}, Dst: StateRequestUpdateSent},
			{Name: evLearn, Src: []string{StateRequestUpdateSent}, Dst: StateLearnComponents},
			{Name: evReady, Src: []string{StateLearnComponents}, Dst: StateReadyXfer},
			{Name: evUpdate, Src: []string{StateReadyXfer}, Dst: StateUpdateComponentSent},
			{Name: evSkip, Src: []string{StateUpdateComponentSent}, Dst: StateReadyXfer},
			{Name: evDownload, Src: []string{StateUpdateComponentSent}, Dst: StateDownload},
			{Name: evVerify, Src: []string{StateDownload}, Dst: StateVerify},
			{Name: evApply, Src: []string{StateVerify}, Dst: StateApply},
			{Name: evApplied, Src: []string{StateApply}, Dst: StateReadyXfer},
			{Name: evActivate, Src: []string{StateReadyXfer}, Dst: StateActivateSent},
			{Name: evFinish, Src: activeStates, Dst: StateDone},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) { a.enterUpdateState(e) },
		},
	)
}

func (a *Agent) enterUpdateState(e *fsm.Event) {
	ctx := eventContext(e)
	a.log.V(1).Info("update transition", "event", e.Event, "from", e.Src, "to", e.Dst)

	switch e.Dst {
	case StateQueryDeviceIdentifiersSent:
		a.report(Progress{Phase: PhaseIdentify})
		a.request(ctx, protocol.TypeFirmwareUpdate, fwupdate.CmdQueryDeviceIdentifiers, nil)

	case StateGetFirmwareParametersSent:
		a.request(ctx, protocol.TypeFirmwareUpdate, fwupdate.CmdGetFirmwareParameters, nil)

	case StateReceivedFirmwareParameters:
		if len(a.comps) == 0 {
			a.finish(ErrNothingToUpdate)
			return
		}
		a.push(a.update, evRequest)

	case StateRequestUpdateSent:
		rec := &a.pkg.DeviceIDRecords[a.record]
		a.request(ctx, protocol.TypeFirmwareUpdate, fwupdate.CmdRequestUpdate, fwupdate.RequestUpdateRequest{
			MaxTransferSize:           a.config.MaxTransferSize,
			NumComponents:             uint16(len(a.comps)),
			MaxOutstandingTransferReq: 1,
			ImageSetVersion:           rec.ImageSetVersion,
		})

	case StateLearnComponents:
		a.passed = 0
		a.report(Progress{Phase: PhaseLearn})
		a.passComponent(ctx)

	case StateReadyXfer:
		a.nextComponent()

	case StateUpdateComponentSent:
		c := a.comps[a.current].Component
		a.request(ctx, protocol.TypeFirmwareUpdate, fwupdate.CmdUpdateComponent, fwupdate.UpdateComponentRequest{
			Classification:      c.Classification,
			Identifier:          c.Identifier,
			ClassificationIndex: c.ClassificationIndex,
			ComparisonStamp:     c.ComparisonStamp,
			ImageSize:           c.ImageSize,
			OptionFlags:         c.OptionFlags,
			Version:             c.Version,
		})

	case StateDownload:
		a.lastRx = a.now
		a.report(Progress{Phase: PhaseDownload, ImageSize: int(a.comps[a.current].Component.ImageSize)})

	case StateVerify:
		a.report(Progress{Phase: PhaseVerify, Percentage: 100})

	case StateApply:
		a.report(Progress{Phase: PhaseApply, Percentage: 100})

	case StateActivateSent:
		a.report(Progress{Phase: PhaseActivate})
		a.request(ctx, protocol.TypeFirmwareUpdate, fwupdate.CmdActivateFirmware, fwupdate.ActivateFirmwareRequest{
			SelfContainedActivation: a.selfContained(),
		})

	case StateDone:
		err, _ := eventArg(e).(error)
		a.complete(ctx, err)
	}
}

// passComponent sends the component table entry a.passed.
func (a *Agent) passComponent(ctx context.Context) {
	c := a.comps[a.passed].Component
	a.request(ctx, protocol.TypeFirmwareUpdate, fwupdate.CmdPassComponentTable, fwupdate.PassComponentTableRequest{
		Flag:                fwupdate.TransferFlagFor(a.passed, len(a.comps)),
		Classification:      c.Classification,
		Identifier:          c.Identifier,
		ClassificationIndex: c.ClassificationIndex,
		ComparisonStamp:     c.ComparisonStamp,
		Version:             c.Version,
	})
}

// nextComponent picks the first pending component the FD accepted in the
// component table. With none left the update activates, or ends if nothing
// was applied.
func (a *Agent) nextComponent() {
	for i := range a.comps {
		c := &a.comps[i]
		if c.status != compPending {
			continue
		}
		if c.passCode != fwupdate.CompCanBeUpdated {
			c.status = compSkipped
			a.reject(c, c.passCode)
			continue
		}
		c.status = compUpdating
		a.current = i
		a.startedComps++
		a.push(a.update, evUpdate)
		return
	}

	a.current = -1
	if a.applied > 0 {
		a.push(a.update, evActivate)
		return
	}

	var err error = ErrNothingToUpdate
	if len(a.rejected) > 0 {
		errs := make([]error, len(a.rejected))
		for i, r := range a.rejected {
			errs[i] = r
		}
		err = multierror.Append(ErrNothingToUpdate, errs...)
	}
	a.finish(err)
}

func (a *Agent) reject(c *component, code fwupdate.ComponentResponseCode) {
	a.log.Info("component not updated", "component", c.Component.String(), "reason", code.String())
	a.rejected = append(a.rejected, &ComponentRejectedError{Component: c.Component, Code: code})
}

// selfContained asks for self-contained activation when every applied image
// requests it.
func (a *Agent) selfContained() uint8 {
	n := 0
	for _, c := range a.comps {
		if c.status != compApplied {
			continue
		}
		if a.pkg.Components[c.Image].RequestedActivationMethod&fwupdate.ActivationSelfContained == 0 {
			return fwupdate.NotActivateSelfContained
		}
		n++
	}
	if n == 0 {
		return fwupdate.NotActivateSelfContained
	}
	return fwupdate.ActivateSelfContained
}

// updateResponse handles the response to an agent firmware update request.
func (a *Agent) updateResponse(ctx context.Context, hdr protocol.Header, msg []byte) error {
	name := fwupdate.CommandName(hdr.Command)
	check := func(cc protocol.CompletionCode) error {
		return protocol.CheckCompletion(name, protocol.TypeFirmwareUpdate, cc)
	}

	switch hdr.Command {
	case fwupdate.CmdQueryDeviceIdentifiers:
		var resp fwupdate.QueryDeviceIdentifiersResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if err := check(resp.CompletionCode); err != nil {
			return err
		}
		rec, err := a.config.Update.MatchDevice(a.pkg, resp.Descriptors)
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.record = rec
		a.descriptors = resp.Descriptors
		a.mu.Unlock()
		a.log.Info("firmware device matched", "record", rec, "descriptors", len(resp.Descriptors))
		a.push(a.update, evIdentified)

	case fwupdate.CmdGetFirmwareParameters:
		var resp fwupdate.GetFirmwareParametersResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if err := check(resp.CompletionCode); err != nil {
			return err
		}
		sel, err := a.config.Update.SelectComponents(a.pkg, a.record, &resp.Params)
		if err != nil {
			return err
		}
		a.params = &resp.Params
		a.comps = make([]component, len(sel))
		for i, s := range sel {
			a.comps[i] = component{Selection: s}
		}
		a.log.Info("components selected", "count", len(sel), "reported", len(resp.Params.Components))
		a.push(a.update, evParams)

	case fwupdate.CmdRequestUpdate:
		var resp fwupdate.RequestUpdateResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if err := check(resp.CompletionCode); err != nil {
			return err
		}
		a.inUpdate = true
		a.push(a.update, evLearn)

	case fwupdate.CmdPassComponentTable:
		var resp fwupdate.PassComponentTableResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if err := check(resp.CompletionCode); err != nil {
			return err
		}
		a.comps[a.passed].passCode = resp.ResponseCode
		a.passed++
		if a.passed < len(a.comps) {
			a.passComponent(ctx)
			return nil
		}
		a.push(a.update, evReady)

	case fwupdate.CmdUpdateComponent:
		var resp fwupdate.UpdateComponentResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if err := check(resp.CompletionCode); err != nil {
			return err
		}
		c := &a.comps[a.current]
		if resp.CompatibilityResponse != fwupdate.ComponentCanBeUpdated {
			c.status = compSkipped
			a.reject(c, fwupdate.ComponentResponseCode(resp.CompatibilityCode))
			a.push(a.update, evSkip)
			return nil
		}
		a.push(a.update, evDownload)

	case fwupdate.CmdActivateFirmware:
		var resp fwupdate.ActivateFirmwareResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if resp.CompletionCode != fwupdate.ActivationNotRequired {
			if err := check(resp.CompletionCode); err != nil {
				return err
			}
		}
		a.inUpdate = false
		a.mu.Lock()
		a.activationTime = resp.EstimatedTime
		a.mu.Unlock()
		a.finish(nil)

	default:
		return fmt.Errorf("unexpected response to 0x%02X", hdr.Command)
	}
	return nil
}
