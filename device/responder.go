package device

import (
	"context"
	"time"

	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
)

// handleRequest dispatches a request by PLDM type.
func (fd *FD) handleRequest(ctx context.Context, now time.Time, hdr protocol.Header, msg []byte) ([]byte, error) {
	fd.logDebug("request", "header", hdr)

	switch hdr.Type {
	case protocol.TypeBase:
		return fd.handleControl(hdr, msg)
	case protocol.TypeFirmwareUpdate:
		return fd.handleFirmwareUpdate(ctx, now, hdr, msg)
	default:
		return fd.fail(hdr, protocol.InvalidPldmType)
	}
}

func (fd *FD) handleFirmwareUpdate(ctx context.Context, now time.Time, hdr protocol.Header, msg []byte) ([]byte, error) {
	switch hdr.Command {
	case fwupdate.CmdQueryDeviceIdentifiers:
		return fd.queryDeviceIdentifiers(ctx, hdr)
	case fwupdate.CmdGetFirmwareParameters:
		return fd.getFirmwareParameters(ctx, hdr)
	case fwupdate.CmdGetStatus:
		return fd.getStatus(ctx, hdr)
	case fwupdate.CmdRequestUpdate:
		return fd.requestUpdate(ctx, now, hdr, msg)
	case fwupdate.CmdPassComponentTable:
		return fd.passComponentTable(ctx, now, hdr, msg)
	case fwupdate.CmdUpdateComponent:
		return fd.updateComponent(ctx, now, hdr, msg)
	case fwupdate.CmdActivateFirmware:
		return fd.activateFirmware(ctx, now, hdr, msg)
	case fwupdate.CmdCancelUpdateComponent:
		return fd.cancelUpdateComponent(ctx, now, hdr)
	case fwupdate.CmdCancelUpdate:
		return fd.cancelUpdate(ctx, hdr)
	default:
		// RequestFirmwareData and the *Complete commands are sent by the FD,
		// never to it.
		return fd.fail(hdr, protocol.UnsupportedCmd)
	}
}

// checkState returns the completion code for a command allowed only in want.
func (fd *FD) checkState(want ...fwupdate.State) protocol.CompletionCode {
	cur := fd.st.state
	for _, s := range want {
		if cur == s {
			return protocol.Success
		}
	}
	if cur == fwupdate.StateIdle {
		return fwupdate.NotInUpdateMode
	}
	return fwupdate.InvalidStateForCommand
}

// touch refreshes the T1 inactivity timer.
func (fd *FD) touch(now time.Time) {
	fd.mu.Lock()
	fd.st.t1 = now
	fd.mu.Unlock()
}

func (fd *FD) queryDeviceIdentifiers(ctx context.Context, hdr protocol.Header) ([]byte, error) {
	descs, err := fd.ops.DeviceIdentifiers(ctx)
	if err != nil || len(descs) == 0 {
		fd.config.Logger.Error(err, "device identifiers unavailable", "count", len(descs))
		return fd.fail(hdr, protocol.Error)
	}
	return fd.respond(hdr, fwupdate.QueryDeviceIdentifiersResponse{
		CompletionCode: protocol.Success,
		Descriptors:    descs,
	})
}

func (fd *FD) getFirmwareParameters(ctx context.Context, hdr protocol.Header) ([]byte, error) {
	params, err := fd.ops.FirmwareParameters(ctx)
	if err != nil {
		fd.config.Logger.Error(err, "firmware parameters unavailable")
		return fd.fail(hdr, protocol.Error)
	}
	return fd.respond(hdr, fwupdate.GetFirmwareParametersResponse{
		CompletionCode: protocol.Success,
		Params:         *params,
	})
}

func (fd *FD) getStatus(ctx context.Context, hdr protocol.Header) ([]byte, error) {
	s := fd.st
	resp := fwupdate.GetStatusResponse{
		CompletionCode:  protocol.Success,
		CurrentState:    s.state,
		PreviousState:   s.prev,
		ProgressPercent: fwupdate.ProgressNotSupported,
		FlagsEnabled:    s.flags,
	}

	switch s.state {
	case fwupdate.StateIdle, fwupdate.StateLearnComponents, fwupdate.StateReadyXfer:
		resp.AuxState = fwupdate.AuxIdleLearnComponentsReadyXfer
	default:
		resp.AuxState = s.auxState
		resp.AuxStateStatus = s.auxStatus
	}
	if s.state == fwupdate.StateIdle {
		resp.Reason = s.reason
	}

	switch s.state {
	case fwupdate.StateDownload:
		if p, err := fd.ops.QueryDownloadProgress(ctx, &s.component); err == nil && p <= 100 {
			resp.ProgressPercent = p
		}
	case fwupdate.StateVerify:
		resp.ProgressPercent = s.verifyProgress
	case fwupdate.StateApply:
		resp.ProgressPercent = s.applyProgress
	}

	return fd.respond(hdr, resp)
}

func (fd *FD) requestUpdate(ctx context.Context, now time.Time, hdr protocol.Header, msg []byte) ([]byte, error) {
	if fd.st.state != fwupdate.StateIdle {
		return fd.fail(hdr, fwupdate.AlreadyInUpdateMode)
	}

	var req fwupdate.RequestUpdateRequest
	if err := protocol.DecodePayload(msg, &req); err != nil {
		fd.logDebug("bad RequestUpdate", "error", err.Error())
		return fd.fail(hdr, protocol.InvalidLength)
	}
	if req.MaxTransferSize < fwupdate.BaselineTransferSize {
		return fd.fail(hdr, fwupdate.InvalidTransferLength)
	}
	if req.NumComponents < 1 || req.MaxOutstandingTransferReq < 1 {
		return fd.fail(hdr, protocol.InvalidData)
	}

	size, err := fd.ops.TransferSize(ctx, req.MaxTransferSize)
	if err != nil {
		fd.config.Logger.Error(err, "transfer size unavailable")
		return fd.fail(hdr, fwupdate.UnableToInitiateUpdate)
	}
	params, err := fd.ops.FirmwareParameters(ctx)
	if err != nil {
		fd.config.Logger.Error(err, "firmware parameters unavailable")
		return fd.fail(hdr, fwupdate.UnableToInitiateUpdate)
	}

	size = minUint32(size, req.MaxTransferSize, fd.config.MaxTransferSize, fwupdate.MaxTransferSize)
	if size < fwupdate.BaselineTransferSize {
		size = fwupdate.BaselineTransferSize
	}

	fd.mu.Lock()
	s := &fd.st
	s.maxXfer = size
	s.numComponents = req.NumComponents
	s.passed = 0
	s.passResults = make([]fwupdate.ComponentResponseCode, 0, req.NumComponents)
	s.params = params
	s.applied = 0
	s.auxState = fwupdate.AuxIdleLearnComponentsReadyXfer
	s.auxStatus = fwupdate.AuxStatusInProgressOrSuccess
	s.t1 = now
	fd.transitionLocked(fwupdate.StateLearnComponents)
	fd.mu.Unlock()

	fd.config.Logger.Info("entered update mode",
		"components", req.NumComponents,
		"maxTransferSize", size,
		"imageSet", req.ImageSetVersion.String(),
	)

	return fd.respond(hdr, fwupdate.RequestUpdateResponse{
		CompletionCode:        protocol.Success,
		FDWillSendPackageData: fwupdate.PackageDataNotSupported,
	})
}

func (fd *FD) passComponentTable(ctx context.Context, now time.Time, hdr protocol.Header, msg []byte) ([]byte, error) {
	if cc := fd.checkState(fwupdate.StateLearnComponents); cc != protocol.Success {
		return fd.fail(hdr, cc)
	}

	var req fwupdate.PassComponentTableRequest
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return fd.fail(hdr, protocol.InvalidLength)
	}

	s := &fd.st
	if s.passed >= int(s.numComponents) {
		return fd.fail(hdr, protocol.InvalidData)
	}
	if want := fwupdate.TransferFlagFor(s.passed, int(s.numComponents)); req.Flag != want {
		fd.logDebug("out of sequence component table entry", "flag", req.Flag, "want", want, "index", s.passed)
		return fd.fail(hdr, protocol.InvalidData)
	}
	fd.touch(now)

	comp := req.Component()
	code, err := fd.ops.HandleComponent(ctx, &comp, s.params, PassComponent)
	if err != nil {
		fd.config.Logger.Error(err, "component evaluation failed", "component", comp.String())
		return fd.fail(hdr, protocol.Error)
	}

	fd.mu.Lock()
	s.passed++
	s.passResults = append(s.passResults, code)
	if req.Flag == protocol.TransferEnd || req.Flag == protocol.TransferStartAndEnd {
		fd.transitionLocked(fwupdate.StateReadyXfer)
	}
	fd.mu.Unlock()

	fd.logDebug("component table entry", "component", comp.String(), "response", code)

	return fd.respond(hdr, fwupdate.PassComponentTableResponse{
		CompletionCode: protocol.Success,
		Response:       code.Response(),
		ResponseCode:   code,
	})
}

func (fd *FD) updateComponent(ctx context.Context, now time.Time, hdr protocol.Header, msg []byte) ([]byte, error) {
	if cc := fd.checkState(fwupdate.StateReadyXfer); cc != protocol.Success {
		return fd.fail(hdr, cc)
	}

	var req fwupdate.UpdateComponentRequest
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return fd.fail(hdr, protocol.InvalidLength)
	}
	fd.touch(now)

	comp := req.Component()
	code, err := fd.ops.HandleComponent(ctx, &comp, fd.st.params, UpdateComponent)
	if err != nil {
		fd.config.Logger.Error(err, "component evaluation failed", "component", comp.String())
		return fd.fail(hdr, protocol.Error)
	}

	// Component opaque data is not supported; the flag is never enabled.
	enabled := req.OptionFlags &^ fwupdate.OptionComponentOpaqueData
	resp := fwupdate.UpdateComponentResponse{
		CompletionCode:        protocol.Success,
		CompatibilityResponse: code.Response(),
		CompatibilityCode:     fwupdate.CompatibilityCode(code),
		FlagsEnabled:          enabled,
	}

	if code == fwupdate.CompCanBeUpdated {
		fd.mu.Lock()
		s := &fd.st
		s.component = comp
		s.flags = enabled
		s.download = downloadWindow{}
		s.verifyProgress = 0
		s.applyProgress = 0
		s.auxState = fwupdate.AuxOperationInProgress
		s.auxStatus = fwupdate.AuxStatusInProgressOrSuccess
		s.req = reqSlot{state: slotReady}
		fd.transitionLocked(fwupdate.StateDownload)
		fd.mu.Unlock()

		fd.config.Logger.Info("downloading component", "component", comp.String(), "size", comp.ImageSize)
	} else {
		fd.logDebug("component rejected", "component", comp.String(), "code", code)
	}

	return fd.respond(hdr, resp)
}

func (fd *FD) activateFirmware(ctx context.Context, now time.Time, hdr protocol.Header, msg []byte) ([]byte, error) {
	if cc := fd.checkState(fwupdate.StateReadyXfer); cc != protocol.Success {
		return fd.fail(hdr, cc)
	}
	if fd.st.applied == 0 {
		return fd.fail(hdr, fwupdate.InvalidStateForCommand)
	}

	var req fwupdate.ActivateFirmwareRequest
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return fd.fail(hdr, protocol.InvalidLength)
	}
	if req.SelfContainedActivation > fwupdate.ActivateSelfContained {
		return fd.fail(hdr, protocol.InvalidData)
	}

	fd.mu.Lock()
	fd.st.t1 = now
	fd.st.auxState = fwupdate.AuxOperationInProgress
	fd.transitionLocked(fwupdate.StateActivate)
	fd.mu.Unlock()

	est, cc, err := fd.ops.Activate(ctx, req.SelfContainedActivation)
	if err != nil {
		fd.config.Logger.Error(err, "activation failed")
		cc = protocol.Error
	}

	fd.mu.Lock()
	if cc == protocol.Success {
		fd.toIdleLocked(fwupdate.ReasonActivateFw)
	} else {
		fd.transitionLocked(fwupdate.StateReadyXfer)
	}
	fd.mu.Unlock()

	if cc == protocol.Success {
		fd.config.Logger.Info("firmware activated", "estimatedTime", est)
	}

	return fd.respond(hdr, fwupdate.ActivateFirmwareResponse{
		CompletionCode: cc,
		EstimatedTime:  est,
	})
}

func (fd *FD) cancelUpdateComponent(ctx context.Context, now time.Time, hdr protocol.Header) ([]byte, error) {
	if cc := fd.checkState(fwupdate.StateDownload, fwupdate.StateVerify, fwupdate.StateApply); cc != protocol.Success {
		return fd.fail(hdr, cc)
	}

	comp := fd.st.component
	if err := fd.ops.CancelUpdateComponent(ctx, &comp); err != nil {
		fd.config.Logger.Error(err, "cancel component failed", "component", comp.String())
	}

	fd.mu.Lock()
	s := &fd.st
	s.t1 = now
	s.req = reqSlot{}
	s.component = fwupdate.FirmwareComponent{}
	s.download = downloadWindow{}
	s.flags = 0
	fd.transitionLocked(fwupdate.StateReadyXfer)
	fd.mu.Unlock()

	fd.config.Logger.Info("component update cancelled", "component", comp.String())
	return fd.fail(hdr, protocol.Success)
}

func (fd *FD) cancelUpdate(ctx context.Context, hdr protocol.Header) ([]byte, error) {
	switch fd.st.state {
	case fwupdate.StateDownload, fwupdate.StateVerify, fwupdate.StateApply:
		comp := fd.st.component
		if err := fd.ops.CancelUpdateComponent(ctx, &comp); err != nil {
			fd.config.Logger.Error(err, "cancel component failed", "component", comp.String())
		}
	}

	fd.mu.Lock()
	wasIdle := fd.st.state == fwupdate.StateIdle
	fd.toIdleLocked(fwupdate.ReasonCancelUpdate)
	fd.mu.Unlock()

	if !wasIdle {
		fd.config.Logger.Info("update cancelled")
	}
	return fd.respond(hdr, fwupdate.CancelUpdateResponse{CompletionCode: protocol.Success})
}

func minUint32(v uint32, rest ...uint32) uint32 {
	for _, r := range rest {
		if r < v {
			v = r
		}
	}
	return v
}
