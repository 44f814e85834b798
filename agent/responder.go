package agent

import (
	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/metrics"
	"github.com/moffa90/go-pldm/protocol"
)

// respond answers a request sent by the FD.
func (a *Agent) respond(hdr protocol.Header, msg []byte) ([]byte, error) {
	if hdr.Type != protocol.TypeFirmwareUpdate {
		return protocol.EncodeFailure(hdr, protocol.InvalidPldmType)
	}

	switch hdr.Command {
	case fwupdate.CmdRequestFirmwareData:
		return a.firmwareData(hdr, msg)
	case fwupdate.CmdTransferComplete:
		return a.transferComplete(hdr, msg)
	case fwupdate.CmdVerifyComplete:
		return a.verifyComplete(hdr, msg)
	case fwupdate.CmdApplyComplete:
		return a.applyComplete(hdr, msg)
	default:
		return protocol.EncodeFailure(hdr, protocol.UnsupportedCmd)
	}
}

func (a *Agent) firmwareData(hdr protocol.Header, msg []byte) ([]byte, error) {
	if !a.update.Is(StateDownload) {
		return protocol.EncodeFailure(hdr, fwupdate.CommandNotExpected)
	}
	var req fwupdate.RequestFirmwareDataRequest
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return protocol.EncodeFailure(hdr, protocol.InvalidLength)
	}
	if req.Length == 0 || req.Length > a.config.MaxTransferSize {
		return protocol.EncodeFailure(hdr, fwupdate.InvalidTransferLength)
	}

	img := &a.pkg.Components[a.comps[a.current].Image]
	data, cc := a.config.Update.FirmwareData(img, req.Offset, req.Length)
	if cc != protocol.Success {
		a.log.Info("firmware data refused", "offset", req.Offset, "length", req.Length, "code", cc.String())
		return protocol.EncodeFailure(hdr, cc)
	}

	a.log.V(1).Info("firmware data", "offset", req.Offset, "length", req.Length)
	if a.config.Metrics {
		metrics.UAServedBytesTotal.Add(float64(len(data)))
	}

	sent := int(req.Offset) + len(data)
	if sent > len(img.Data) {
		sent = len(img.Data)
	}
	a.report(Progress{
		Phase:      PhaseDownload,
		BytesSent:  sent,
		ImageSize:  len(img.Data),
		Percentage: float64(sent) * 100 / float64(len(img.Data)),
	})

	return protocol.EncodeMessage(hdr.Response(), fwupdate.RequestFirmwareDataResponse{
		CompletionCode: protocol.Success,
		Data:           data,
	})
}

func (a *Agent) transferComplete(hdr protocol.Header, msg []byte) ([]byte, error) {
	if !a.update.Is(StateDownload) {
		return protocol.EncodeFailure(hdr, fwupdate.CommandNotExpected)
	}
	var req fwupdate.TransferCompleteRequest
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return protocol.EncodeFailure(hdr, protocol.InvalidLength)
	}

	if req.Result != fwupdate.TransferSuccess {
		a.componentFailed(PhaseDownload, uint8(req.Result))
	} else {
		a.push(a.update, evVerify)
	}
	return protocol.EncodeMessage(hdr.Response(), protocol.CodeResponse{})
}

func (a *Agent) verifyComplete(hdr protocol.Header, msg []byte) ([]byte, error) {
	if !a.update.Is(StateVerify) {
		return protocol.EncodeFailure(hdr, fwupdate.CommandNotExpected)
	}
	var req fwupdate.VerifyCompleteRequest
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return protocol.EncodeFailure(hdr, protocol.InvalidLength)
	}

	if req.Result != fwupdate.VerifySuccess {
		a.componentFailed(PhaseVerify, uint8(req.Result))
	} else {
		a.push(a.update, evApply)
	}
	return protocol.EncodeMessage(hdr.Response(), protocol.CodeResponse{})
}

func (a *Agent) applyComplete(hdr protocol.Header, msg []byte) ([]byte, error) {
	if !a.update.Is(StateApply) {
		return protocol.EncodeFailure(hdr, fwupdate.CommandNotExpected)
	}
	var req fwupdate.ApplyCompleteRequest
	if err := protocol.DecodePayload(msg, &req); err != nil {
		return protocol.EncodeFailure(hdr, protocol.InvalidLength)
	}

	if !req.Result.Succeeded() {
		a.componentFailed(PhaseApply, uint8(req.Result))
	} else {
		c := &a.comps[a.current]
		c.status = compApplied
		a.applied++
		a.log.Info("component applied", "component", c.Component.String())
		a.push(a.update, evApplied)
	}
	return protocol.EncodeMessage(hdr.Response(), protocol.CodeResponse{})
}

// componentFailed ends the update after the FD reported a failed phase. The
// FD leaves update mode once the failure is acknowledged.
func (a *Agent) componentFailed(phase string, result uint8) {
	a.inUpdate = false
	a.finish(&ComponentFailedError{
		Component: a.comps[a.current].Component,
		Phase:     phase,
		Result:    result,
	})
}
