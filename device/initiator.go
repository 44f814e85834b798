package device

import (
	"context"
	"time"

	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/metrics"
	"github.com/moffa90/go-pldm/protocol"
)

// slotState tracks the single outstanding FD request.
type slotState uint8

const (
	slotUnused slotState = iota // no request due in this state
	slotReady                   // the next request may be sent
	slotSent                    // waiting for the response
	slotFailed                  // retries exhausted
)

// reqSlot is the FD initiator. At most one FD request is outstanding.
type reqSlot struct {
	state      slotState
	command    uint8
	instanceID uint8
	sentAt     time.Time
	msg        []byte
	retries    int

	// next is sent on the following poll instead of asking Ops.
	next *outgoing
}

// outgoing is a request queued by a response handler.
type outgoing struct {
	command uint8
	payload protocol.Encoder
}

// postLocked queues a request for the next poll. mu must be held.
func (fd *FD) postLocked(cmd uint8, payload protocol.Encoder) {
	fd.st.req = reqSlot{
		state: slotReady,
		next:  &outgoing{command: cmd, payload: payload},
	}
}

// sendLocked encodes and records a new FD request. mu must be held.
func (fd *FD) sendLocked(now time.Time, cmd uint8, payload protocol.Encoder) ([]byte, error) {
	iid := fd.iids.Next()
	msg, err := protocol.EncodeMessage(protocol.NewRequestHeader(iid, protocol.TypeFirmwareUpdate, cmd), payload)
	if err != nil {
		return nil, err
	}
	fd.st.req = reqSlot{
		state:      slotSent,
		command:    cmd,
		instanceID: iid,
		sentAt:     now,
		msg:        msg,
	}
	fd.logDebug("sending request", "command", fwupdate.CommandName(cmd), "instanceID", iid)
	return msg, nil
}

// poll returns the next FD request, if one is due.
func (fd *FD) poll(ctx context.Context, now time.Time) ([]byte, error) {
	fd.mu.Lock()
	slot := fd.st.req
	state := fd.st.state

	switch slot.state {
	case slotSent:
		defer fd.mu.Unlock()
		if now.Sub(slot.sentAt) < fd.config.T2RetryTime {
			return nil, nil
		}
		if slot.retries < fd.config.Retries {
			fd.st.req.retries++
			fd.st.req.sentAt = now
			if fd.config.Metrics {
				metrics.FDRetriesTotal.Inc()
			}
			fd.logDebug("resending request", "command", fwupdate.CommandName(slot.command), "retry", slot.retries+1)
			return slot.msg, nil
		}
		fd.st.req.state = slotFailed
		fd.config.Logger.Info("request unanswered", "command", fwupdate.CommandName(slot.command))
		fd.abandonLocked()
		return nil, nil

	case slotFailed:
		defer fd.mu.Unlock()
		fd.abandonLocked()
		return nil, nil

	case slotReady:
		if slot.next != nil {
			defer fd.mu.Unlock()
			return fd.sendLocked(now, slot.next.command, slot.next.payload)
		}

	default:
		fd.mu.Unlock()
		return nil, nil
	}

	comp := fd.st.component
	fd.mu.Unlock()

	// Ops run without the lock; only Step mutates the slot so it cannot
	// change underneath.
	switch state {
	case fwupdate.StateDownload:
		return fd.pollDownload(ctx, now, &comp)
	case fwupdate.StateVerify:
		return fd.pollVerify(ctx, now, &comp)
	case fwupdate.StateApply:
		return fd.pollApply(ctx, now, &comp)
	}
	return nil, nil
}

// abandonLocked leaves update mode after an unanswered request. mu must be held.
func (fd *FD) abandonLocked() {
	s := &fd.st
	reason := fwupdate.TimeoutReason(s.state)
	s.auxState = fwupdate.AuxOperationFailed
	s.auxStatus = fwupdate.AuxStatusTimeout
	fd.toIdleLocked(reason)
}

func (fd *FD) pollDownload(ctx context.Context, now time.Time, comp *fwupdate.FirmwareComponent) ([]byte, error) {
	done, err := fd.ops.IsDownloadComplete(ctx, comp)
	if err != nil {
		fd.config.Logger.Error(err, "download state unavailable", "component", comp.String())
		return fd.abortTransfer(now)
	}
	if done {
		return fd.sendNow(now, fwupdate.CmdTransferComplete, fwupdate.TransferCompleteRequest{Result: fwupdate.TransferSuccess})
	}

	off, length, err := fd.ops.QueryDownloadOffsetAndLength(ctx, comp)
	if err != nil {
		fd.config.Logger.Error(err, "next chunk unavailable", "component", comp.String())
		return fd.abortTransfer(now)
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	prev := fd.st.download
	size := comp.ImageSize
	switch {
	case off < prev.offset:
		fd.config.Logger.Info("download rewind not supported", "offset", off, "previous", prev.offset)
	case off > size, uint64(off)+uint64(length) > uint64(size)+fwupdate.MaxPaddingSize:
		fd.config.Logger.Info("chunk outside image", "offset", off, "length", length, "size", size)
	case length == 0:
		fd.config.Logger.Info("zero length chunk", "offset", off)
	default:
		if length > fd.st.maxXfer {
			length = fd.st.maxXfer
		}
		fd.st.download = downloadWindow{offset: off, length: length}
		return fd.sendLocked(now, fwupdate.CmdRequestFirmwareData, fwupdate.RequestFirmwareDataRequest{
			Offset: off,
			Length: length,
		})
	}

	return fd.abortTransferLocked(now)
}

func (fd *FD) pollVerify(ctx context.Context, now time.Time, comp *fwupdate.FirmwareComponent) ([]byte, error) {
	progress, res, err := fd.ops.Verify(ctx, comp)
	if err != nil {
		fd.config.Logger.Error(err, "verify failed", "component", comp.String())
		res = fwupdate.VerifyErrorVerificationFailure
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if err == nil && res == fwupdate.VerifySuccess && progress < 100 {
		fd.st.verifyProgress = progress
		return nil, nil
	}
	if res == fwupdate.VerifySuccess {
		fd.st.verifyProgress = 100
		fd.st.auxState = fwupdate.AuxOperationSuccessful
	} else {
		fd.st.auxState = fwupdate.AuxOperationFailed
		fd.st.auxStatus = fwupdate.AuxStatusGenericError
	}
	return fd.sendLocked(now, fwupdate.CmdVerifyComplete, fwupdate.VerifyCompleteRequest{Result: res})
}

func (fd *FD) pollApply(ctx context.Context, now time.Time, comp *fwupdate.FirmwareComponent) ([]byte, error) {
	progress, res, err := fd.ops.Apply(ctx, comp)
	if err != nil {
		fd.config.Logger.Error(err, "apply failed", "component", comp.String())
		res = fwupdate.ApplyFailureMemoryIssue
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()

	if err == nil && res.Succeeded() && progress < 100 {
		fd.st.applyProgress = progress
		return nil, nil
	}
	if res.Succeeded() {
		fd.st.applyProgress = 100
		fd.st.auxState = fwupdate.AuxOperationSuccessful
	} else {
		fd.st.auxState = fwupdate.AuxOperationFailed
		fd.st.auxStatus = fwupdate.AuxStatusGenericError
	}
	return fd.sendLocked(now, fwupdate.CmdApplyComplete, fwupdate.ApplyCompleteRequest{Result: res})
}

func (fd *FD) sendNow(now time.Time, cmd uint8, payload protocol.Encoder) ([]byte, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.sendLocked(now, cmd, payload)
}

func (fd *FD) abortTransfer(now time.Time) ([]byte, error) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.abortTransferLocked(now)
}

// abortTransferLocked ends the download with FdAbortedTransfer. The FD
// returns to Idle once the agent acknowledges it. mu must be held.
func (fd *FD) abortTransferLocked(now time.Time) ([]byte, error) {
	fd.st.auxState = fwupdate.AuxOperationFailed
	fd.st.auxStatus = fwupdate.AuxStatusGenericError
	return fd.sendLocked(now, fwupdate.CmdTransferComplete, fwupdate.TransferCompleteRequest{Result: fwupdate.FdAbortedTransfer})
}

// handleResponse matches a response against the outstanding request and
// advances the state machine. A response that does not match is dropped.
func (fd *FD) handleResponse(ctx context.Context, now time.Time, hdr protocol.Header, msg []byte) error {
	fd.mu.Lock()
	slot := fd.st.req
	sent := protocol.NewRequestHeader(slot.instanceID, protocol.TypeFirmwareUpdate, slot.command)
	if slot.state != slotSent || !sent.Matches(hdr) {
		fd.mu.Unlock()
		fd.logDebug("dropping unexpected response", "header", hdr)
		return ErrUnexpectedResponse
	}
	fd.st.t1 = now
	comp := fd.st.component
	window := fd.st.download
	fd.mu.Unlock()

	switch hdr.Command {
	case fwupdate.CmdRequestFirmwareData:
		return fd.firmwareDataReceived(ctx, msg, &comp, window)

	case fwupdate.CmdTransferComplete:
		ok := fd.completeAcked(msg)
		fd.mu.Lock()
		defer fd.mu.Unlock()
		if !ok || fd.st.auxState == fwupdate.AuxOperationFailed {
			fd.toIdleLocked(fwupdate.ReasonDownloadTimeout)
			return nil
		}
		fd.st.auxState = fwupdate.AuxOperationInProgress
		fd.st.req = reqSlot{state: slotReady}
		fd.transitionLocked(fwupdate.StateVerify)
		fd.config.Logger.Info("component downloaded", "component", comp.String())

	case fwupdate.CmdVerifyComplete:
		ok := fd.completeAcked(msg)
		fd.mu.Lock()
		defer fd.mu.Unlock()
		if !ok || fd.st.auxState == fwupdate.AuxOperationFailed {
			fd.toIdleLocked(fwupdate.ReasonVerifyTimeout)
			return nil
		}
		fd.st.auxState = fwupdate.AuxOperationInProgress
		fd.st.req = reqSlot{state: slotReady}
		fd.transitionLocked(fwupdate.StateApply)
		fd.config.Logger.Info("component verified", "component", comp.String())

	case fwupdate.CmdApplyComplete:
		ok := fd.completeAcked(msg)
		fd.mu.Lock()
		defer fd.mu.Unlock()
		if !ok || fd.st.auxState == fwupdate.AuxOperationFailed {
			fd.toIdleLocked(fwupdate.ReasonApplyTimeout)
			return nil
		}
		fd.st.applied++
		fd.st.req = reqSlot{}
		fd.transitionLocked(fwupdate.StateReadyXfer)
		fd.config.Logger.Info("component applied", "component", comp.String(), "applied", fd.st.applied)
	}
	return nil
}

// completeAcked reports whether the agent accepted a *Complete request.
func (fd *FD) completeAcked(msg []byte) bool {
	var resp protocol.CodeResponse
	if err := protocol.DecodePayload(msg, &resp); err != nil {
		fd.logDebug("bad completion response", "error", err.Error())
		return false
	}
	return resp.CompletionCode == protocol.Success
}

func (fd *FD) firmwareDataReceived(ctx context.Context, msg []byte, comp *fwupdate.FirmwareComponent, window downloadWindow) error {
	var resp fwupdate.RequestFirmwareDataResponse
	if err := protocol.DecodePayload(msg, &resp); err != nil {
		fd.logDebug("bad firmware data response", "error", err.Error())
		resp.CompletionCode = protocol.InvalidLength
	}

	switch {
	case resp.CompletionCode == protocol.Success && uint32(len(resp.Data)) == window.length:
		res, err := fd.ops.DownloadFirmwareData(ctx, window.offset, resp.Data, comp)
		if err != nil {
			fd.config.Logger.Error(err, "storing firmware data failed", "offset", window.offset)
			res = fwupdate.FdAbortedTransfer
		}
		if fd.config.Metrics {
			metrics.FDDownloadBytesTotal.Add(float64(len(resp.Data)))
		}

		fd.mu.Lock()
		defer fd.mu.Unlock()
		if res != fwupdate.TransferSuccess {
			fd.st.auxState = fwupdate.AuxOperationFailed
			fd.st.auxStatus = fwupdate.AuxStatusGenericError
			fd.postLocked(fwupdate.CmdTransferComplete, fwupdate.TransferCompleteRequest{Result: res})
			return nil
		}
		fd.st.req = reqSlot{state: slotReady}

	case resp.CompletionCode == fwupdate.RetryRequestFwData:
		fd.logDebug("agent asked to retry", "offset", window.offset)
		fd.mu.Lock()
		defer fd.mu.Unlock()
		fd.postLocked(fwupdate.CmdRequestFirmwareData, fwupdate.RequestFirmwareDataRequest{
			Offset: window.offset,
			Length: window.length,
		})

	default:
		fd.config.Logger.Info("firmware data refused",
			"offset", window.offset,
			"length", window.length,
			"code", resp.CompletionCode,
			"received", len(resp.Data),
		)
		fd.mu.Lock()
		defer fd.mu.Unlock()
		fd.st.auxState = fwupdate.AuxOperationFailed
		fd.st.auxStatus = fwupdate.AuxStatusGenericError
		fd.postLocked(fwupdate.CmdTransferComplete, fwupdate.TransferCompleteRequest{Result: fwupdate.FdAbortedTransfer})
	}
	return nil
}
