package agent

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/moffa90/go-pldm/protocol"
)

// States of the discovery machine.
const (
	DiscoveryIdle                 = "Idle"
	DiscoverySetTIDSent           = "SetTIDSent"
	DiscoveryGetTIDSent           = "GetTIDSent"
	DiscoveryGetTypesSent         = "GetPLDMTypesSent"
	DiscoveryGetVersionType0Sent  = "GetPLDMVersionType0Sent"
	DiscoveryGetCommandsType0Sent = "GetPLDMCommandsType0Sent"
	DiscoveryGetVersionType5Sent  = "GetPLDMVersionType5Sent"
	DiscoveryGetCommandsType5Sent = "GetPLDMCommandsType5Sent"
	DiscoveryDone                 = "Done"
)

// Events of the discovery machine.
const (
	evNext   = "next"
	evCancel = "cancel"
)

// discoverySteps is the order the discovery requests are sent in.
var discoverySteps = []string{
	DiscoveryIdle,
	DiscoverySetTIDSent,
	DiscoveryGetTIDSent,
	DiscoveryGetTypesSent,
	DiscoveryGetVersionType0Sent,
	DiscoveryGetCommandsType0Sent,
	DiscoveryGetVersionType5Sent,
	DiscoveryGetCommandsType5Sent,
	DiscoveryDone,
}

func newDiscoveryFSM(a *Agent) *fsm.FSM {
	var events fsm.Events
	for i := 0; i+1 < len(discoverySteps); i++ {
		events = append(events, fsm.EventDesc{
			Name: evNext, Src: []string{discoverySteps[i]}, Dst: discoverySteps[i+1],
		})
	}
	events = append(events, fsm.EventDesc{
		Name: evCancel, Src: discoverySteps[:len(discoverySteps)-1], Dst: DiscoveryDone,
	})

	return fsm.NewFSM(DiscoveryIdle, events, fsm.Callbacks{
		"enter_state": func(e *fsm.Event) { a.enterDiscoveryState(e) },
	})
}

func (a *Agent) enterDiscoveryState(e *fsm.Event) {
	ctx := eventContext(e)
	a.log.V(1).Info("discovery transition", "event", e.Event, "from", e.Src, "to", e.Dst)

	switch e.Dst {
	case DiscoverySetTIDSent:
		a.report(Progress{Phase: PhaseDiscovery})
		a.request(ctx, protocol.TypeBase, protocol.CmdSetTID, protocol.SetTIDRequest{TID: a.config.TID})
	case DiscoveryGetTIDSent:
		a.request(ctx, protocol.TypeBase, protocol.CmdGetTID, nil)
	case DiscoveryGetTypesSent:
		a.request(ctx, protocol.TypeBase, protocol.CmdGetTypes, nil)
	case DiscoveryGetVersionType0Sent, DiscoveryGetVersionType5Sent:
		a.request(ctx, protocol.TypeBase, protocol.CmdGetVersion, protocol.GetVersionRequest{
			Flag: protocol.GetFirstPart,
			Type: a.discoveryType(),
		})
	case DiscoveryGetCommandsType0Sent, DiscoveryGetCommandsType5Sent:
		t := a.discoveryType()
		a.request(ctx, protocol.TypeBase, protocol.CmdGetCommands, protocol.GetCommandsRequest{
			Type:    t,
			Version: a.versions[t],
		})
	case DiscoveryDone:
		if e.Event == evNext {
			a.log.Info("discovery complete", "tid", a.config.TID)
			a.push(a.update, evStart)
		}
	}
}

// discoveryType returns the PLDM type the current discovery step is about.
func (a *Agent) discoveryType() uint8 {
	switch a.discovery.Current() {
	case DiscoveryGetVersionType5Sent, DiscoveryGetCommandsType5Sent:
		return protocol.TypeFirmwareUpdate
	default:
		return protocol.TypeBase
	}
}

// discoveryResponse checks a control response and moves discovery on.
func (a *Agent) discoveryResponse(ctx context.Context, hdr protocol.Header, msg []byte) error {
	name := protocol.ControlCommandName(hdr.Command)
	if err := a.checkDiscovery(hdr, msg); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDiscovery, name, err)
	}
	a.push(a.discovery, evNext)
	return nil
}

func (a *Agent) checkDiscovery(hdr protocol.Header, msg []byte) error {
	checks := a.config.Discovery
	name := protocol.ControlCommandName(hdr.Command)

	switch hdr.Command {
	case protocol.CmdSetTID:
		var resp protocol.CodeResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		return protocol.CheckCompletion(name, protocol.TypeBase, resp.CompletionCode)

	case protocol.CmdGetTID:
		var resp protocol.GetTIDResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if err := protocol.CheckCompletion(name, protocol.TypeBase, resp.CompletionCode); err != nil {
			return err
		}
		return checks.CheckTID(a.config.TID, resp.TID)

	case protocol.CmdGetTypes:
		var resp protocol.GetTypesResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if err := protocol.CheckCompletion(name, protocol.TypeBase, resp.CompletionCode); err != nil {
			return err
		}
		return checks.CheckTypes(resp.Types)

	case protocol.CmdGetVersion:
		var resp protocol.GetVersionResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if err := protocol.CheckCompletion(name, protocol.TypeBase, resp.CompletionCode); err != nil {
			return err
		}
		if resp.Flag != protocol.TransferStartAndEnd {
			return fmt.Errorf("multipart version data (%s) not supported", resp.Flag)
		}
		t := a.discoveryType()
		if err := checks.CheckVersion(t, resp.Version); err != nil {
			return err
		}
		a.versions[t] = resp.Version
		return nil

	case protocol.CmdGetCommands:
		var resp protocol.GetCommandsResponse
		if err := protocol.DecodePayload(msg, &resp); err != nil {
			return err
		}
		if err := protocol.CheckCompletion(name, protocol.TypeBase, resp.CompletionCode); err != nil {
			return err
		}
		return checks.CheckCommands(a.discoveryType(), resp.Commands)
	}
	return fmt.Errorf("unexpected control command 0x%02X", hdr.Command)
}
