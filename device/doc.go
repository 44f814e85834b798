// Package device implements the firmware device (FD) side of a PLDM
// firmware update.
//
// # Overview
//
// An FD is a passive state machine. Every message received from the update
// agent and every timer tick is fed to Step, which returns at most one
// message to send back:
//   - a response to an agent request
//   - an FD request (RequestFirmwareData, TransferComplete, VerifyComplete,
//     ApplyComplete) while a component is being updated
//
// The platform work (storing data, verifying, applying, activating) is done
// by an Ops implementation supplied by the caller.
//
// # Basic Usage
//
//	fd := device.New(myOps,
//	    device.WithLogger(logger),
//	    device.WithT1Timeout(60*time.Second),
//	)
//
//	for {
//	    msg, _ := sock.Receive(ctx)
//	    out, err := fd.Step(ctx, time.Now(), msg)
//	    if err == nil && out != nil {
//	        sock.Send(ctx, out)
//	    }
//	}
//
// Step must also be called with a nil message at regular intervals so the
// FD can time out and send its own requests. Service does all of this over
// a transport.Socket:
//
//	err := device.NewService(fd, sock).Run(ctx)
//
// # States
//
// The FD starts in Idle. RequestUpdate moves it to LearnComponents, the
// last PassComponentTable entry to ReadyXfer, and an accepted
// UpdateComponent to Download. Download, Verify and Apply are left through
// the matching *Complete request; ApplyComplete returns to ReadyXfer.
// ActivateFirmware ends the update in Idle. CancelUpdate and the T1
// inactivity timeout return to Idle from any state.
//
// # Testing
//
// MemoryOps keeps images in memory and is enough to run a complete update
// against an agent without hardware.
package device
