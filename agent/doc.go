// Package agent implements the update agent (UA) side of a PLDM firmware
// update.
//
// # Overview
//
// An Agent pushes the components of a firmware package to one firmware
// device (FD) reachable over a transport.Socket. It runs two state machines:
//   - discovery assigns a TID and checks that the FD speaks the base and
//     firmware update types
//   - update identifies the FD, selects components, passes the component
//     table and serves the image data the FD pulls
//
// Both machines are driven from a single event loop, so callbacks never run
// concurrently with each other.
//
// # Basic Usage
//
//	pkg, err := fwpkg.Load("manifest.yaml")
//	if err != nil {
//	    return err
//	}
//
//	ua := agent.New(sock, pkg,
//	    agent.WithLogger(logger),
//	    agent.WithResponseTimeout(5*time.Second),
//	)
//	if err := ua.Run(ctx); err != nil {
//	    return err
//	}
//
// Run returns nil once ActivateFirmware succeeded. ErrNothingToUpdate means
// the FD already runs every component the package carries.
//
// # Actions
//
// DiscoveryActions and UpdateActions hold the decisions an integrator may
// want to change: which FD capabilities are required, which device record
// matches the FD, which components are sent, and how image data is served.
// The defaults cover the common case; embed them to override a single
// method.
//
// # Cancellation
//
// Cancel, or cancelling the context given to Run, stops the update. When the
// FD is in update mode it is sent CancelUpdate first.
package agent
