// Package transport moves whole PLDM messages between an update agent and a
// firmware device.
//
// Socket is the only thing the device and agent packages need. Pipe connects
// two endpoints in memory; StreamSocket frames messages over a net.Conn with
// a 2-byte little-endian length; MCTPSocket adds the MCTP message-type byte
// for links that carry MCTP message bodies.
//
//	ln, _ := net.Listen("tcp", ":5000")
//	err := transport.Serve(ctx, ln, func(ctx context.Context, sock transport.Socket) error {
//	    return svc.Run(ctx, sock)
//	})
package transport
