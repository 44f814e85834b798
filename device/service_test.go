package device

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"

	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
	"github.com/moffa90/go-pldm/transport"
)

func TestServiceAnswersAndStops(t *testing.T) {
	fdSock, uaSock := transport.Pipe()
	fd := New(NewMemoryOps(testDescriptors(), testParams()),
		WithLogger(testr.New(t)),
		WithMetrics(false),
		WithPollInterval(5*time.Millisecond),
	)
	svc := NewService(fd, fdSock)
	if svc.FD() != fd {
		t.Fatal("FD() does not return the served device")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	req, _ := protocol.EncodeMessage(protocol.NewRequestHeader(7, protocol.TypeFirmwareUpdate, fwupdate.CmdQueryDeviceIdentifiers), nil)
	if err := uaSock.Send(ctx, req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	out, err := uaSock.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	var resp fwupdate.QueryDeviceIdentifiersResponse
	hdr, err := protocol.DecodeMessage(out, &resp)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if hdr.InstanceID != 7 || resp.CompletionCode != protocol.Success {
		t.Fatalf("response = %v %v, want Success for instance 7", hdr, resp.CompletionCode)
	}
	if d, ok := resp.Initial(); !ok || !d.Equal(testDescriptors()[0]) {
		t.Errorf("initial descriptor = %v, want %v", d, testDescriptors()[0])
	}

	// A stray response is dropped without stopping the service.
	stray, _ := protocol.EncodeMessage(protocol.Header{InstanceID: 1, Type: protocol.TypeFirmwareUpdate, Command: fwupdate.CmdTransferComplete},
		protocol.CodeResponse{})
	if err := uaSock.Send(ctx, stray); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	uaSock.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after close", err)
		}
	case <-ctx.Done():
		t.Fatal("Run() did not return after the socket closed")
	}
}

func TestServiceDrivesDownload(t *testing.T) {
	fdSock, uaSock := transport.Pipe()
	mem := NewMemoryOps(testDescriptors(), testParams())
	fd := New(mem, WithLogger(testr.New(t)), WithMetrics(false), WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go NewService(fd, fdSock).Run(ctx)

	iid := uint8(0)
	call := func(cmd uint8, p protocol.Encoder) []byte {
		t.Helper()
		msg, _ := protocol.EncodeMessage(protocol.NewRequestHeader(iid, protocol.TypeFirmwareUpdate, cmd), p)
		iid++
		if err := uaSock.Send(ctx, msg); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		out, err := uaSock.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		return out
	}

	comp := newComponent(100)
	call(fwupdate.CmdRequestUpdate, fwupdate.RequestUpdateRequest{
		MaxTransferSize:           64,
		NumComponents:             1,
		MaxOutstandingTransferReq: 1,
	})
	call(fwupdate.CmdPassComponentTable, passRequest(comp, protocol.TransferStartAndEnd))
	call(fwupdate.CmdUpdateComponent, updateRequest(comp))

	// The FD starts pulling data without being asked.
	out, err := uaSock.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	var req fwupdate.RequestFirmwareDataRequest
	hdr, err := protocol.DecodeMessage(out, &req)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if !hdr.Request || hdr.Command != fwupdate.CmdRequestFirmwareData {
		t.Fatalf("FD request = %v, want RequestFirmwareData", hdr)
	}
	if req.Offset != 0 || req.Length != 64 {
		t.Errorf("first chunk = %+v, want offset 0 length 64", req)
	}
	uaSock.Close()
}
