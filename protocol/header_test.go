package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderPack(t *testing.T) {
	tests := []struct {
		name string
		hdr  Header
		want []byte
	}{
		{
			name: "get tid request",
			hdr:  NewRequestHeader(1, TypeBase, CmdGetTID),
			want: []byte{0x81, 0x00, 0x02},
		},
		{
			name: "firmware update response",
			hdr:  Header{InstanceID: 0x1F, Type: TypeFirmwareUpdate, Command: 0x15},
			want: []byte{0x1F, 0x05, 0x15},
		},
		{
			name: "datagram request",
			hdr:  Header{Request: true, Datagram: true, InstanceID: 3, Type: TypeFirmwareUpdate, Command: 0x1B},
			want: []byte{0xC3, 0x05, 0x1B},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed := tt.hdr.Pack()
			if !bytes.Equal(packed[:], tt.want) {
				t.Errorf("Pack() = % X, want % X", packed, tt.want)
			}

			got, err := UnpackHeader(packed[:])
			if err != nil {
				t.Fatalf("UnpackHeader() error = %v", err)
			}
			if got != tt.hdr {
				t.Errorf("UnpackHeader() = %+v, want %+v", got, tt.hdr)
			}
		})
	}
}

func TestUnpackHeaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		errMsg string
	}{
		{
			name:   "too short",
			data:   []byte{0x80, 0x00},
			errMsg: "need 3 bytes",
		},
		{
			name:   "bad header version",
			data:   []byte{0x80, 0x40, 0x02},
			errMsg: "unsupported header version 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnpackHeader(tt.data)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			if !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("error = %v, want ErrInvalidHeader", err)
			}
			if !bytes.Contains([]byte(err.Error()), []byte(tt.errMsg)) {
				t.Errorf("error = %v, want substring %q", err, tt.errMsg)
			}
		})
	}
}

func TestHeaderResponse(t *testing.T) {
	req := Header{Request: true, Datagram: true, InstanceID: 7, Type: TypeFirmwareUpdate, Command: 0x10}
	resp := req.Response()

	if resp.Request || resp.Datagram {
		t.Errorf("Response() kept Rq/D bits: %+v", resp)
	}
	if resp.InstanceID != 7 || resp.Type != TypeFirmwareUpdate || resp.Command != 0x10 {
		t.Errorf("Response() = %+v, want same instance/type/command", resp)
	}
	if !req.Matches(resp) {
		t.Error("Matches() = false for own response")
	}

	other := resp
	other.InstanceID = 8
	if req.Matches(other) {
		t.Error("Matches() = true for a different instance ID")
	}
	if req.Matches(req) {
		t.Error("Matches() = true for a request")
	}
}

func TestHeaderValidate(t *testing.T) {
	if err := (Header{InstanceID: 32}).Validate(); err == nil {
		t.Error("expected error for instance ID 32")
	}
	if err := (Header{Type: 0x40}).Validate(); err == nil {
		t.Error("expected error for type 0x40")
	}
	if err := (Header{Version: 2}).Validate(); err == nil {
		t.Error("expected error for header version 2")
	}
	if err := NewRequestHeader(31, TypeOEM, 0xFF).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestEncodeMessagePushesHeader(t *testing.T) {
	msg, err := EncodeMessage(NewRequestHeader(2, TypeBase, CmdSetTID), SetTIDRequest{TID: 0x42})
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}
	want := []byte{0x82, 0x00, 0x01, 0x42}
	if !bytes.Equal(msg, want) {
		t.Errorf("EncodeMessage() = % X, want % X", msg, want)
	}

	var req SetTIDRequest
	hdr, err := DecodeMessage(msg, &req)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if hdr.Command != CmdSetTID || req.TID != 0x42 {
		t.Errorf("DecodeMessage() = %+v, %+v", hdr, req)
	}
}

func TestDecodeMessageShortPayload(t *testing.T) {
	var req GetVersionRequest
	_, err := DecodeMessage([]byte{0x80, 0x00, 0x03, 0x00, 0x00}, &req)
	if err == nil {
		t.Fatal("expected error for truncated payload")
	}
	if !errors.Is(err, ErrRead) || !errors.Is(err, ErrBufferUnderflow) {
		t.Errorf("error = %v, want ErrRead wrapping ErrBufferUnderflow", err)
	}
}

func TestEncodeFailure(t *testing.T) {
	req := NewRequestHeader(9, TypeFirmwareUpdate, 0x10)
	msg, err := EncodeFailure(req, NotReady)
	if err != nil {
		t.Fatalf("EncodeFailure() error = %v", err)
	}
	want := []byte{0x09, 0x05, 0x10, 0x04}
	if !bytes.Equal(msg, want) {
		t.Errorf("EncodeFailure() = % X, want % X", msg, want)
	}

	cc, err := ResponseCode(msg)
	if err != nil || cc != NotReady {
		t.Errorf("ResponseCode() = %v, %v", cc, err)
	}
}
