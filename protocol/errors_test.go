package protocol

import (
	"fmt"
	"testing"
)

func TestProtocolError(t *testing.T) {
	RegisterCodeNames(0x3E, map[CompletionCode]string{0x80: "vendor busy"})

	tests := []struct {
		name string
		err  *ProtocolError
		want string
	}{
		{
			name: "generic code",
			err:  &ProtocolError{Operation: "get tid", Type: TypeBase, Code: NotReady},
			want: "get tid failed: not ready (0x04)",
		},
		{
			name: "control code",
			err:  &ProtocolError{Operation: "get version", Type: TypeBase, Code: InvalidTransferOperationFlag},
			want: "get version failed: invalid transfer operation flag (0x81)",
		},
		{
			name: "registered type code",
			err:  &ProtocolError{Operation: "probe", Type: 0x3E, Code: 0x80},
			want: "probe failed: vendor busy (0x80)",
		},
		{
			name: "unknown code",
			err:  &ProtocolError{Operation: "probe", Type: 0x3E, Code: 0x99},
			want: "probe failed: unknown completion code 0x99 (0x99)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckCompletion(t *testing.T) {
	if err := CheckCompletion("x", TypeBase, Success); err != nil {
		t.Errorf("CheckCompletion(Success) = %v", err)
	}

	err := CheckCompletion("x", TypeBase, Error)
	if !IsProtocolError(err) {
		t.Errorf("IsProtocolError(%v) = false", err)
	}
	if !IsProtocolError(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsProtocolError() = false for wrapped error")
	}
	if IsProtocolError(fmt.Errorf("plain")) {
		t.Error("IsProtocolError() = true for plain error")
	}
}
