package protocol

// TIDUnassigned is the terminus ID reported before SetTID.
const TIDUnassigned = 0x00

// TypeBitmap is the GetPLDMTypes bitmap; bit N set means type N is supported.
type TypeBitmap [TypesBitmapSize]byte

// Set marks t as supported.
func (b *TypeBitmap) Set(t uint8) {
	if int(t/8) < len(b) {
		b[t/8] |= 1 << (t % 8)
	}
}

// Has reports whether t is marked as supported.
func (b TypeBitmap) Has(t uint8) bool {
	return int(t/8) < len(b) && b[t/8]&(1<<(t%8)) != 0
}

// CommandBitmap is the GetPLDMCommands bitmap; bit N set means command N is supported.
type CommandBitmap [CommandsBitmapSize]byte

// Set marks cmd as supported.
func (b *CommandBitmap) Set(cmd uint8) {
	b[cmd/8] |= 1 << (cmd % 8)
}

// Has reports whether cmd is marked as supported.
func (b CommandBitmap) Has(cmd uint8) bool {
	return b[cmd/8]&(1<<(cmd%8)) != 0
}

// NewCommandBitmap returns a bitmap with cmds set.
func NewCommandBitmap(cmds ...uint8) CommandBitmap {
	var b CommandBitmap
	for _, c := range cmds {
		b.Set(c)
	}
	return b
}

// GetTIDResponse is the response to GetTID.
type GetTIDResponse struct {
	CompletionCode CompletionCode
	TID            uint8
}

func (r GetTIDResponse) Encode(m *MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil || r.CompletionCode != Success {
		return err
	}
	return m.PutUint8(r.TID)
}

func (r *GetTIDResponse) Decode(m *MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	r.CompletionCode = CompletionCode(cc)
	if r.CompletionCode != Success {
		return nil
	}
	r.TID, err = m.Uint8()
	return err
}

// SetTIDRequest assigns a terminus ID to the responder.
type SetTIDRequest struct {
	TID uint8
}

func (r SetTIDRequest) Encode(m *MessageBuf) error {
	return m.PutUint8(r.TID)
}

func (r *SetTIDRequest) Decode(m *MessageBuf) error {
	var err error
	r.TID, err = m.Uint8()
	return err
}

// GetTypesResponse is the response to GetPLDMTypes.
type GetTypesResponse struct {
	CompletionCode CompletionCode
	Types          TypeBitmap
}

func (r GetTypesResponse) Encode(m *MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil || r.CompletionCode != Success {
		return err
	}
	return m.PutBytes(r.Types[:])
}

func (r *GetTypesResponse) Decode(m *MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	r.CompletionCode = CompletionCode(cc)
	if r.CompletionCode != Success {
		return nil
	}
	return m.ReadInto(r.Types[:])
}

// GetCommandsRequest asks for the commands supported for a type at a version.
type GetCommandsRequest struct {
	Type    uint8
	Version Ver32
}

func (r GetCommandsRequest) Encode(m *MessageBuf) error {
	if err := m.PutUint8(r.Type); err != nil {
		return err
	}
	return r.Version.Encode(m)
}

func (r *GetCommandsRequest) Decode(m *MessageBuf) error {
	var err error
	if r.Type, err = m.Uint8(); err != nil {
		return err
	}
	return r.Version.Decode(m)
}

// GetCommandsResponse is the response to GetPLDMCommands.
type GetCommandsResponse struct {
	CompletionCode CompletionCode
	Commands       CommandBitmap
}

func (r GetCommandsResponse) Encode(m *MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil || r.CompletionCode != Success {
		return err
	}
	return m.PutBytes(r.Commands[:])
}

func (r *GetCommandsResponse) Decode(m *MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	r.CompletionCode = CompletionCode(cc)
	if r.CompletionCode != Success {
		return nil
	}
	return m.ReadInto(r.Commands[:])
}

// GetVersionRequest asks for the versions of a PLDM type, one part at a time.
type GetVersionRequest struct {
	TransferHandle uint32
	Flag           TransferOperationFlag
	Type           uint8
}

func (r GetVersionRequest) Encode(m *MessageBuf) error {
	if err := m.PutUint32(r.TransferHandle); err != nil {
		return err
	}
	if err := m.PutUint8(uint8(r.Flag)); err != nil {
		return err
	}
	return m.PutUint8(r.Type)
}

func (r *GetVersionRequest) Decode(m *MessageBuf) error {
	var err error
	if r.TransferHandle, err = m.Uint32(); err != nil {
		return err
	}
	flag, err := m.Uint8()
	if err != nil {
		return err
	}
	r.Flag = TransferOperationFlag(flag)
	r.Type, err = m.Uint8()
	return err
}

// GetVersionResponse carries one part of the version data of a type.
// This library only ever sends a single StartAndEnd part with one version.
type GetVersionResponse struct {
	CompletionCode     CompletionCode
	NextTransferHandle uint32
	Flag               TransferFlag
	Version            Ver32
}

func (r GetVersionResponse) Encode(m *MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil || r.CompletionCode != Success {
		return err
	}
	if err := m.PutUint32(r.NextTransferHandle); err != nil {
		return err
	}
	if err := m.PutUint8(uint8(r.Flag)); err != nil {
		return err
	}
	return r.Version.Encode(m)
}

func (r *GetVersionResponse) Decode(m *MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	r.CompletionCode = CompletionCode(cc)
	if r.CompletionCode != Success {
		return nil
	}
	if r.NextTransferHandle, err = m.Uint32(); err != nil {
		return err
	}
	flag, err := m.Uint8()
	if err != nil {
		return err
	}
	r.Flag = TransferFlag(flag)
	return r.Version.Decode(m)
}
