package fwupdate

import (
	"fmt"

	"github.com/moffa90/go-pldm/protocol"
)

// RequestUpdateRequest asks the FD to enter update mode.
type RequestUpdateRequest struct {
	MaxTransferSize           uint32
	NumComponents             uint16
	MaxOutstandingTransferReq uint8
	PackageDataLength         uint16
	ImageSetVersion           FirmwareString
}

func (r RequestUpdateRequest) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint32(r.MaxTransferSize); err != nil {
		return err
	}
	if err := m.PutUint16(r.NumComponents); err != nil {
		return err
	}
	if err := m.PutUint8(r.MaxOutstandingTransferReq); err != nil {
		return err
	}
	if err := m.PutUint16(r.PackageDataLength); err != nil {
		return err
	}
	if err := r.ImageSetVersion.encodePrefix(m); err != nil {
		return err
	}
	return r.ImageSetVersion.encodeData(m)
}

func (r *RequestUpdateRequest) Decode(m *protocol.MessageBuf) error {
	var err error
	if r.MaxTransferSize, err = m.Uint32(); err != nil {
		return err
	}
	if r.NumComponents, err = m.Uint16(); err != nil {
		return err
	}
	if r.MaxOutstandingTransferReq, err = m.Uint8(); err != nil {
		return err
	}
	if r.PackageDataLength, err = m.Uint16(); err != nil {
		return err
	}
	n, err := r.ImageSetVersion.decodePrefix(m)
	if err != nil {
		return err
	}
	if n != m.Len() {
		return fmt.Errorf("image set version length %d, %d bytes remain", n, m.Len())
	}
	return r.ImageSetVersion.decodeData(m, n)
}

// FD will-send-package-data values of RequestUpdateResponse.
const (
	PackageDataNotSupported uint8 = 0
	PackageDataWillSend     uint8 = 1
	PackageDataWillSendSize uint8 = 2
)

// RequestUpdateResponse is the FD's answer to RequestUpdate.
// GetPackageDataMaxTransferSize is on the wire only when
// FDWillSendPackageData is PackageDataWillSendSize.
type RequestUpdateResponse struct {
	CompletionCode                protocol.CompletionCode
	FDMetaDataLength              uint16
	FDWillSendPackageData         uint8
	GetPackageDataMaxTransferSize uint32
}

func (r RequestUpdateResponse) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil {
		return err
	}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	if err := m.PutUint16(r.FDMetaDataLength); err != nil {
		return err
	}
	if err := m.PutUint8(r.FDWillSendPackageData); err != nil {
		return err
	}
	if r.FDWillSendPackageData == PackageDataWillSendSize {
		return m.PutUint32(r.GetPackageDataMaxTransferSize)
	}
	return nil
}

func (r *RequestUpdateResponse) Decode(m *protocol.MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	*r = RequestUpdateResponse{CompletionCode: protocol.CompletionCode(cc)}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	if r.FDMetaDataLength, err = m.Uint16(); err != nil {
		return err
	}
	if r.FDWillSendPackageData, err = m.Uint8(); err != nil {
		return err
	}
	if r.FDWillSendPackageData == PackageDataWillSendSize {
		r.GetPackageDataMaxTransferSize, err = m.Uint32()
	}
	return err
}

// PassComponentTableRequest carries one entry of the component table.
type PassComponentTableRequest struct {
	Flag                protocol.TransferFlag
	Classification      Classification
	Identifier          uint16
	ClassificationIndex uint8
	ComparisonStamp     uint32
	Version             FirmwareString
}

// Component returns the component described by r.
func (r *PassComponentTableRequest) Component() FirmwareComponent {
	return FirmwareComponent{
		Classification:      r.Classification,
		Identifier:          r.Identifier,
		ClassificationIndex: r.ClassificationIndex,
		ComparisonStamp:     r.ComparisonStamp,
		Version:             r.Version,
	}
}

func (r PassComponentTableRequest) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.Flag)); err != nil {
		return err
	}
	if err := m.PutUint16(uint16(r.Classification)); err != nil {
		return err
	}
	if err := m.PutUint16(r.Identifier); err != nil {
		return err
	}
	if err := m.PutUint8(r.ClassificationIndex); err != nil {
		return err
	}
	if err := m.PutUint32(r.ComparisonStamp); err != nil {
		return err
	}
	if err := r.Version.encodePrefix(m); err != nil {
		return err
	}
	return r.Version.encodeData(m)
}

func (r *PassComponentTableRequest) Decode(m *protocol.MessageBuf) error {
	flag, err := m.Uint8()
	if err != nil {
		return err
	}
	r.Flag = protocol.TransferFlag(flag)
	class, err := m.Uint16()
	if err != nil {
		return err
	}
	r.Classification = Classification(class)
	if r.Identifier, err = m.Uint16(); err != nil {
		return err
	}
	if r.ClassificationIndex, err = m.Uint8(); err != nil {
		return err
	}
	if r.ComparisonStamp, err = m.Uint32(); err != nil {
		return err
	}
	n, err := r.Version.decodePrefix(m)
	if err != nil {
		return err
	}
	if n != m.Len() {
		return fmt.Errorf("component version length %d, %d bytes remain", n, m.Len())
	}
	return r.Version.decodeData(m, n)
}

// PassComponentTableResponse is the FD verdict on one table entry.
type PassComponentTableResponse struct {
	CompletionCode protocol.CompletionCode
	Response       ComponentResponse
	ResponseCode   ComponentResponseCode
}

func (r PassComponentTableResponse) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil {
		return err
	}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	if err := m.PutUint8(uint8(r.Response)); err != nil {
		return err
	}
	return m.PutUint8(uint8(r.ResponseCode))
}

func (r *PassComponentTableResponse) Decode(m *protocol.MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	*r = PassComponentTableResponse{CompletionCode: protocol.CompletionCode(cc)}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	resp, err := m.Uint8()
	if err != nil {
		return err
	}
	code, err := m.Uint8()
	if err != nil {
		return err
	}
	r.Response = ComponentResponse(resp)
	r.ResponseCode = ComponentResponseCode(code)
	return nil
}

// UpdateComponentRequest selects the next component to transfer.
type UpdateComponentRequest struct {
	Classification      Classification
	Identifier          uint16
	ClassificationIndex uint8
	ComparisonStamp     uint32
	ImageSize           uint32
	OptionFlags         UpdateOptionFlags
	Version             FirmwareString
}

// Component returns the component described by r.
func (r *UpdateComponentRequest) Component() FirmwareComponent {
	return FirmwareComponent{
		Classification:      r.Classification,
		Identifier:          r.Identifier,
		ClassificationIndex: r.ClassificationIndex,
		ComparisonStamp:     r.ComparisonStamp,
		Version:             r.Version,
		ImageSize:           r.ImageSize,
		OptionFlags:         r.OptionFlags,
	}
}

func (r UpdateComponentRequest) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint16(uint16(r.Classification)); err != nil {
		return err
	}
	if err := m.PutUint16(r.Identifier); err != nil {
		return err
	}
	if err := m.PutUint8(r.ClassificationIndex); err != nil {
		return err
	}
	if err := m.PutUint32(r.ComparisonStamp); err != nil {
		return err
	}
	if err := m.PutUint32(r.ImageSize); err != nil {
		return err
	}
	if err := m.PutUint32(uint32(r.OptionFlags)); err != nil {
		return err
	}
	if err := r.Version.encodePrefix(m); err != nil {
		return err
	}
	return r.Version.encodeData(m)
}

func (r *UpdateComponentRequest) Decode(m *protocol.MessageBuf) error {
	class, err := m.Uint16()
	if err != nil {
		return err
	}
	r.Classification = Classification(class)
	if r.Identifier, err = m.Uint16(); err != nil {
		return err
	}
	if r.ClassificationIndex, err = m.Uint8(); err != nil {
		return err
	}
	if r.ComparisonStamp, err = m.Uint32(); err != nil {
		return err
	}
	if r.ImageSize, err = m.Uint32(); err != nil {
		return err
	}
	flags, err := m.Uint32()
	if err != nil {
		return err
	}
	r.OptionFlags = UpdateOptionFlags(flags)
	n, err := r.Version.decodePrefix(m)
	if err != nil {
		return err
	}
	if n != m.Len() {
		return fmt.Errorf("component version length %d, %d bytes remain", n, m.Len())
	}
	return r.Version.decodeData(m, n)
}

// UpdateComponentResponse is the FD verdict on UpdateComponent.
// OpaqueDataMaxTransferSize is on the wire only when OptionComponentOpaqueData
// is set in FlagsEnabled.
type UpdateComponentResponse struct {
	CompletionCode            protocol.CompletionCode
	CompatibilityResponse     ComponentResponse
	CompatibilityCode         CompatibilityResponseCode
	FlagsEnabled              UpdateOptionFlags
	TimeBeforeRequestFwData   uint16
	OpaqueDataMaxTransferSize uint32
}

func (r UpdateComponentResponse) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil {
		return err
	}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	if err := m.PutUint8(uint8(r.CompatibilityResponse)); err != nil {
		return err
	}
	if err := m.PutUint8(uint8(r.CompatibilityCode)); err != nil {
		return err
	}
	if err := m.PutUint32(uint32(r.FlagsEnabled)); err != nil {
		return err
	}
	if err := m.PutUint16(r.TimeBeforeRequestFwData); err != nil {
		return err
	}
	if r.FlagsEnabled&OptionComponentOpaqueData != 0 {
		return m.PutUint32(r.OpaqueDataMaxTransferSize)
	}
	return nil
}

func (r *UpdateComponentResponse) Decode(m *protocol.MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	*r = UpdateComponentResponse{CompletionCode: protocol.CompletionCode(cc)}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	resp, err := m.Uint8()
	if err != nil {
		return err
	}
	code, err := m.Uint8()
	if err != nil {
		return err
	}
	flags, err := m.Uint32()
	if err != nil {
		return err
	}
	r.CompatibilityResponse = ComponentResponse(resp)
	r.CompatibilityCode = CompatibilityResponseCode(code)
	r.FlagsEnabled = UpdateOptionFlags(flags)
	if r.TimeBeforeRequestFwData, err = m.Uint16(); err != nil {
		return err
	}
	if r.FlagsEnabled&OptionComponentOpaqueData != 0 {
		r.OpaqueDataMaxTransferSize, err = m.Uint32()
	}
	return err
}

// RequestFirmwareDataRequest pulls length bytes at offset of the current component.
type RequestFirmwareDataRequest struct {
	Offset uint32
	Length uint32
}

func (r RequestFirmwareDataRequest) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint32(r.Offset); err != nil {
		return err
	}
	return m.PutUint32(r.Length)
}

func (r *RequestFirmwareDataRequest) Decode(m *protocol.MessageBuf) error {
	var err error
	if r.Offset, err = m.Uint32(); err != nil {
		return err
	}
	r.Length, err = m.Uint32()
	return err
}

// RequestFirmwareDataResponse carries the image bytes. Decode takes every
// byte after the completion code.
type RequestFirmwareDataResponse struct {
	CompletionCode protocol.CompletionCode
	Data           []byte
}

func (r RequestFirmwareDataResponse) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil {
		return err
	}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	return m.PutBytes(r.Data)
}

func (r *RequestFirmwareDataResponse) Decode(m *protocol.MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	*r = RequestFirmwareDataResponse{CompletionCode: protocol.CompletionCode(cc)}
	if r.CompletionCode != protocol.Success || m.Len() == 0 {
		return nil
	}
	r.Data, err = m.ReadBytes(m.Len())
	return err
}

// TransferCompleteRequest reports the end of a component transfer.
type TransferCompleteRequest struct {
	Result TransferResult
}

func (r TransferCompleteRequest) Encode(m *protocol.MessageBuf) error {
	return m.PutUint8(uint8(r.Result))
}

func (r *TransferCompleteRequest) Decode(m *protocol.MessageBuf) error {
	v, err := m.Uint8()
	r.Result = TransferResult(v)
	return err
}

// VerifyCompleteRequest reports the end of verification.
type VerifyCompleteRequest struct {
	Result VerifyResult
}

func (r VerifyCompleteRequest) Encode(m *protocol.MessageBuf) error {
	return m.PutUint8(uint8(r.Result))
}

func (r *VerifyCompleteRequest) Decode(m *protocol.MessageBuf) error {
	v, err := m.Uint8()
	r.Result = VerifyResult(v)
	return err
}

// ApplyCompleteRequest reports the end of the apply phase.
type ApplyCompleteRequest struct {
	Result                        ApplyResult
	ActivationMethodsModification ActivationMethods
}

func (r ApplyCompleteRequest) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.Result)); err != nil {
		return err
	}
	return m.PutUint16(uint16(r.ActivationMethodsModification))
}

func (r *ApplyCompleteRequest) Decode(m *protocol.MessageBuf) error {
	v, err := m.Uint8()
	if err != nil {
		return err
	}
	r.Result = ApplyResult(v)
	methods, err := m.Uint16()
	r.ActivationMethodsModification = ActivationMethods(methods)
	return err
}

// ActivateFirmwareRequest activates every applied component.
type ActivateFirmwareRequest struct {
	SelfContainedActivation uint8
}

func (r ActivateFirmwareRequest) Encode(m *protocol.MessageBuf) error {
	return m.PutUint8(r.SelfContainedActivation)
}

func (r *ActivateFirmwareRequest) Decode(m *protocol.MessageBuf) error {
	var err error
	r.SelfContainedActivation, err = m.Uint8()
	return err
}

// ActivateFirmwareResponse carries the estimated activation time in seconds.
type ActivateFirmwareResponse struct {
	CompletionCode protocol.CompletionCode
	EstimatedTime  uint16
}

func (r ActivateFirmwareResponse) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil {
		return err
	}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	return m.PutUint16(r.EstimatedTime)
}

func (r *ActivateFirmwareResponse) Decode(m *protocol.MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	*r = ActivateFirmwareResponse{CompletionCode: protocol.CompletionCode(cc)}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	r.EstimatedTime, err = m.Uint16()
	return err
}

// GetStatusResponse reports the FD state.
type GetStatusResponse struct {
	CompletionCode  protocol.CompletionCode
	CurrentState    State
	PreviousState   State
	AuxState        AuxState
	AuxStateStatus  AuxStateStatus
	ProgressPercent uint8
	Reason          ReasonCode
	FlagsEnabled    UpdateOptionFlags
}

func (r GetStatusResponse) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil {
		return err
	}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	for _, v := range []uint8{
		uint8(r.CurrentState),
		uint8(r.PreviousState),
		uint8(r.AuxState),
		uint8(r.AuxStateStatus),
		r.ProgressPercent,
		uint8(r.Reason),
	} {
		if err := m.PutUint8(v); err != nil {
			return err
		}
	}
	return m.PutUint32(uint32(r.FlagsEnabled))
}

func (r *GetStatusResponse) Decode(m *protocol.MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	*r = GetStatusResponse{CompletionCode: protocol.CompletionCode(cc)}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	var b [6]byte
	if err := m.ReadInto(b[:]); err != nil {
		return err
	}
	r.CurrentState = State(b[0])
	r.PreviousState = State(b[1])
	r.AuxState = AuxState(b[2])
	r.AuxStateStatus = AuxStateStatus(b[3])
	r.ProgressPercent = b[4]
	r.Reason = ReasonCode(b[5])
	flags, err := m.Uint32()
	r.FlagsEnabled = UpdateOptionFlags(flags)
	return err
}

// CancelUpdateResponse reports which components were left non-functional.
type CancelUpdateResponse struct {
	CompletionCode          protocol.CompletionCode
	NonFunctioningComponent bool
	NonFunctioningBitmap    uint64
}

func (r CancelUpdateResponse) Encode(m *protocol.MessageBuf) error {
	if err := m.PutUint8(uint8(r.CompletionCode)); err != nil {
		return err
	}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	var ind uint8
	if r.NonFunctioningComponent {
		ind = 1
	}
	if err := m.PutUint8(ind); err != nil {
		return err
	}
	return m.PutUint64(r.NonFunctioningBitmap)
}

func (r *CancelUpdateResponse) Decode(m *protocol.MessageBuf) error {
	cc, err := m.Uint8()
	if err != nil {
		return err
	}
	*r = CancelUpdateResponse{CompletionCode: protocol.CompletionCode(cc)}
	if r.CompletionCode != protocol.Success {
		return nil
	}
	ind, err := m.Uint8()
	if err != nil {
		return err
	}
	r.NonFunctioningComponent = ind != 0
	r.NonFunctioningBitmap, err = m.Uint64()
	return err
}
