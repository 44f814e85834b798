package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/moffa90/go-pldm/fwupdate"
	"github.com/moffa90/go-pldm/protocol"
)

// MemoryOps is an Ops that keeps received images in memory. Applied images
// become pending and are promoted to active by Activate. It backs the mock
// device and the tests.
type MemoryOps struct {
	mu sync.Mutex

	descriptors    []fwupdate.Descriptor
	params         fwupdate.FirmwareParameters
	maxTransfer    uint32
	activationTime uint16
	steps          int
	verifier       func(comp fwupdate.FirmwareComponent, image []byte) fwupdate.VerifyResult

	current  *memoryDownload
	pending  map[componentKey][]byte
	active   map[componentKey][]byte
	cancels  int
	activity []string
}

type componentKey struct {
	class fwupdate.Classification
	id    uint16
	index uint8
}

func keyOf(c *fwupdate.FirmwareComponent) componentKey {
	return componentKey{class: c.Classification, id: c.Identifier, index: c.ClassificationIndex}
}

// memoryDownload is the component being received.
type memoryDownload struct {
	comp     fwupdate.FirmwareComponent
	image    []byte
	verified int
	applied  int
}

// MemoryOption configures a MemoryOps.
type MemoryOption func(*MemoryOps)

// WithMemoryTransferSize caps the transfer size the device accepts.
func WithMemoryTransferSize(n uint32) MemoryOption {
	return func(m *MemoryOps) {
		if n >= fwupdate.BaselineTransferSize {
			m.maxTransfer = n
		}
	}
}

// WithActivationTime sets the estimated activation time reported by Activate.
func WithActivationTime(seconds uint16) MemoryOption {
	return func(m *MemoryOps) {
		m.activationTime = seconds
	}
}

// WithProgressSteps makes Verify and Apply take n calls each to finish.
func WithProgressSteps(n int) MemoryOption {
	return func(m *MemoryOps) {
		if n > 0 {
			m.steps = n
		}
	}
}

// WithVerifier sets the check run on a complete image during Verify.
//
// Example:
//
//	ops := device.NewMemoryOps(descs, params, device.WithVerifier(
//	    func(c fwupdate.FirmwareComponent, img []byte) fwupdate.VerifyResult {
//	        if !signatureOK(img) {
//	            return fwupdate.VerifyFailedFdSecurityChecks
//	        }
//	        return fwupdate.VerifySuccess
//	    }))
func WithVerifier(fn func(comp fwupdate.FirmwareComponent, image []byte) fwupdate.VerifyResult) MemoryOption {
	return func(m *MemoryOps) {
		m.verifier = fn
	}
}

// NewMemoryOps returns a MemoryOps reporting descriptors and params.
func NewMemoryOps(descriptors []fwupdate.Descriptor, params fwupdate.FirmwareParameters, opts ...MemoryOption) *MemoryOps {
	m := &MemoryOps{
		descriptors: append([]fwupdate.Descriptor(nil), descriptors...),
		params:      copyParams(&params),
		maxTransfer: fwupdate.MaxTransferSize,
		steps:       1,
		pending:     make(map[componentKey][]byte),
		active:      make(map[componentKey][]byte),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func copyParams(p *fwupdate.FirmwareParameters) fwupdate.FirmwareParameters {
	c := *p
	c.Components = append([]fwupdate.ComponentParameterEntry(nil), p.Components...)
	return c
}

func (m *MemoryOps) DeviceIdentifiers(ctx context.Context) ([]fwupdate.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.descriptors) == 0 {
		return nil, errors.New("no device identifiers configured")
	}
	return append([]fwupdate.Descriptor(nil), m.descriptors...), nil
}

func (m *MemoryOps) FirmwareParameters(ctx context.Context) (*fwupdate.FirmwareParameters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := copyParams(&m.params)
	return &p, nil
}

func (m *MemoryOps) TransferSize(ctx context.Context, uaSize uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return minUint32(m.maxTransfer, uaSize), nil
}

func (m *MemoryOps) HandleComponent(ctx context.Context, comp *fwupdate.FirmwareComponent,
	params *fwupdate.FirmwareParameters, op ComponentOperation) (fwupdate.ComponentResponseCode, error) {
	if params == nil {
		return 0, errors.New("no firmware parameters")
	}

	code := comp.Evaluate(params)
	if code != fwupdate.CompNotSupported && comp.OptionFlags&fwupdate.OptionRequestForceUpdate != 0 {
		code = fwupdate.CompCanBeUpdated
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("%s %s: %s", op, comp, code)
	if op == UpdateComponent && code == fwupdate.CompCanBeUpdated {
		m.current = &memoryDownload{
			comp:  *comp,
			image: make([]byte, 0, comp.ImageSize),
		}
	}
	return code, nil
}

func (m *MemoryOps) download(comp *fwupdate.FirmwareComponent) (*memoryDownload, error) {
	if m.current == nil || keyOf(&m.current.comp) != keyOf(comp) {
		return nil, fmt.Errorf("%s is not being updated", comp)
	}
	return m.current, nil
}

func (m *MemoryOps) QueryDownloadOffsetAndLength(ctx context.Context, comp *fwupdate.FirmwareComponent) (uint32, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.download(comp)
	if err != nil {
		return 0, 0, err
	}
	off := uint32(len(d.image))
	return off, d.comp.ImageSize - off, nil
}

func (m *MemoryOps) DownloadFirmwareData(ctx context.Context, offset uint32, data []byte,
	comp *fwupdate.FirmwareComponent) (fwupdate.TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.download(comp)
	if err != nil {
		return 0, err
	}
	if offset != uint32(len(d.image)) {
		return fwupdate.TransferErrorImageCorrupt, nil
	}

	// Drop the padding past the image end.
	if room := int(d.comp.ImageSize) - len(d.image); len(data) > room {
		data = data[:room]
	}
	d.image = append(d.image, data...)
	return fwupdate.TransferSuccess, nil
}

func (m *MemoryOps) IsDownloadComplete(ctx context.Context, comp *fwupdate.FirmwareComponent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.download(comp)
	if err != nil {
		return false, err
	}
	return uint32(len(d.image)) >= d.comp.ImageSize, nil
}

func (m *MemoryOps) QueryDownloadProgress(ctx context.Context, comp *fwupdate.FirmwareComponent) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.download(comp)
	if err != nil {
		return 0, err
	}
	if d.comp.ImageSize == 0 {
		return 100, nil
	}
	return uint8(uint64(len(d.image)) * 100 / uint64(d.comp.ImageSize)), nil
}

func (m *MemoryOps) Verify(ctx context.Context, comp *fwupdate.FirmwareComponent) (uint8, fwupdate.VerifyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.download(comp)
	if err != nil {
		return 0, 0, err
	}

	d.verified++
	if d.verified < m.steps {
		return uint8(d.verified * 100 / m.steps), fwupdate.VerifySuccess, nil
	}
	if uint32(len(d.image)) != d.comp.ImageSize {
		return 100, fwupdate.VerifyErrorImageIncomplete, nil
	}
	res := fwupdate.VerifySuccess
	if m.verifier != nil {
		res = m.verifier(d.comp, d.image)
	}
	m.record("verify %s: %d", comp, res)
	return 100, res, nil
}

func (m *MemoryOps) Apply(ctx context.Context, comp *fwupdate.FirmwareComponent) (uint8, fwupdate.ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.download(comp)
	if err != nil {
		return 0, 0, err
	}

	d.applied++
	if d.applied < m.steps {
		return uint8(d.applied * 100 / m.steps), fwupdate.ApplySuccess, nil
	}

	m.pending[keyOf(comp)] = d.image
	if e := m.params.Find(comp); e != nil {
		e.PendingComparisonStamp = d.comp.ComparisonStamp
		e.PendingVersion = d.comp.Version
	}
	m.current = nil
	m.record("apply %s", comp)
	return 100, fwupdate.ApplySuccess, nil
}

func (m *MemoryOps) Activate(ctx context.Context, selfContained uint8) (uint16, protocol.CompletionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return 0, fwupdate.ActivationNotRequired, nil
	}

	for k, img := range m.pending {
		m.active[k] = img
		for i := range m.params.Components {
			e := &m.params.Components[i]
			if e.Classification == k.class && e.Identifier == k.id && e.ClassificationIndex == k.index {
				e.ActiveComparisonStamp = e.PendingComparisonStamp
				e.ActiveVersion = e.PendingVersion
				e.PendingComparisonStamp = 0
				e.PendingVersion = fwupdate.FirmwareString{}
			}
		}
	}
	m.pending = make(map[componentKey][]byte)
	m.record("activate selfContained=%d", selfContained)
	return m.activationTime, protocol.Success, nil
}

func (m *MemoryOps) CancelUpdateComponent(ctx context.Context, comp *fwupdate.FirmwareComponent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.cancels++
	m.record("cancel %s", comp)
	return nil
}

// Image returns the active image of a component, if one was activated.
func (m *MemoryOps) Image(class fwupdate.Classification, id uint16, index uint8) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.active[componentKey{class: class, id: id, index: index}]
	return img, ok
}

// Cancels returns how many times a component update was cancelled.
func (m *MemoryOps) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// Activity returns a log of the operations performed, oldest first.
func (m *MemoryOps) Activity() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.activity...)
}

func (m *MemoryOps) record(format string, args ...interface{}) {
	m.activity = append(m.activity, fmt.Sprintf(format, args...))
}

var _ Ops = (*MemoryOps)(nil)
