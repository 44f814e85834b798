package fwupdate

import (
	"bytes"
	"fmt"

	"github.com/moffa90/go-pldm/protocol"
)

// FirmwareComponent identifies one updatable unit and the candidate image
// offered for it. ImageSize and OptionFlags are zero until UpdateComponent.
type FirmwareComponent struct {
	Classification      Classification
	Identifier          uint16
	ClassificationIndex uint8
	ComparisonStamp     uint32
	Version             FirmwareString
	ImageSize           uint32
	OptionFlags         UpdateOptionFlags
}

func (c FirmwareComponent) String() string {
	return fmt.Sprintf("component 0x%04X/0x%04X[%d] %q",
		uint16(c.Classification), c.Identifier, c.ClassificationIndex, c.Version.String())
}

// Evaluate decides whether c may replace the matching active component in
// params. The comparison stamp is checked first, then the version string.
func (c *FirmwareComponent) Evaluate(params *FirmwareParameters) ComponentResponseCode {
	entry := params.Find(c)
	if entry == nil {
		return CompNotSupported
	}
	switch {
	case c.ComparisonStamp == entry.ActiveComparisonStamp:
		return CompComparisonStampIdentical
	case c.ComparisonStamp < entry.ActiveComparisonStamp:
		return CompComparisonStampLower
	}
	switch cmp := bytes.Compare(c.Version.Data, entry.ActiveVersion.Data); {
	case cmp == 0 && c.Version.Type == entry.ActiveVersion.Type:
		return CompVerStrIdentical
	case cmp < 0:
		return CompVerStrLower
	}
	return CompCanBeUpdated
}

// TransferFlagFor returns the transfer flag carried by entry i of an n entry
// component table.
func TransferFlagFor(i, n int) protocol.TransferFlag {
	switch {
	case n == 1:
		return protocol.TransferStartAndEnd
	case i == 0:
		return protocol.TransferStart
	case i == n-1:
		return protocol.TransferEnd
	default:
		return protocol.TransferMiddle
	}
}
