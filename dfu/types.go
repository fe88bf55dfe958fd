package dfu

import (
	"context"
	"fmt"
	"time"

	"github.com/o-murphy/go-dfu/internal/transport"
)

// DeviceHandle is the subset of *transport.DeviceHandle the dfu package
// drives. DfuIf holds one of these rather than the concrete transport type
// so tests can substitute a fake transport to exercise the state machine
// and transfer orchestrators without a real USB device.
type DeviceHandle interface {
	ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)
	ClaimInterface(iface uint8) error
	ReleaseInterface(iface uint8) error
	SetAltSetting(iface, alt uint8) error
	ResetDevice() error
	GetStringDescriptor(ctx context.Context, index uint8) (string, error)
	Close() error
}

var _ DeviceHandle = (*transport.DeviceHandle)(nil)

// State is the DFU device state returned in bState (USB DFU 1.1 table 6.2).
type State uint8

const (
	StateAppIdle              State = 0
	StateAppDetach            State = 1
	StateDfuIdle              State = 2
	StateDfuDnloadSync        State = 3
	StateDfuDnBusy            State = 4
	StateDfuDnloadIdle        State = 5
	StateDfuManifestSync      State = 6
	StateDfuManifest          State = 7
	StateDfuManifestWaitReset State = 8
	StateDfuUploadIdle        State = 9
	StateDfuError             State = 10
)

func (s State) String() string {
	switch s {
	case StateAppIdle:
		return "appIDLE"
	case StateAppDetach:
		return "appDETACH"
	case StateDfuIdle:
		return "dfuIDLE"
	case StateDfuDnloadSync:
		return "dfuDNLOAD-SYNC"
	case StateDfuDnBusy:
		return "dfuDNBUSY"
	case StateDfuDnloadIdle:
		return "dfuDNLOAD-IDLE"
	case StateDfuManifestSync:
		return "dfuMANIFEST-SYNC"
	case StateDfuManifest:
		return "dfuMANIFEST"
	case StateDfuManifestWaitReset:
		return "dfuMANIFEST-WAIT-RESET"
	case StateDfuUploadIdle:
		return "dfuUPLOAD-IDLE"
	case StateDfuError:
		return "dfuERROR"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Status is the DFU status code returned in bStatus.
type Status uint8

const (
	StatusOK              Status = 0x00
	StatusErrTarget       Status = 0x01
	StatusErrFile         Status = 0x02
	StatusErrWrite        Status = 0x03
	StatusErrErase        Status = 0x04
	StatusErrCheckErased  Status = 0x05
	StatusErrProg         Status = 0x06
	StatusErrVerify       Status = 0x07
	StatusErrAddress      Status = 0x08
	StatusErrNotDone      Status = 0x09
	StatusErrFirmware     Status = 0x0a
	StatusErrVendor       Status = 0x0b
	StatusErrUsbR         Status = 0x0c
	StatusErrPor          Status = 0x0d
	StatusErrUnknown      Status = 0x0e
	StatusErrStalledPkt   Status = 0x0f
)

func (s Status) String() string {
	names := map[Status]string{
		StatusOK: "OK", StatusErrTarget: "errTARGET", StatusErrFile: "errFILE",
		StatusErrWrite: "errWRITE", StatusErrErase: "errERASE", StatusErrCheckErased: "errCHECK_ERASED",
		StatusErrProg: "errPROG", StatusErrVerify: "errVERIFY", StatusErrAddress: "errADDRESS",
		StatusErrNotDone: "errNOTDONE", StatusErrFirmware: "errFIRMWARE", StatusErrVendor: "errVENDOR",
		StatusErrUsbR: "errUSBR", StatusErrPor: "errPOR", StatusErrUnknown: "errUNKNOWN",
		StatusErrStalledPkt: "errSTALLEDPKT",
	}
	if name, ok := names[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

// DeviceStatus is the 6-byte record returned by GET_STATUS.
type DeviceStatus struct {
	Status       Status
	PollTimeout  uint32 // 24-bit, milliseconds
	State        State
	StringIndex  uint8
}

// Attribute bits of the DFU functional descriptor's bmAttributes field.
const (
	AttrCanDownload      uint8 = 1 << 0
	AttrCanUpload        uint8 = 1 << 1
	AttrManifestTolerant uint8 = 1 << 2
	AttrWillDetach       uint8 = 1 << 3
)

// FunctionalDescriptor is the USB DFU class descriptor, type 0x21.
type FunctionalDescriptor struct {
	Length         uint8
	DescriptorType uint8
	Attributes     uint8
	DetachTimeout  uint16
	TransferSize   uint16
	DFUVersion     uint16
}

const DescriptorTypeDFU = 0x21

// ParseFunctionalDescriptor decodes a 9-byte DFU functional descriptor, the
// format every DfuIf caches from InterfaceAltSetting.Extra.
func ParseFunctionalDescriptor(b []byte) (FunctionalDescriptor, error) {
	if len(b) < 9 {
		return FunctionalDescriptor{}, DataError("DFU functional descriptor too short: %d bytes", len(b))
	}
	if b[1] != DescriptorTypeDFU {
		return FunctionalDescriptor{}, DataError("unexpected functional descriptor type 0x%02x", b[1])
	}
	return FunctionalDescriptor{
		Length:         b[0],
		DescriptorType: b[1],
		Attributes:     b[2],
		DetachTimeout:  uint16(b[3]) | uint16(b[4])<<8,
		TransferSize:   uint16(b[5]) | uint16(b[6])<<8,
		DFUVersion:     uint16(b[7]) | uint16(b[8])<<8,
	}, nil
}

const DfuSeVersion = 0x011a

// Selection flag bits recording which user filters an interface matched.
const (
	SelectVendor uint32 = 1 << iota
	SelectProduct
	SelectVendorDFU
	SelectProductDFU
	SelectConfig
	SelectInterface
	SelectAltSetting
	SelectSerial
	SelectSerialDFU
	SelectDevnum
	SelectPath
	SelectMode // interface is already in DFU mode
)

// DfuIf is one DFU-capable interface/altsetting discovered on the bus.
type DfuIf struct {
	VendorID     uint16
	ProductID    uint16
	BcdDevice    uint16
	Configuration uint8
	Interface    uint8
	AltSetting   uint8
	AltName      string
	AltNameIndex uint8
	Bus          int
	Address      int
	Serial       string
	SerialIndex  uint8

	Device *transport.Device
	Handle DeviceHandle

	Functional FunctionalDescriptor
	Quirks     Quirk

	Flags uint32
}

// InDFUMode reports whether this interface is the bootloader incarnation
// (bInterfaceProtocol == 2) rather than the run-time one (== 1).
func (d *DfuIf) InDFUMode() bool { return d.Flags&SelectMode != 0 }

const (
	InterfaceClassDFU    = 0xfe
	InterfaceSubClassDFU = 0x01
	ProtocolRuntime      = 1
	ProtocolDFU          = 2
)
