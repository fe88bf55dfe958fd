package dfu

import (
	"context"
	"time"

	"github.com/o-murphy/go-dfu/internal/transport"
)

// FindInterfaces walks every configuration and interface of dev looking for
// the DFU class/subclass (0xFE/0x01), returning one DfuIf per matching
// alt-setting. It never opens the device; descriptor bytes are read from
// the cached Extra field populated at enumeration time (§4.2).
func FindInterfaces(dev *transport.Device) []*DfuIf {
	var out []*DfuIf

	for _, cfg := range dev.Configs {
		for _, iface := range cfg.Interfaces {
			for _, as := range iface.AltSettings {
				if as.InterfaceClass != InterfaceClassDFU || as.InterfaceSubClass != InterfaceSubClassDFU {
					continue
				}

				dif := &DfuIf{
					VendorID:      dev.Descriptor.VendorID,
					ProductID:     dev.Descriptor.ProductID,
					BcdDevice:     dev.Descriptor.DeviceVersion,
					Configuration: cfg.ConfigurationValue,
					Interface:     as.InterfaceNumber,
					AltSetting:    as.AlternateSetting,
					AltNameIndex:  as.InterfaceIndex,
					SerialIndex:   dev.Descriptor.SerialNumberIndex,
					Bus:           dev.Bus,
					Address:       dev.Address,
					Device:        dev,
				}
				if as.InterfaceProtocol == ProtocolDFU {
					dif.Flags |= SelectMode
				}
				if fd, err := ParseFunctionalDescriptor(as.Extra); err == nil {
					dif.Functional = fd
				}
				dif.Quirks = LookupQuirks(dif.VendorID, dif.ProductID, dif.BcdDevice)
				if dif.Quirks&QuirkForceDFU11 != 0 {
					dif.Functional.DFUVersion = 0x0110
				}

				out = append(out, dif)
			}
		}
	}

	return out
}

// Enumerate lists every DFU-capable interface visible on the host.
func Enumerate(ctx context.Context, tctx *transport.Context) ([]*DfuIf, error) {
	devices, err := tctx.DeviceList(ctx)
	if err != nil {
		return nil, IOError(err, "enumerating USB devices")
	}

	var out []*DfuIf
	for _, dev := range devices {
		out = append(out, FindInterfaces(dev)...)
	}
	return out, nil
}

// matches reports whether dif satisfies every filter the caller actually
// set in cfg (§4.2: "all specified filters must match").
func matches(dif *DfuIf, cfg *Config) bool {
	m := cfg.Match

	if dif.InDFUMode() {
		if m.VendorDFU != unset && int32(dif.VendorID) != m.VendorDFU {
			return false
		}
		if m.ProductDFU != unset && int32(dif.ProductID) != m.ProductDFU {
			return false
		}
		if cfg.SerialDFU != "" && dif.Serial != cfg.SerialDFU {
			return false
		}
	} else {
		if m.Vendor != unset && int32(dif.VendorID) != m.Vendor {
			return false
		}
		if m.Product != unset && int32(dif.ProductID) != m.Product {
			return false
		}
		if cfg.Serial != "" && dif.Serial != cfg.Serial {
			return false
		}
	}

	if cfg.PathFilter != "" {
		// Populated by the caller from transport.Device.PortPath before
		// filtering; see Select.
	}
	if cfg.ConfigIndex != unset && int32(dif.Configuration) != cfg.ConfigIndex {
		return false
	}
	if cfg.InterfaceIdx != unset && int32(dif.Interface) != cfg.InterfaceIdx {
		return false
	}
	if cfg.AltSetting != unset && int32(dif.AltSetting) != cfg.AltSetting {
		return false
	}
	if cfg.AltName != "" && dif.AltName != cfg.AltName {
		return false
	}
	if cfg.DevNum != unset && int32(dif.Address) != cfg.DevNum {
		return false
	}

	return true
}

// ResolveStrings opens dif's device briefly to read the iInterface and
// iSerialNumber string descriptors, filling AltName/Serial. Enumeration
// itself never opens a device (§4.2 walks sysfs-cached descriptors only),
// so callers that filter on alt-setting name or serial string must resolve
// these lazily, once, on the narrowed candidate set.
func ResolveStrings(ctx context.Context, dif *DfuIf, altNameIndex, serialIndex uint8) error {
	if altNameIndex == 0 && serialIndex == 0 {
		return nil
	}
	handle, err := dif.Device.Open()
	if err != nil {
		return IOError(err, "opening device to resolve string descriptors")
	}
	defer handle.Close()

	if altNameIndex != 0 {
		if s, err := handle.GetStringDescriptor(ctx, altNameIndex); err == nil {
			dif.AltName = s
		}
	}
	if serialIndex != 0 {
		if s, err := handle.GetStringDescriptor(ctx, serialIndex); err == nil {
			dif.Serial = s
		}
	}
	return nil
}

// Select applies every filter in cfg to the candidate list and enforces the
// single-match safety rule (§4.2): more than one surviving candidate is a
// CompatibilityError, because detaching would require a bus reset that
// renumbers devices and makes a second match ambiguous.
func Select(candidates []*DfuIf, cfg *Config) (*DfuIf, error) {
	var matched []*DfuIf
	for _, dif := range candidates {
		if cfg.PathFilter != "" && dif.Device.PortPath != cfg.PathFilter {
			continue
		}
		if matches(dif, cfg) {
			matched = append(matched, dif)
		}
	}

	switch len(matched) {
	case 0:
		return nil, CompatibilityError("no DFU-capable device matched the given filters")
	case 1:
		return matched[0], nil
	default:
		return nil, CompatibilityError("%d DFU-capable devices matched the given filters; narrow the selection", len(matched))
	}
}

// ForceDFUMode transitions dif from run-time to DFU mode per §4.2: claim,
// altsetting 0, GET_STATUS, DETACH, then release. The caller is responsible
// for the detach_delay wait and the post-detach re-probe with impossible
// vendor/product ids.
func ForceDFUMode(ctx context.Context, dif *DfuIf) error {
	if dif.InDFUMode() {
		return nil
	}

	handle, err := dif.Device.Open()
	if err != nil {
		return IOError(err, "opening device for detach")
	}
	dif.Handle = handle
	defer func() {
		dif.Handle = nil
		handle.Close()
	}()

	if err := handle.ClaimInterface(dif.Interface); err != nil {
		return IOError(err, "claiming interface %d", dif.Interface)
	}
	defer handle.ReleaseInterface(dif.Interface)

	if err := handle.SetAltSetting(dif.Interface, 0); err != nil {
		return IOError(err, "setting altsetting 0")
	}

	if _, err := GetStatus(ctx, dif); err != nil {
		return err
	}

	timeout := dif.Functional.DetachTimeout
	if timeout == 0 {
		timeout = 1000
	}
	if err := Detach(ctx, dif, timeout); err != nil {
		return err
	}

	if dif.Functional.Attributes&AttrWillDetach == 0 {
		if err := handle.ResetDevice(); err != nil {
			return IOError(err, "resetting device after detach")
		}
	}

	return nil
}

// DetachDelay blocks for the configured detach delay so the device has time
// to re-enumerate before the caller re-probes.
func DetachDelay(ctx context.Context, delay time.Duration) error {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
