package transport

import (
	"testing"
)

// A minimal configuration descriptor: 1 interface, 1 alt setting, no
// endpoints, followed by a 9-byte DFU functional descriptor (type 0x21)
// that must survive parsing as Extra on the alt setting.
func sampleConfigBytes() []byte {
	iface := []byte{0x09, 0x04, 0x00, 0x00, 0x00, 0xfe, 0x01, 0x00, 0x00}
	dfuFunctional := []byte{0x09, 0x21, 0x0f, 0x00, 0x00, 0x08, 0x00, 0x1a, 0x01}

	body := append(append([]byte{}, iface...), dfuFunctional...)
	total := 9 + len(body)

	cfg := []byte{0x09, 0x02, byte(total), byte(total >> 8), 0x01, 0x01, 0x00, 0x80, 0xfa}
	return append(cfg, body...)
}

func TestConfigDescriptorUnmarshal(t *testing.T) {
	var cfg ConfigDescriptor
	if err := cfg.Unmarshal(sampleConfigBytes()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if cfg.NumInterfaces != 1 {
		t.Fatalf("NumInterfaces = %d, want 1", cfg.NumInterfaces)
	}
	if cfg.ConfigurationValue != 1 {
		t.Fatalf("ConfigurationValue = %d, want 1", cfg.ConfigurationValue)
	}
	if len(cfg.Interfaces) != 1 || len(cfg.Interfaces[0].AltSettings) != 1 {
		t.Fatalf("unexpected interface/alt-setting shape: %+v", cfg.Interfaces)
	}

	as := cfg.Interfaces[0].AltSettings[0]
	if as.InterfaceClass != 0xfe || as.InterfaceSubClass != 0x01 {
		t.Fatalf("unexpected class/subclass: %02x/%02x", as.InterfaceClass, as.InterfaceSubClass)
	}
	if len(as.Extra) != 9 || as.Extra[1] != 0x21 {
		t.Fatalf("expected 9-byte DFU functional descriptor in Extra, got %x", as.Extra)
	}

	alt, ok := cfg.FindAltSetting(0, 0)
	if !ok || len(alt.Extra) != 9 {
		t.Fatalf("FindAltSetting(0,0) = %+v, %v", alt, ok)
	}
	if _, ok := cfg.FindAltSetting(9, 9); ok {
		t.Fatalf("FindAltSetting(9,9) unexpectedly found a match")
	}
}

func TestDevicePathFormatting(t *testing.T) {
	if got, want := devicePath(1, 7), "/dev/bus/usb/001/007"; got != want {
		t.Fatalf("devicePath(1,7) = %q, want %q", got, want)
	}
	if got, want := devicePath(255, 255), "/dev/bus/usb/255/255"; got != want {
		t.Fatalf("devicePath(255,255) = %q, want %q", got, want)
	}
}

func TestUTF16LEToString(t *testing.T) {
	// "ST " in UTF-16LE.
	b := []byte{'S', 0, 'T', 0, ' ', 0}
	if got, want := utf16LEToString(b), "ST "; got != want {
		t.Fatalf("utf16LEToString = %q, want %q", got, want)
	}
}
