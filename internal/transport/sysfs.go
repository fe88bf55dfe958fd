package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const sysfsUSBDevicesDir = "/sys/bus/usb/devices"

// sysfsEntry is one raw record read out of /sys/bus/usb/devices. Interface
// entries (names containing ':') are skipped; only whole-device entries are
// kept.
type sysfsEntry struct {
	name    string
	busNum  int
	devNum  int
	portPath string
}

func readSysfsEntries(root string) ([]sysfsEntry, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("transport: reading %s: %w", root, err)
	}

	var entries []sysfsEntry
	for _, d := range dirents {
		name := d.Name()
		if strings.Contains(name, ":") {
			continue
		}
		if name == "usb" || strings.HasPrefix(name, "usb") {
			// "usbN" entries are root hubs themselves; skip them, devices
			// hanging off them are enumerated separately.
			continue
		}

		busNum, err := readSysfsInt(filepath.Join(root, name, "busnum"))
		if err != nil {
			continue
		}
		devNum, err := readSysfsInt(filepath.Join(root, name, "devnum"))
		if err != nil {
			continue
		}

		entries = append(entries, sysfsEntry{
			name:     name,
			busNum:   busNum,
			devNum:   devNum,
			portPath: name,
		})
	}
	return entries, nil
}

func readSysfsInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	// busnum/devnum are plain decimal; some attributes are hex with 0x prefix.
	if strings.HasPrefix(s, "0x") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

// readSysfsDescriptors loads the raw device+configuration descriptor bytes
// cached by the kernel at .../<entry>/descriptors. This lets enumeration
// discover DFU interfaces and their functional descriptors without opening
// or claiming every device node on the bus.
func readSysfsDescriptors(root, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(root, name, "descriptors"))
}

func devicePath(busNum, devNum int) string {
	return fmt.Sprintf("/dev/bus/usb/%03d/%03d", busNum, devNum)
}
