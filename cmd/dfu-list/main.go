// Command dfu-list enumerates USB devices and highlights anything running
// the DFU interface class (0xfe/0x01), independent of whether the device
// is sitting in its application or in a DFU runtime/bootloader alt setting.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/o-murphy/go-dfu/dfu"
	"github.com/o-murphy/go-dfu/internal/transport"
)

var (
	verbose    = pflag.BoolP("verbose", "v", false, "verbose output")
	matchSpec  = pflag.StringP("device", "d", "", "match VID:PID (e.g. 0483:df11), either side may be omitted")
	pathFilter = pflag.StringP("path", "p", "", "match bus-port path (e.g. 1-1.4)")
)

func main() {
	pflag.Parse()

	ctx, err := transport.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dfu-list: %v\n", err)
		os.Exit(1)
	}

	devices, err := ctx.DeviceList(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "dfu-list: %v\n", err)
		os.Exit(1)
	}

	devices = filter(devices)
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Bus != devices[j].Bus {
			return devices[i].Bus < devices[j].Bus
		}
		return devices[i].Address < devices[j].Address
	})

	for _, dev := range devices {
		printDevice(dev)
	}
}

func filter(devices []*transport.Device) []*transport.Device {
	var out []*transport.Device
	for _, dev := range devices {
		if *pathFilter != "" && dev.PortPath != *pathFilter {
			continue
		}
		if *matchSpec != "" && !matchesVIDPID(dev, *matchSpec) {
			continue
		}
		out = append(out, dev)
	}
	return out
}

func matchesVIDPID(dev *transport.Device, spec string) bool {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return false
	}
	if parts[0] != "" {
		vid, err := strconv.ParseUint(parts[0], 16, 16)
		if err != nil || uint16(vid) != dev.Descriptor.VendorID {
			return false
		}
	}
	if parts[1] != "" {
		pid, err := strconv.ParseUint(parts[1], 16, 16)
		if err != nil || uint16(pid) != dev.Descriptor.ProductID {
			return false
		}
	}
	return true
}

func printDevice(dev *transport.Device) {
	desc := dev.Descriptor
	vendor := transport.VendorName(desc.VendorID)

	ifaces := dfu.FindInterfaces(dev)
	tag := ""
	if len(ifaces) > 0 {
		tag = fmt.Sprintf(" [dfu x%d]", len(ifaces))
	}

	fmt.Printf("Bus %03d Device %03d: ID %04x:%04x %s%s\n",
		dev.Bus, dev.Address, desc.VendorID, desc.ProductID, vendor, tag)

	if !*verbose {
		return
	}

	for _, di := range ifaces {
		fmt.Printf("  alt %d: %q, attrs=0x%02x, detach=%dms, transfer=%d, dfuVersion=0x%04x\n",
			di.AltSetting, di.AltName, di.Functional.Attributes, di.Functional.DetachTimeout,
			di.Functional.TransferSize, di.Functional.DFUVersion)
	}
}
