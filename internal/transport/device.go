package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Device is one USB device node discovered on the host, together with the
// descriptors read out of sysfs at enumeration time. It does not hold an
// open file descriptor; call Open to get a DeviceHandle.
type Device struct {
	Path       string
	Bus        int
	Address    int
	PortPath   string
	Descriptor DeviceDescriptor
	Configs    []ConfigDescriptor

	ctx *Context
}

func (d *Device) String() string {
	return fmt.Sprintf("%03d:%03d (%04x:%04x)", d.Bus, d.Address, d.Descriptor.VendorID, d.Descriptor.ProductID)
}

// Context owns discovery of devices on the host.
type Context struct {
	sysfsRoot string
}

// NewContext opens the default (sysfs-backed) USB discovery context.
func NewContext() (*Context, error) {
	return &Context{sysfsRoot: sysfsUSBDevicesDir}, nil
}

// DeviceList enumerates every device currently attached, in parallel,
// bounded to a handful of concurrent sysfs reads so a bus with hundreds of
// devices doesn't spawn hundreds of goroutines at once.
func (c *Context) DeviceList(ctx context.Context) ([]*Device, error) {
	entries, err := readSysfsEntries(c.sysfsRoot)
	if err != nil {
		return nil, err
	}

	devices := make([]*Device, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			dev, err := c.loadDevice(e)
			if err != nil {
				// A device that vanished mid-scan, or that we lack
				// permission to read descriptors for, is not fatal to the
				// overall listing.
				return nil
			}
			devices[i] = dev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := devices[:0]
	for _, d := range devices {
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *Context) loadDevice(e sysfsEntry) (*Device, error) {
	raw, err := readSysfsDescriptors(c.sysfsRoot, e.name)
	if err != nil {
		return nil, err
	}
	if len(raw) < 18 {
		return nil, fmt.Errorf("transport: %s: short descriptor blob (%d bytes)", e.name, len(raw))
	}

	dev := &Device{
		Path:     devicePath(e.busNum, e.devNum),
		Bus:      e.busNum,
		Address:  e.devNum,
		PortPath: e.portPath,
		ctx:      c,
	}
	dev.Descriptor = parseDeviceDescriptor(raw[:18])

	pos := 18
	for pos+2 <= len(raw) {
		length := int(raw[pos])
		if length < 2 || pos+length > len(raw) {
			break
		}
		if raw[pos+1] == DescriptorTypeConfig {
			end := pos + int(binary.LittleEndian.Uint16(raw[pos+2:pos+4]))
			if end > len(raw) {
				end = len(raw)
			}
			var cfg ConfigDescriptor
			if err := cfg.Unmarshal(raw[pos:end]); err == nil {
				dev.Configs = append(dev.Configs, cfg)
			}
			pos = end
			continue
		}
		pos += length
	}

	return dev, nil
}

func parseDeviceDescriptor(b []byte) DeviceDescriptor {
	return DeviceDescriptor{
		Length:            b[0],
		DescriptorType:    b[1],
		USBVersion:        binary.LittleEndian.Uint16(b[2:4]),
		DeviceClass:       b[4],
		DeviceSubClass:    b[5],
		DeviceProtocol:    b[6],
		MaxPacketSize0:    b[7],
		VendorID:          binary.LittleEndian.Uint16(b[8:10]),
		ProductID:         binary.LittleEndian.Uint16(b[10:12]),
		DeviceVersion:     binary.LittleEndian.Uint16(b[12:14]),
		ManufacturerIndex: b[14],
		ProductIndex:      b[15],
		SerialNumberIndex: b[16],
		NumConfigurations: b[17],
	}
}

// DeviceHandle is an open usbfs file descriptor for a Device. A handle
// serializes every control transfer through a weight-1 semaphore: DFU
// forbids more than one request in flight against an interface at a time,
// and this is the one place in the stack that can enforce it regardless of
// how many goroutines the caller uses.
type DeviceHandle struct {
	device *Device
	fd     int

	sem *semaphore.Weighted

	mu       sync.Mutex
	claimed  map[uint8]bool
	closed   bool
}

// Open acquires a usbfs file descriptor for the device.
func (d *Device) Open() (*DeviceHandle, error) {
	fd, err := syscall.Open(d.Path, syscall.O_RDWR, 0)
	if err != nil {
		switch err {
		case syscall.ENOENT:
			return nil, ErrDeviceNotFound
		case syscall.EACCES:
			return nil, ErrPermissionDenied
		case syscall.EBUSY:
			return nil, ErrDeviceBusy
		}
		return nil, fmt.Errorf("transport: open %s: %w", d.Path, err)
	}
	return &DeviceHandle{
		device:  d,
		fd:      fd,
		sem:     semaphore.NewWeighted(1),
		claimed: map[uint8]bool{},
	}, nil
}

func (h *DeviceHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for iface := range h.claimed {
		_ = h.releaseInterfaceLocked(iface)
	}
	h.closed = true
	return syscall.Close(h.fd)
}

func (h *DeviceHandle) Device() *Device { return h.device }

// Linux ioctl number construction, mirroring <asm-generic/ioctl.h>.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr uintptr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

func iow(typ, nr, size uintptr) uintptr  { return ioc(iocWrite, typ, nr, size) }
func ior(typ, nr, size uintptr) uintptr  { return ioc(iocRead, typ, nr, size) }
func iowr(typ, nr, size uintptr) uintptr { return ioc(iocWrite|iocRead, typ, nr, size) }
func io(typ, nr uintptr) uintptr         { return ioc(iocNone, typ, nr, 0) }

const usbDevFSMagic = 'U'

// usbfsCtrlTransfer mirrors struct usbdevfs_ctrltransfer from
// <linux/usbdevice_fs.h>.
type usbfsCtrlTransfer struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
	Timeout     uint32
	Data        uintptr
}

type usbfsSetInterface struct {
	Interface uint32
	AltSetting uint32
}

var (
	usbdevfsControl          = iowr(usbDevFSMagic, 0, unsafe.Sizeof(usbfsCtrlTransfer{}))
	usbdevfsSetInterface     = ior(usbDevFSMagic, 4, unsafe.Sizeof(usbfsSetInterface{}))
	usbdevfsSetConfiguration = ior(usbDevFSMagic, 5, unsafe.Sizeof(uint32(0)))
	usbdevfsClaimInterface   = ior(usbDevFSMagic, 15, unsafe.Sizeof(uint32(0)))
	usbdevfsReleaseInterface = ior(usbDevFSMagic, 16, unsafe.Sizeof(uint32(0)))
	usbdevfsReset            = io(usbDevFSMagic, 20)
	usbdevfsClearHalt        = ior(usbDevFSMagic, 21, unsafe.Sizeof(uint32(0)))
	usbdevfsDisconnect       = io(usbDevFSMagic, 22)
	usbdevfsConnect          = io(usbDevFSMagic, 23)
)

func (h *DeviceHandle) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(h.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// ControlTransfer issues a single control request and blocks until it
// completes, the kernel driver times it out, or the endpoint stalls.
func (h *DeviceHandle) ControlTransfer(ctx context.Context, requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	defer h.sem.Release(1)

	xfer := usbfsCtrlTransfer{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      uint16(len(data)),
		Timeout:     uint32(timeout / time.Millisecond),
	}
	if len(data) > 0 {
		xfer.Data = uintptr(unsafe.Pointer(&data[0]))
	}

	n, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(h.fd), usbdevfsControl, uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return 0, translateErrno(errno)
	}
	return int(n), nil
}

func translateErrno(errno syscall.Errno) error {
	switch errno {
	case syscall.ETIMEDOUT:
		return ErrTimeout
	case syscall.EPIPE:
		return ErrPipe
	case syscall.ENODEV, syscall.ENOENT:
		return ErrDeviceNotFound
	case syscall.EACCES:
		return ErrPermissionDenied
	case syscall.EBUSY:
		return ErrDeviceBusy
	case syscall.EINVAL:
		return ErrInvalidParameter
	default:
		return errno
	}
}

func (h *DeviceHandle) ClaimInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := uint32(iface)
	if err := h.ioctl(usbdevfsClaimInterface, unsafe.Pointer(&n)); err != nil {
		return translateErrno(err.(syscall.Errno))
	}
	h.claimed[iface] = true
	return nil
}

func (h *DeviceHandle) ReleaseInterface(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.releaseInterfaceLocked(iface)
}

func (h *DeviceHandle) releaseInterfaceLocked(iface uint8) error {
	n := uint32(iface)
	err := h.ioctl(usbdevfsReleaseInterface, unsafe.Pointer(&n))
	delete(h.claimed, iface)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			return translateErrno(errno)
		}
		return err
	}
	return nil
}

func (h *DeviceHandle) SetAltSetting(iface, alt uint8) error {
	s := usbfsSetInterface{Interface: uint32(iface), AltSetting: uint32(alt)}
	if err := h.ioctl(usbdevfsSetInterface, unsafe.Pointer(&s)); err != nil {
		return translateErrno(err.(syscall.Errno))
	}
	return nil
}

func (h *DeviceHandle) SetConfiguration(cfg int) error {
	n := uint32(cfg)
	if err := h.ioctl(usbdevfsSetConfiguration, unsafe.Pointer(&n)); err != nil {
		return translateErrno(err.(syscall.Errno))
	}
	return nil
}

func (h *DeviceHandle) ClearHalt(endpoint uint8) error {
	n := uint32(endpoint)
	if err := h.ioctl(usbdevfsClearHalt, unsafe.Pointer(&n)); err != nil {
		return translateErrno(err.(syscall.Errno))
	}
	return nil
}

// ResetDevice issues a USB port reset. Used after DETACH on a device that
// does not set bitWillDetach, and for the CLI's explicit reset request.
func (h *DeviceHandle) ResetDevice() error {
	if err := h.ioctl(usbdevfsReset, nil); err != nil {
		return translateErrno(err.(syscall.Errno))
	}
	return nil
}

// DetachKernelDriver disconnects any kernel driver bound to the interface so
// usbfs can claim it. ENODATA means no driver was bound; that's success.
func (h *DeviceHandle) DetachKernelDriver(iface uint8) error {
	n := uint32(iface)
	err := h.ioctl(usbdevfsDisconnect, unsafe.Pointer(&n))
	if err == nil {
		return nil
	}
	if errno, ok := err.(syscall.Errno); ok && (errno == syscall.ENODATA || errno == syscall.ENOTTY) {
		return nil
	}
	return translateErrno(err.(syscall.Errno))
}

// GetStringDescriptor fetches and decodes a UTF-16LE string descriptor by
// index, using the US English (0x0409) language ID.
func (h *DeviceHandle) GetStringDescriptor(ctx context.Context, index uint8) (string, error) {
	if index == 0 {
		return "", nil
	}
	buf := make([]byte, 255)
	n, err := h.ControlTransfer(ctx, EndpointIn|RequestTypeStandard|RequestRecipientDevice, ReqGetDescriptor,
		uint16(DescriptorTypeString)<<8|uint16(index), 0x0409, buf, 1*time.Second)
	if err != nil {
		return "", err
	}
	if n < 2 {
		return "", fmt.Errorf("transport: short string descriptor")
	}
	return utf16LEToString(buf[2:n]), nil
}

func utf16LEToString(b []byte) string {
	runes := make([]uint16, len(b)/2)
	for i := range runes {
		runes[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16Decode(runes))
}

func utf16Decode(s []uint16) []rune {
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); i++ {
		r := rune(s[i])
		if r >= 0xd800 && r < 0xdc00 && i+1 < len(s) {
			r2 := rune(s[i+1])
			if r2 >= 0xdc00 && r2 < 0xe000 {
				out = append(out, ((r-0xd800)<<10|(r2-0xdc00))+0x10000)
				i++
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
