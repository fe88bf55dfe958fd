package dfu

import (
	"context"

	"github.com/o-murphy/go-dfu/internal/transport"
)

// Session is the explicit, owned replacement for the source's global
// filter/interface-list state (Design Note 1). A CLI command builds one
// Config, opens one Session, and runs exactly one operation through it.
type Session struct {
	Config   Config
	Progress Reporter

	transport *transport.Context
	candidates []*DfuIf
	Selected   *DfuIf
}

// NewSession builds a session over the given transport context, defaulting
// Progress to a no-op reporter when none is supplied.
func NewSession(tctx *transport.Context, cfg Config) *Session {
	return &Session{Config: cfg, Progress: NoopReporter, transport: tctx}
}

// Discover enumerates every DFU interface on the bus and caches the result
// as this session's candidate list.
func (s *Session) Discover(ctx context.Context) ([]*DfuIf, error) {
	candidates, err := Enumerate(ctx, s.transport)
	if err != nil {
		return nil, err
	}
	s.candidates = candidates
	return candidates, nil
}

// SelectOne narrows the cached candidate list to exactly one interface,
// applying the safety rule in §4.2.
func (s *Session) SelectOne() (*DfuIf, error) {
	dif, err := Select(s.candidates, &s.Config)
	if err != nil {
		return nil, err
	}
	s.Selected = dif
	return dif, nil
}

// Open claims the selected interface's device and sets the alt-setting,
// ready for DFU requests. Close releases both.
func (s *Session) Open() error {
	if s.Selected == nil {
		return SoftwareError("Open called before a device was selected")
	}
	if s.Selected.Handle != nil {
		return nil // already open
	}
	handle, err := s.Selected.Device.Open()
	if err != nil {
		return IOError(err, "opening selected device")
	}
	if err := handle.ClaimInterface(s.Selected.Interface); err != nil {
		handle.Close()
		return IOError(err, "claiming interface %d", s.Selected.Interface)
	}
	if err := handle.SetAltSetting(s.Selected.Interface, s.Selected.AltSetting); err != nil {
		handle.ReleaseInterface(s.Selected.Interface)
		handle.Close()
		return IOError(err, "setting altsetting %d", s.Selected.AltSetting)
	}
	s.Selected.Handle = handle
	return nil
}

// Close releases the claimed interface and the device handle.
func (s *Session) Close() error {
	if s.Selected == nil || s.Selected.Handle == nil {
		return nil
	}
	h := s.Selected.Handle
	s.Selected.Handle = nil
	_ = h.ReleaseInterface(s.Selected.Interface)
	return h.Close()
}

// TransferSize resolves the effective wTransferSize: the device-advertised
// value unless the user overrode it, per §6's "-t N ... required when
// device doesn't advertise".
func (s *Session) TransferSize() (uint16, error) {
	if s.Config.TransferSize != 0 {
		return s.Config.TransferSize, nil
	}
	if s.Selected != nil && s.Selected.Functional.TransferSize != 0 {
		return s.Selected.Functional.TransferSize, nil
	}
	return 0, UsageError("device did not advertise a transfer size; supply one with -t")
}
