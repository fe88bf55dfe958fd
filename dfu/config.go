package dfu

import "time"

// MatchSpec is a vendor/product pair used to filter devices, with a
// distinct pair optionally applying once the device has entered DFU mode.
type MatchSpec struct {
	Vendor, Product       int32 // -1 means unset/wildcard
	VendorDFU, ProductDFU int32
}

// unset is the sentinel for "no filter supplied" on an int32 MatchSpec
// field; matches treats a field holding it as a wildcard.
const unset = -1

func NewMatchSpec() MatchSpec {
	return MatchSpec{Vendor: unset, Product: unset, VendorDFU: unset, ProductDFU: unset}
}

// Config is the explicit, passed-by-reference replacement for the
// module-level globals (match_vendor, match_product, ...) that the source
// implementation kept as process state. Every field here is a filter or
// tunable the CLI fills in once from flags; library code never mutates a
// package-level variable.
type Config struct {
	Match MatchSpec

	PathFilter   string
	ConfigIndex  int32 // -1 = unset
	InterfaceIdx int32
	AltSetting   int32
	AltName      string
	Serial       string
	SerialDFU    string
	DevNum       int32

	TransferSize  uint16
	ExpectedSize  int64
	DetachDelay   time.Duration
	Timeout       time.Duration
	ResetAfter    bool
	WaitForDevice bool
	YesToAll      bool

	DfuSe DfuSeOptions
}

// DfuSeOptions mirrors the colon-delimited tokens after -s <addr>.
type DfuSeOptions struct {
	Address    uint32
	HasAddress bool
	Length     uint32
	Force      bool
	Leave      bool
	Unprotect  bool
	MassErase  bool
	WillReset  bool
}

// DefaultConfig returns a Config with every filter unset and the defaults
// named in the external-interface section (5000ms op timeout, 5s detach
// delay).
func DefaultConfig() Config {
	return Config{
		Match:        NewMatchSpec(),
		ConfigIndex:  unset,
		InterfaceIdx: unset,
		AltSetting:   unset,
		DevNum:       unset,
		DetachDelay:  5 * time.Second,
		Timeout:      5 * time.Second,
	}
}
