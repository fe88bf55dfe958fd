// Command dfu-suffix adds, checks, or deletes the DFU suffix and optional
// vendor prefix of a firmware file in place.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/o-murphy/go-dfu/dfu"
	"github.com/o-murphy/go-dfu/dfufile"
)

var (
	add       = pflag.BoolP("add", "a", false, "add a DFU suffix to the file")
	del       = pflag.BoolP("delete", "D", false, "delete the DFU suffix from the file")
	check     = pflag.BoolP("check", "c", false, "check the DFU suffix of the file")
	vid       = pflag.StringP("vid", "v", "ffff", "vendor ID to store (hex, 'ffff' = wildcard)")
	pid       = pflag.StringP("pid", "p", "ffff", "product ID to store (hex, 'ffff' = wildcard)")
	did       = pflag.StringP("did", "d", "ffff", "device ID to store (hex, 'ffff' = wildcard)")
	stellaris = pflag.BoolP("stellaris", "T", false, "act on the TI Stellaris address prefix")
	stAddress = pflag.StringP("stellaris-address", "s", "", "Stellaris load address (hex), used with -a")
)

func main() {
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dfu-suffix [-a|-c|-D] [-v vid] [-p pid] [-d did] [-T] [-s addr] <file>")
		os.Exit(2)
	}
	path := pflag.Arg(0)

	if err := run(path); err != nil {
		fmt.Fprintf(os.Stderr, "dfu-suffix: %v\n", err)
		os.Exit(dfu.KindOf(err).ExitCode())
	}
}

func run(path string) error {
	switch {
	case *add:
		return runAdd(path)
	case *del:
		return runDelete(path)
	case *check:
		return runCheck(path)
	default:
		return dfu.UsageError("one of -a, -D, or -c is required")
	}
}

func runAdd(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return dfufile.NoInputError(err, "reading %s", path)
	}

	f, err := dfufile.Load(data, dfufile.SuffixNone, dfufile.PrefixNone)
	if err != nil {
		return err
	}

	opts := dfufile.DumpOptions{WriteSuffix: true}
	opts.IDVendor, err = parseHex16(*vid)
	if err != nil {
		return dfu.UsageError("invalid -v %q: %v", *vid, err)
	}
	opts.IDProduct, err = parseHex16(*pid)
	if err != nil {
		return dfu.UsageError("invalid -p %q: %v", *pid, err)
	}
	opts.BcdDevice, err = parseHex16(*did)
	if err != nil {
		return dfu.UsageError("invalid -d %q: %v", *did, err)
	}

	if *stAddress != "" {
		addr, err := strconv.ParseUint(*stAddress, 16, 32)
		if err != nil {
			return dfu.UsageError("invalid -s %q: %v", *stAddress, err)
		}
		opts.Prefix = dfufile.PrefixStellaris
		opts.LoadAddress = uint32(addr)
	}

	out := dfufile.Dump(f.Payload, opts)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return dfufile.IOError(err, "writing %s", path)
	}
	fmt.Printf("New DFU suffix added to %q\n", path)
	return nil
}

func runDelete(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return dfufile.NoInputError(err, "reading %s", path)
	}

	suffixReq := dfufile.SuffixNeeds
	prefixReq := dfufile.PrefixNone
	if *stellaris {
		prefixReq = dfufile.PrefixNeeds
		suffixReq = dfufile.SuffixNone
	}

	f, err := dfufile.Load(data, suffixReq, prefixReq)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, f.Payload, 0o644); err != nil {
		return dfufile.IOError(err, "writing %s", path)
	}
	fmt.Printf("DFU suffix removed from %q\n", path)
	return nil
}

func runCheck(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return dfufile.NoInputError(err, "reading %s", path)
	}

	f, err := dfufile.Load(data, dfufile.SuffixNeeds, dfufile.PrefixMaybe)
	if err != nil {
		return err
	}

	fmt.Printf("%-20s %d bytes\n", "payload size:", len(f.Payload))
	fmt.Printf("%-20s 0x%04x\n", "vendor ID:", f.Suffix.IDVendor)
	fmt.Printf("%-20s 0x%04x\n", "product ID:", f.Suffix.IDProduct)
	fmt.Printf("%-20s 0x%04x\n", "device ID:", f.Suffix.BcdDevice)
	fmt.Printf("%-20s 0x%04x\n", "DFU spec:", f.Suffix.BcdDFU)
	fmt.Printf("%-20s 0x%08x\n", "CRC:", f.Suffix.CRC)
	if f.HasPrefix {
		fmt.Printf("%-20s %v (load address 0x%08x)\n", "vendor prefix:", f.PrefixType, f.LoadAddress)
	}
	return nil
}

func parseHex16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
