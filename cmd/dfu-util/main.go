// Command dfu-util drives USB DFU and DfuSe firmware transfers: list
// interfaces, detach a device into bootloader mode, and upload or download
// a firmware image.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/o-murphy/go-dfu/dfu"
	"github.com/o-murphy/go-dfu/dfufile"
	"github.com/o-murphy/go-dfu/dfuse"
	"github.com/o-murphy/go-dfu/internal/transport"
	"github.com/o-murphy/go-dfu/progress"
)

var (
	listOnly   = pflag.BoolP("list", "l", false, "list DFU interfaces and exit")
	detachOnly = pflag.BoolP("detach", "e", false, "detach matched device and exit")
	device     = pflag.StringP("device", "d", "", "match VID:PID[,VID:PID] (runtime[,DFU])")
	devnum     = pflag.IntP("devnum", "n", -1, "match device number from -l")
	path       = pflag.StringP("path", "p", "", "match bus-port path")
	cfgIndex   = pflag.IntP("cfg", "c", -1, "match configuration index")
	ifaceIndex = pflag.IntP("intf", "i", -1, "match interface index")
	altSpec    = pflag.StringP("alt", "a", "", "match altsetting index or name")
	serial     = pflag.StringP("serial", "S", "", "match serial string [,dfu-serial]")
	xferSize   = pflag.Uint16P("transfer-size", "t", 0, "transfer size in bytes")
	uploadFile = pflag.StringP("upload", "U", "", "upload firmware to file")
	expected   = pflag.Int64P("expected-size", "Z", 0, "expected upload size in bytes")
	download   = pflag.StringP("download", "D", "", "download firmware from file")
	resetAfter = pflag.BoolP("reset", "R", false, "reset device after operation")
	waitDevice = pflag.BoolP("wait", "w", false, "wait for device to appear")
	dfuseSpec  = pflag.StringP("dfuse-address", "s", "", "DfuSe address[:opt:opt...]")
	detachSecs = pflag.IntP("detach-delay", "E", 5, "detach delay in seconds")
	yesToAll   = pflag.BoolP("yes", "y", false, "answer yes to all confirmations")
	verbose    = pflag.CountP("verbose", "v", "increase logging verbosity")
)

func main() {
	pflag.Parse()
	setupLogging(*verbose)

	if err := run(); err != nil {
		log.Error().Err(err).Msg("dfu-util failed")
		os.Exit(dfu.KindOf(err).ExitCode())
	}
}

func setupLogging(level int) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if level == 1 {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else if level >= 2 {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func run() error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	tctx, err := transport.NewContext()
	if err != nil {
		return dfu.IOError(err, "initializing USB context")
	}

	sess := dfu.NewSession(tctx, cfg)
	if *verbose > 0 {
		sess.Progress = progress.NewMpbReporter(operationLabel())
	}

	ctx := context.Background()

	if *listOnly {
		candidates, err := sess.Discover(ctx)
		if err != nil {
			return err
		}
		for _, dif := range candidates {
			printInterface(dif)
		}
		return nil
	}

	if err := discoverAndSelect(ctx, sess); err != nil {
		return err
	}

	if !sess.Selected.InDFUMode() {
		log.Info().Msg("device is in run-time mode; detaching")
		if err := dfu.ForceDFUMode(ctx, sess.Selected); err != nil {
			return err
		}
		if *detachOnly {
			return nil
		}
		if err := dfu.DetachDelay(ctx, cfg.DetachDelay); err != nil {
			return err
		}
		if err := rediscoverInDFUMode(ctx, sess); err != nil {
			return err
		}
	} else if *detachOnly {
		return dfu.ForceDFUMode(ctx, sess.Selected)
	}

	if err := resolveAltNameIfNeeded(ctx, sess); err != nil {
		return err
	}

	if err := sess.Open(); err != nil {
		return err
	}
	defer sess.Close()

	size, err := sess.TransferSize()
	if err != nil {
		return err
	}

	switch {
	case *download != "":
		if err := runDownload(ctx, sess, size); err != nil {
			return err
		}
	case *uploadFile != "":
		if err := runUpload(ctx, sess, size); err != nil {
			return err
		}
	}

	if *resetAfter {
		if sess.Selected.Handle != nil {
			_ = sess.Selected.Handle.ResetDevice()
		}
	}

	return nil
}

func operationLabel() string {
	switch {
	case *download != "":
		return "download"
	case *uploadFile != "":
		return "upload"
	default:
		return "dfu-util"
	}
}

func buildConfig() (dfu.Config, error) {
	cfg := dfu.DefaultConfig()

	if *device != "" {
		parts := strings.SplitN(*device, ",", 2)
		v, p, err := parseVIDPID(parts[0])
		if err != nil {
			return cfg, dfu.UsageError("invalid -d spec %q: %v", *device, err)
		}
		cfg.Match.Vendor, cfg.Match.Product = v, p
		if len(parts) == 2 {
			v, p, err := parseVIDPID(parts[1])
			if err != nil {
				return cfg, dfu.UsageError("invalid -d DFU-mode spec %q: %v", parts[1], err)
			}
			cfg.Match.VendorDFU, cfg.Match.ProductDFU = v, p
		}
	}

	cfg.PathFilter = *path
	if *devnum >= 0 {
		cfg.DevNum = int32(*devnum)
	}
	if *cfgIndex >= 0 {
		cfg.ConfigIndex = int32(*cfgIndex)
	}
	if *ifaceIndex >= 0 {
		cfg.InterfaceIdx = int32(*ifaceIndex)
	}
	if *altSpec != "" {
		if n, err := strconv.Atoi(*altSpec); err == nil {
			cfg.AltSetting = int32(n)
		} else {
			cfg.AltName = *altSpec
		}
	}
	if *serial != "" {
		parts := strings.SplitN(*serial, ",", 2)
		cfg.Serial = parts[0]
		if len(parts) == 2 {
			cfg.SerialDFU = parts[1]
		}
	}

	cfg.TransferSize = *xferSize
	cfg.ExpectedSize = *expected
	cfg.ResetAfter = *resetAfter
	cfg.WaitForDevice = *waitDevice
	cfg.YesToAll = *yesToAll
	cfg.DetachDelay = time.Duration(*detachSecs) * time.Second

	if *dfuseSpec != "" {
		opts, err := parseDfuSeSpec(*dfuseSpec)
		if err != nil {
			return cfg, err
		}
		cfg.DfuSe = opts
	}

	return cfg, nil
}

func parseVIDPID(spec string) (vendor, product int32, err error) {
	vendor, product = -1, -1
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) > 0 && parts[0] != "" {
		v, e := strconv.ParseUint(parts[0], 16, 16)
		if e != nil {
			return 0, 0, e
		}
		vendor = int32(v)
	}
	if len(parts) > 1 && parts[1] != "" {
		p, e := strconv.ParseUint(parts[1], 16, 16)
		if e != nil {
			return 0, 0, e
		}
		product = int32(p)
	}
	return vendor, product, nil
}

func parseDfuSeSpec(spec string) (dfu.DfuSeOptions, error) {
	var opts dfu.DfuSeOptions
	tokens := strings.Split(spec, ":")
	addr, err := strconv.ParseUint(tokens[0], 0, 32)
	if err != nil {
		return opts, dfu.UsageError("invalid DfuSe address %q", tokens[0])
	}
	opts.Address = uint32(addr)
	opts.HasAddress = true

	for _, tok := range tokens[1:] {
		switch tok {
		case "leave":
			opts.Leave = true
		case "mass-erase":
			opts.MassErase = true
		case "unprotect":
			opts.Unprotect = true
		case "will-reset":
			opts.WillReset = true
		case "force":
			opts.Force = true
		default:
			n, err := strconv.ParseUint(tok, 0, 32)
			if err != nil {
				return opts, dfu.UsageError("unrecognized DfuSe option %q", tok)
			}
			opts.Length = uint32(n)
		}
	}
	return opts, nil
}

func discoverAndSelect(ctx context.Context, sess *dfu.Session) error {
	candidates, err := sess.Discover(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 && sess.Config.WaitForDevice {
		for len(candidates) == 0 {
			time.Sleep(500 * time.Millisecond)
			candidates, err = sess.Discover(ctx)
			if err != nil {
				return err
			}
		}
	}

	if sess.Config.AltName != "" || sess.Config.Serial != "" || sess.Config.SerialDFU != "" {
		for _, dif := range candidates {
			if err := dfu.ResolveStrings(ctx, dif, dif.AltNameIndex, dif.SerialIndex); err != nil {
				log.Debug().Err(err).Msg("failed to resolve string descriptors for a candidate")
			}
		}
	}

	_, err = sess.SelectOne()
	return err
}

// resolveAltNameIfNeeded fills in dif.AltName from its iInterface string,
// needed for DfuSe memory-layout parsing even when -a wasn't used to filter
// on it.
func resolveAltNameIfNeeded(ctx context.Context, sess *dfu.Session) error {
	dif := sess.Selected
	if dif.AltName != "" || (!sess.Config.DfuSe.HasAddress && dif.Functional.DFUVersion != dfu.DfuSeVersion) {
		return nil
	}
	return dfu.ResolveStrings(ctx, dif, dif.AltNameIndex, 0)
}

func rediscoverInDFUMode(ctx context.Context, sess *dfu.Session) error {
	// 0x10000 lies outside the 16-bit id range, so no run-time-mode
	// interface can match; DFU-mode interfaces are still filtered by
	// VendorDFU/ProductDFU.
	sess.Config.Match.Vendor = 0x10000
	sess.Config.Match.Product = 0x10000
	if _, err := sess.Discover(ctx); err != nil {
		return err
	}
	_, err := sess.SelectOne()
	return err
}

func printInterface(dif *dfu.DfuIf) {
	fmt.Printf("Bus %03d Device %03d: ID %04x:%04x, interface %d, alt %d %q\n",
		dif.Bus, dif.Address, dif.VendorID, dif.ProductID, dif.Interface, dif.AltSetting, dif.AltName)
}

func runDownload(ctx context.Context, sess *dfu.Session, xfer uint16) error {
	data, err := os.ReadFile(*download)
	if err != nil {
		return dfufile.NoInputError(err, "reading %s", *download)
	}

	f, err := dfufile.Load(data, dfufile.SuffixMaybe, dfufile.PrefixMaybe)
	if err != nil {
		return err
	}

	if sess.Selected.Functional.DFUVersion == dfu.DfuSeVersion || sess.Config.DfuSe.HasAddress {
		return runDfuSeDownload(ctx, sess, f, xfer)
	}

	return dfu.DownloadImage(ctx, sess.Selected, bytes.NewReader(f.Payload), xfer, int64(len(f.Payload)), sess.Progress)
}

func runDfuSeDownload(ctx context.Context, sess *dfu.Session, f *dfufile.File, xfer uint16) error {
	_, targets, err := dfuse.ParseContainer(f.Payload)
	if err != nil {
		return err
	}

	name, segments, err := dfuse.ParseMemoryLayout(sess.Selected.AltName)
	if err != nil {
		return dfufile.DataError("device did not advertise a DfuSe memory layout: %v", err)
	}
	log.Debug().Str("layout", name).Int("segments", len(segments)).Msg("parsed DfuSe memory layout")

	opts := dfuse.Options{
		Force:     sess.Config.DfuSe.Force,
		Leave:     sess.Config.DfuSe.Leave,
		Unprotect: sess.Config.DfuSe.Unprotect,
		MassErase: sess.Config.DfuSe.MassErase,
	}

	return dfuse.Download(ctx, sess.Selected, segments, targets, xfer, opts, sess.Progress)
}

func runUpload(ctx context.Context, sess *dfu.Session, xfer uint16) error {
	if sess.Config.DfuSe.HasAddress {
		return runDfuSeUpload(ctx, sess, xfer)
	}

	out, err := os.Create(*uploadFile)
	if err != nil {
		return dfufile.IOError(err, "creating %s", *uploadFile)
	}
	defer out.Close()

	_, err = dfu.UploadImage(ctx, sess.Selected, out, xfer, sess.Config.ExpectedSize, sess.Progress)
	return err
}

func runDfuSeUpload(ctx context.Context, sess *dfu.Session, xfer uint16) error {
	container, err := dfuse.Upload(ctx, sess.Selected, sess.Config.DfuSe.Address, sess.Config.DfuSe.Length, xfer, sess.Selected.AltName, sess.Progress)
	if err != nil {
		return err
	}

	out := dfufile.Dump(container, dfufile.DumpOptions{
		WriteSuffix: true,
		IDVendor:    sess.Selected.VendorID,
		IDProduct:   sess.Selected.ProductID,
		BcdDevice:   sess.Selected.BcdDevice,
		BcdDFU:      dfu.DfuSeVersion,
	})

	return os.WriteFile(*uploadFile, out, 0o644)
}
