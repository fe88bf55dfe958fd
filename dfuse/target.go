package dfuse

import (
	"context"
	"io"

	"github.com/o-murphy/go-dfu/dfu"
	"github.com/o-murphy/go-dfu/dfufile"
)

// Options carries the DfuSe-specific knobs a user can set with -s, mirrored
// from dfu.Config.DfuSe.
type Options struct {
	Force     bool
	Leave     bool
	Unprotect bool
	MassErase bool
}

// Download writes a parsed DfuSe container to the device: for each target
// whose alt-setting matches dif (or whose bTargetNamed is 0, meaning it
// applies regardless of alt-setting), every element is erased and written
// in the order it appears in the container; elements are not sorted by
// address. Unmatched targets are skipped entirely — their bytes
// were already consumed by ParseContainer.
func Download(ctx context.Context, dif *dfu.DfuIf, segments []MemSegment, targets []Target, xferSize uint16, opts Options, progress dfu.Reporter) error {
	if opts.Unprotect {
		if err := SpecialCommand(ctx, dif, 0, CmdReadUnprotect); err != nil {
			return err
		}
	}
	if opts.MassErase {
		if err := SpecialCommand(ctx, dif, 0, CmdMassErase); err != nil {
			return err
		}
	}

	lastErased := noErase
	var lastAddr uint32
	wrote := false

	for _, t := range targets {
		if t.Named && t.AltSetting != dif.AltSetting {
			continue
		}

		for _, e := range t.Elements {
			if err := writeElement(ctx, dif, segments, e.Address, e.Data, xferSize, &lastErased, progress); err != nil {
				return err
			}
			lastAddr = e.Address
			wrote = true
		}
	}

	if !wrote {
		return dfufile.DataError("DfuSe container has no targets matching alt-setting %d", dif.AltSetting)
	}

	if opts.Leave {
		return Leave(ctx, dif, lastAddr)
	}
	return nil
}

// Leave issues the DfuSe exit sequence (§4.7): SET_ADDRESS to the last
// written element's base, then a zero-length DNLOAD, then wait for
// manifestation.
func Leave(ctx context.Context, dif *dfu.DfuIf, address uint32) error {
	if err := SpecialCommand(ctx, dif, address, CmdSetAddress); err != nil {
		return err
	}
	if _, err := dfu.Download(ctx, dif, 2, nil); err != nil {
		return err
	}

	st, err := dfu.WaitWhileState(ctx, dif, dfu.StateDfuManifestSync, dfu.StateDfuManifest)
	if err != nil {
		return err
	}
	switch st.State {
	case dfu.StateDfuIdle, dfu.StateDfuManifestWaitReset:
		return nil
	default:
		if st.Status != dfu.StatusOK {
			return dfu.ProtocolError("DfuSe manifestation failed: status %s in state %s", st.Status, st.State)
		}
		return nil
	}
}

// Upload reads length bytes starting at address and returns them wrapped
// in a single-target, single-element DfuSe container ready for
// dfufile.Dump (§4.7 "DfuSe container format (uploads)").
func Upload(ctx context.Context, dif *dfu.DfuIf, address, length uint32, xferSize uint16, altName string, progress dfu.Reporter) ([]byte, error) {
	if err := SpecialCommand(ctx, dif, address, CmdSetAddress); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, length)
	blockNum := uint16(2)
	chunk := make([]byte, xferSize)

	for uint32(len(buf)) < length {
		want := uint32(len(chunk))
		if remaining := length - uint32(len(buf)); remaining < want {
			want = remaining
		}
		n, err := dfu.Upload(ctx, dif, blockNum, chunk[:want])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, dfu.ProtocolError("DfuSe upload ended early at %d/%d bytes", len(buf), length)
		}
		buf = append(buf, chunk[:n]...)
		progress.Advance(int64(n))
		blockNum++
	}

	target := Target{
		Named: altName != "",
		Name:  altName,
		Elements: []Element{
			{Address: address, Data: buf},
		},
	}
	return EncodeContainer([]Target{target}), nil
}

// ReadAll reads the full content of r, used by callers assembling a
// DfuSe-targeted download from a file on disk.
func ReadAll(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, dfufile.IOError(err, "reading DfuSe input")
	}
	return b, nil
}
