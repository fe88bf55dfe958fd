package dfu

import (
	"context"
	"io"
)

// DownloadImage runs the plain-DFU download orchestrator (§4.6): it reads
// wTransferSize-byte blocks from r, sending each as DFU_DNLOAD with a
// rolling 16-bit block number, waiting for dfuDNLOAD-IDLE after each, and
// finishing with the terminating zero-length block and the manifestation
// wait. totalSize, if known, only drives the progress bar.
func DownloadImage(ctx context.Context, dif *DfuIf, r io.Reader, xferSize uint16, totalSize int64, progress Reporter) error {
	if xferSize == 0 {
		return UsageError("transfer size is zero; device did not advertise one and none was supplied with -t")
	}
	if err := EnterIdle(ctx, dif); err != nil {
		return err
	}

	progress.Start(totalSize)
	defer progress.Finish()

	buf := make([]byte, xferSize)
	var blockNum uint16

	for {
		n, rerr := io.ReadFull(r, buf)
		if rerr == io.ErrUnexpectedEOF {
			rerr = nil
		}
		if rerr != nil && rerr != io.EOF {
			return IOError(rerr, "reading download input")
		}

		if _, err := Download(ctx, dif, blockNum, buf[:n]); err != nil {
			return err
		}
		if n > 0 {
			progress.Advance(int64(n))
		}

		st, err := WaitWhileState(ctx, dif, StateDfuDnloadSync, StateDfuDnBusy)
		if err != nil {
			return err
		}
		if st.State != StateDfuDnloadIdle {
			return ProtocolError("expected dfuDNLOAD-IDLE after block %d, got %s", blockNum, st.State)
		}

		blockNum++

		// A short (or zero-length) block is the terminal block. Per §4.6
		// step 4, a short block alone does not trigger manifestation: a
		// short non-empty block is followed by a separate zero-length
		// DNLOAD, while a zero-length block is itself the terminator.
		if n < len(buf) {
			if n > 0 {
				if _, err := Download(ctx, dif, blockNum, nil); err != nil {
					return err
				}
				st, err := WaitWhileState(ctx, dif, StateDfuDnloadSync, StateDfuDnBusy)
				if err != nil {
					return err
				}
				if st.State != StateDfuDnloadIdle {
					return ProtocolError("expected dfuDNLOAD-IDLE after terminal block, got %s", st.State)
				}
			}
			break
		}
	}

	return waitManifestation(ctx, dif)
}

func waitManifestation(ctx context.Context, dif *DfuIf) error {
	st, err := WaitWhileState(ctx, dif, StateDfuManifestSync, StateDfuManifest)
	if err != nil {
		return err
	}

	switch st.State {
	case StateDfuIdle:
		return nil
	case StateDfuManifestWaitReset:
		// Manifest-intolerant device; the caller is expected to reset the
		// bus (spec §4.6 step 6) and re-enumerate if it needs to continue.
		return nil
	default:
		if st.Status != StatusOK {
			return ProtocolError("manifestation failed: status %s in state %s", st.Status, st.State)
		}
		return nil
	}
}
