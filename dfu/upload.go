package dfu

import (
	"context"
	"io"
)

// UploadImage runs the plain-DFU upload orchestrator (§4.5): it streams
// wTransferSize-byte blocks from the device into w, starting at block 0,
// until a short or zero-length block signals EOF, or expectedSize bytes
// (if non-zero) have been read. It returns the total byte count.
func UploadImage(ctx context.Context, dif *DfuIf, w io.Writer, xferSize uint16, expectedSize int64, progress Reporter) (int64, error) {
	if xferSize == 0 {
		return 0, UsageError("transfer size is zero; device did not advertise one and none was supplied with -t")
	}
	if err := EnterIdle(ctx, dif); err != nil {
		return 0, err
	}

	progress.Start(expectedSize)
	defer progress.Finish()

	buf := make([]byte, xferSize)
	var total int64
	var blockNum uint16

	for {
		n, err := Upload(ctx, dif, blockNum, buf)
		if err != nil {
			return total, err
		}
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, IOError(werr, "writing upload output")
			}
			total += int64(n)
			progress.Advance(int64(n))
		}

		blockNum++ // 16-bit rolling counter; wraps per §9's resolved open question.

		if n < int(xferSize) {
			break
		}
		if expectedSize > 0 && total >= expectedSize {
			break
		}
	}

	st, err := GetStatus(ctx, dif)
	if err != nil {
		return total, err
	}
	if st.State != StateDfuIdle {
		_ = Abort(ctx, dif)
	}

	return total, nil
}
