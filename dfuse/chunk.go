package dfuse

import (
	"context"

	"github.com/o-murphy/go-dfu/dfu"
)

// noErase is the lastErased sentinel meaning "nothing erased yet".
const noErase = ^uint32(0)

// eraseRange issues ERASE_PAGE for every distinct page touched by
// [address, address+length), skipping a page that is already *lastErased so
// a page shared by consecutive elements is only erased once (§4.7 erase
// scheduling).
func eraseRange(ctx context.Context, dif *dfu.DfuIf, segments []MemSegment, address, length uint32, lastErased *uint32) error {
	if length == 0 {
		return nil
	}

	addr := address
	end := address + length
	for addr < end {
		seg, ok := FindSegment(segments, addr)
		if !ok {
			return dfu.DataError("no memory segment covers address 0x%08x", addr)
		}
		if seg.MemType&Erasable == 0 {
			return dfu.DataError("segment at 0x%08x is not erasable", addr)
		}

		pageBase := addr - (addr-seg.Start)%seg.PageSize

		if pageBase != *lastErased {
			if err := SpecialCommand(ctx, dif, pageBase, CmdErasePage); err != nil {
				return err
			}
			*lastErased = pageBase
		}

		addr = pageBase + seg.PageSize
	}

	return nil
}

// writeElement performs one element's worth of addressed writes: erase the
// pages it covers, SET_ADDRESS to its base, stream data in xferSize-sized
// chunks, then send the terminating zero-length DNLOAD (§4.7: every
// element ends with one, independent of the separate Leave-DFU sequence
// that only fires once, after the last element, when requested). Per-chunk
// block numbers start at 2 (N+1 for chunk N, 1-based): 0 and 1 are
// reserved for special commands.
func writeElement(ctx context.Context, dif *dfu.DfuIf, segments []MemSegment, addr uint32, data []byte, xferSize uint16, lastErased *uint32, progress dfu.Reporter) error {
	// Refuse, before any erase or write, an element that reaches into a
	// segment without the writeable bit.
	end := addr + uint32(len(data))
	for a := addr; a < end; {
		seg, ok := FindSegment(segments, a)
		if !ok {
			break // reported by eraseRange
		}
		if seg.MemType&Writeable == 0 {
			return dfu.IOError(nil, "DfuSe element at 0x%08x crosses non-writeable memory at 0x%08x", addr, a)
		}
		if seg.End >= end-1 {
			break
		}
		a = seg.End + 1
	}

	if err := eraseRange(ctx, dif, segments, addr, uint32(len(data)), lastErased); err != nil {
		return err
	}

	if err := SpecialCommand(ctx, dif, addr, CmdSetAddress); err != nil {
		return err
	}

	chunkSize := int(xferSize)
	blockNum := uint16(2)
	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]

		if _, err := dfu.Download(ctx, dif, blockNum, chunk); err != nil {
			return err
		}
		st, err := dfu.WaitWhileState(ctx, dif, dfu.StateDfuDnloadSync, dfu.StateDfuDnBusy)
		if err != nil {
			return err
		}
		if st.State != dfu.StateDfuDnloadIdle {
			return dfu.ProtocolError("expected dfuDNLOAD-IDLE after DfuSe chunk, got %s", st.State)
		}

		progress.Advance(int64(len(chunk)))
		blockNum++
	}

	if _, err := dfu.Download(ctx, dif, blockNum, nil); err != nil {
		return err
	}
	st, err := dfu.WaitWhileState(ctx, dif, dfu.StateDfuDnloadSync, dfu.StateDfuDnBusy)
	if err != nil {
		return err
	}
	if st.State != dfu.StateDfuDnloadIdle {
		return dfu.ProtocolError("expected dfuDNLOAD-IDLE after element terminator, got %s", st.State)
	}

	return nil
}
