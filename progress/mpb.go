// Package progress renders upload/download progress on the terminal.
package progress

import (
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/o-murphy/go-dfu/dfu"
)

// MpbReporter renders a single mpb progress bar across the lifetime of one
// upload or download. It satisfies dfu.Reporter.
type MpbReporter struct {
	label string
	prog  *mpb.Progress
	bar   *mpb.Bar
}

// NewMpbReporter returns a Reporter that labels its bar with label (e.g.
// "download", "upload").
func NewMpbReporter(label string) *MpbReporter {
	return &MpbReporter{label: label}
}

var _ dfu.Reporter = (*MpbReporter)(nil)

func (r *MpbReporter) Start(total int64) {
	r.prog = mpb.New(mpb.WithWidth(64))
	if total <= 0 {
		total = 1
	}
	r.bar = r.prog.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(r.label+": "),
			decor.Percentage(decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done!"),
		),
	)
}

func (r *MpbReporter) Advance(n int64) {
	if r.bar != nil {
		r.bar.IncrInt64(n)
	}
}

func (r *MpbReporter) Finish() {
	if r.prog != nil {
		r.prog.Wait()
	}
}
