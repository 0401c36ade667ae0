package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Bar reports how many bundles of a run are done. A nil *Bar is valid and
// reports nothing.
type Bar struct {
	pb *progressbar.ProgressBar
}

func New(w io.Writer, total int, description string) *Bar {
	pb := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)
	return &Bar{pb: pb}
}

func (b *Bar) Add(n int) {
	if b == nil {
		return
	}
	_ = b.pb.Add(n)
}

// Finish completes the bar and clears it.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.pb.Finish()
}
