package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/yourusername/clipfetch/internal/domain"
)

// progressRenderer draws Progress Events as a terminal progress bar
type progressRenderer struct {
	mu    sync.Mutex
	label string
	bar   *progressbar.ProgressBar
	max   int64
}

func newProgressRenderer(label string) *progressRenderer {
	return &progressRenderer{label: label}
}

// newBar creates a byte bar, or a spinner while the total is unknown (max -1)
func (r *progressRenderer) newBar(max int64) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		max,
		progressbar.OptionSetDescription(r.label),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}

// handle is a domain.ProgressSink
func (r *progressRenderer) handle(event domain.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Phase {
	case domain.PhaseDownloading:
		total := event.TotalBytes
		if total <= 0 {
			total = -1
		}
		if r.bar == nil || total != r.max {
			if r.bar != nil {
				_ = r.bar.Exit()
			}
			r.bar = r.newBar(total)
			r.max = total
		}
		if event.Speed != "" {
			r.bar.Describe(fmt.Sprintf("%s %s", r.label, event.Speed))
		}
		_ = r.bar.Set64(event.DownloadedBytes)

	case domain.PhaseFinished:
		if r.bar != nil {
			if r.max > 0 {
				_ = r.bar.Set64(r.max)
			}
			_ = r.bar.Finish()
		}

	case domain.PhaseFailed:
		if r.bar != nil {
			_ = r.bar.Exit()
			fmt.Fprintln(os.Stderr)
		}
	}
}
