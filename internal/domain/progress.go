package domain

// ProgressPhase is the phase reported by a progress event
type ProgressPhase string

const (
	PhaseDownloading ProgressPhase = "downloading"
	PhaseFinished    ProgressPhase = "finished"
	PhaseFailed      ProgressPhase = "failed"
)

// ProgressEvent is emitted zero or more times during a fetch and terminated
// by exactly one finished or failed event.
type ProgressEvent struct {
	Phase           ProgressPhase `json:"phase"`
	Fraction        *float64      `json:"fraction,omitempty"` // nil when the total size is unknown
	DownloadedBytes int64         `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64         `json:"total_bytes,omitempty"`
	Speed           string        `json:"speed,omitempty"`
	ETA             string        `json:"eta,omitempty"`
	Message         string        `json:"message,omitempty"`
}

// IsTerminal reports whether the event ends the sequence
func (e ProgressEvent) IsTerminal() bool {
	return e.Phase == PhaseFinished || e.Phase == PhaseFailed
}

// ProgressSink receives progress events during a fetch
type ProgressSink func(ProgressEvent)

// Fraction returns downloaded/total clamped to [0,1], or nil when total is unknown.
func Fraction(downloaded, total int64) *float64 {
	if total <= 0 {
		return nil
	}
	f := float64(downloaded) / float64(total)
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return &f
}
