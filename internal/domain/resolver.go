package domain

import "context"

// Resolver defines the external media-extraction collaborator
type Resolver interface {
	// Download resolves the URL, transfers the selected stream into OutputDir
	// and reports progress through the hook as bytes arrive
	Download(ctx context.Context, req ResolveRequest, hook ResolverHook) (*ResolvedMedia, error)

	// Probe lists the available formats without downloading
	Probe(ctx context.Context, url string) (*MediaInfo, error)
}

// ResolveRequest carries everything the resolver needs for one transfer
type ResolveRequest struct {
	URL            string
	Format         string // Format selection expression
	OutputDir      string
	OutputTemplate string // e.g. %(title)s.%(ext)s
	FetchID        string // Used to tag process logs
}

// ResolverStatus is the phase reported by the resolver's progress hook
type ResolverStatus string

const (
	ResolverDownloading ResolverStatus = "downloading"
	ResolverFinished    ResolverStatus = "finished"
	ResolverError       ResolverStatus = "error"
)

// ResolverProgress mirrors the status dictionary the resolver passes to its hooks
type ResolverProgress struct {
	Status             ResolverStatus
	DownloadedBytes    int64
	TotalBytes         int64
	TotalBytesEstimate int64
	Speed              string
	ETA                string
	Percent            string
	Filename           string
}

// ResolverHook receives resolver progress
type ResolverHook func(ResolverProgress)

// ResolvedMedia describes the produced artifact as the resolver predicts it
type ResolvedMedia struct {
	ID    string
	Title string
	Ext   string
	Path  string // Predicted final path, may differ from the file on disk
}

// MediaInfo is the probe result
type MediaInfo struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	WebpageURL string         `json:"webpage_url,omitempty"`
	Duration   float64        `json:"duration,omitempty"`
	Formats    []StreamFormat `json:"formats"`
}
