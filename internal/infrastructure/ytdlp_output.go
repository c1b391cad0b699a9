package infrastructure

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/yourusername/clipfetch/internal/domain"
)

// Line prefixes produced by the --progress-template and --print arguments
const (
	progressPrefix = "[progress] "
	resultPrefix   = "[result] "
	errorPrefix    = "ERROR: "
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// stripANSI removes terminal color sequences that survive --no-colors in some extractors
func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// progressLine is the JSON rendered by the progress template. yt-dlp emits
// byte counts as ints or floats and null when unknown.
type progressLine struct {
	Status             string   `json:"status"`
	DownloadedBytes    *float64 `json:"downloaded_bytes"`
	TotalBytes         *float64 `json:"total_bytes"`
	TotalBytesEstimate *float64 `json:"total_bytes_estimate"`
	Speed              string   `json:"_speed_str"`
	ETA                string   `json:"_eta_str"`
	Percent            string   `json:"_percent_str"`
	Filename           string   `json:"filename"`
}

// parseProgressLine decodes a "[progress] {...}" line
func parseProgressLine(line string) (domain.ResolverProgress, bool) {
	payload, ok := strings.CutPrefix(line, progressPrefix)
	if !ok {
		return domain.ResolverProgress{}, false
	}

	var p progressLine
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return domain.ResolverProgress{}, false
	}

	return domain.ResolverProgress{
		Status:             domain.ResolverStatus(p.Status),
		DownloadedBytes:    toBytes(p.DownloadedBytes),
		TotalBytes:         toBytes(p.TotalBytes),
		TotalBytesEstimate: toBytes(p.TotalBytesEstimate),
		Speed:              cleanField(p.Speed),
		ETA:                cleanField(p.ETA),
		Percent:            cleanField(p.Percent),
		Filename:           p.Filename,
	}, true
}

type resultLine struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Ext      string `json:"ext"`
	Filepath string `json:"filepath"`
}

// parseResultLine decodes a "[result] {...}" line printed after the final move
func parseResultLine(line string) (*domain.ResolvedMedia, bool) {
	payload, ok := strings.CutPrefix(line, resultPrefix)
	if !ok {
		return nil, false
	}

	var r resultLine
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, false
	}
	return &domain.ResolvedMedia{ID: r.ID, Title: r.Title, Ext: r.Ext, Path: r.Filepath}, true
}

func toBytes(v *float64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return int64(*v)
}

// cleanField trims padding and drops the placeholders yt-dlp prints for unknown values
func cleanField(s string) string {
	s = strings.TrimSpace(stripANSI(s))
	switch s {
	case "NA", "N/A", "Unknown", "Unknown speed", "Unknown ETA", "--:--":
		return ""
	}
	return s
}

// Diagnostics that mean the URL itself has nothing to offer. These hold
// even when bytes already flowed.
var lookupPatterns = []string{
	"unsupported url",
	"is not a valid url",
	"video unavailable",
	"private video",
	"this video is private",
	"members-only",
	"not available in your country",
	"geo restriction",
	"geo-restricted",
	"sign in to confirm",
	"requested format is not available",
	"no video formats found",
	"unable to extract",
	"has been removed",
	"account associated with this video has been terminated",
}

// Diagnostics that mean resolution failed, but only before transfer began.
// Once streaming, an HTTP 4xx is an expired stream URL and a missing file
// is a lost partial download.
var preTransferPatterns = []string{
	"http error 403",
	"http error 404",
	"http error 410",
	"executable file not found",
	"no such file or directory",
}

// Diagnostics that mean the transport broke
var networkPatterns = []string{
	"unable to download",
	"temporary failure in name resolution",
	"name or service not known",
	"network is unreachable",
	"connection refused",
	"connection reset",
	"connection aborted",
	"timed out",
	"incompleteread",
	"content too short",
	"did not get any data blocks",
	"ssl",
	"giving up after",
	"http error 4",
	"http error 5",
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// classifyFailure decides between resolution and network failure from the
// resolver's diagnostic. When nothing matches, a failure after bytes started
// flowing is a transport problem and one before is a lookup problem.
func classifyFailure(diagnostic string, transferStarted bool) domain.FetchErrorKind {
	lower := strings.ToLower(diagnostic)
	if containsAny(lower, lookupPatterns) {
		return domain.KindResolutionFailed
	}
	if transferStarted {
		return domain.KindNetworkFailed
	}
	if containsAny(lower, preTransferPatterns) {
		return domain.KindResolutionFailed
	}
	if containsAny(lower, networkPatterns) {
		return domain.KindNetworkFailed
	}
	return domain.KindResolutionFailed
}

// probeInfo is the subset of the -J document the probe needs
type probeInfo struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	WebpageURL string        `json:"webpage_url"`
	Duration   float64       `json:"duration"`
	Formats    []probeFormat `json:"formats"`
}

type probeFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Height         *float64 `json:"height"`
	VCodec         *string  `json:"vcodec"`
	ACodec         *string  `json:"acodec"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
	FormatNote     string   `json:"format_note"`
}

// parseProbe converts the -J document into MediaInfo. A missing codec field
// counts as present, which is how the resolver's own selector treats it.
func parseProbe(data []byte) (*domain.MediaInfo, error) {
	var info probeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}

	media := &domain.MediaInfo{
		ID:         info.ID,
		Title:      info.Title,
		WebpageURL: info.WebpageURL,
		Duration:   info.Duration,
		Formats:    make([]domain.StreamFormat, 0, len(info.Formats)),
	}

	for _, f := range info.Formats {
		// Storyboards are image sprites, not media
		if f.Ext == "mhtml" {
			continue
		}
		size := toBytes(f.Filesize)
		if size == 0 {
			size = toBytes(f.FilesizeApprox)
		}
		height := 0
		if f.Height != nil {
			height = int(*f.Height)
		}
		media.Formats = append(media.Formats, domain.StreamFormat{
			ID:       f.FormatID,
			Ext:      f.Ext,
			Height:   height,
			HasVideo: f.VCodec == nil || *f.VCodec != "none",
			HasAudio: f.ACodec == nil || *f.ACodec != "none",
			Size:     size,
			Note:     f.FormatNote,
		})
	}
	return media, nil
}

// diagnosticFrom picks the most useful failure text: ERROR lines first, then
// the last stderr line.
func diagnosticFrom(errorLines []string, lastStderr string) string {
	if len(errorLines) > 0 {
		return strings.Join(errorLines, "; ")
	}
	return lastStderr
}
