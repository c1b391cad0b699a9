package domain

import (
	"fmt"
	"strings"
)

// DefaultContainer is the widely-compatible container preferred by the format policy
const DefaultContainer = "mp4"

// mergeAudioExt is the audio container paired with the video container in merged selections
const mergeAudioExt = "m4a"

// FormatPolicy turns a quality constraint into a yt-dlp format selection expression.
//
// The fallback chain trades exact resolution compliance for guaranteed success:
//
//	[bestvideo[ext=C][height<=H]+bestaudio[ext=m4a]/]   only with MergeStreams
//	best[ext=C][height<=H]                               combined stream under the cap
//	best[ext=C]                                          combined stream in the container
//	best                                                 best combined stream anywhere
type FormatPolicy struct {
	Quality      Quality
	Container    string
	MergeStreams bool
}

// NewFormatPolicy creates a policy with the default container when none is given
func NewFormatPolicy(quality Quality, container string, mergeStreams bool) FormatPolicy {
	if container == "" {
		container = DefaultContainer
	}
	return FormatPolicy{Quality: quality, Container: container, MergeStreams: mergeStreams}
}

// Expression renders the selection expression
func (p FormatPolicy) Expression() string {
	container := p.container()
	var alternatives []string

	heightFilter := ""
	if !p.Quality.IsBest() {
		heightFilter = fmt.Sprintf("[height<=%d]", p.Quality.Height)
	}

	if p.MergeStreams {
		alternatives = append(alternatives,
			fmt.Sprintf("bestvideo[ext=%s]%s+bestaudio[ext=%s]", container, heightFilter, mergeAudioExt))
	}
	if heightFilter != "" {
		alternatives = append(alternatives, fmt.Sprintf("best[ext=%s]%s", container, heightFilter))
	}
	alternatives = append(alternatives, fmt.Sprintf("best[ext=%s]", container), "best")

	return strings.Join(alternatives, "/")
}

func (p FormatPolicy) container() string {
	if p.Container == "" {
		return DefaultContainer
	}
	return p.Container
}

// StreamFormat describes one encoded stream offered by the resolver
type StreamFormat struct {
	ID       string `json:"id"`
	Ext      string `json:"ext"`
	Height   int    `json:"height,omitempty"`
	HasVideo bool   `json:"has_video"`
	HasAudio bool   `json:"has_audio"`
	Size     int64  `json:"size,omitempty"`
	Note     string `json:"note,omitempty"`
}

// IsCombined reports whether the stream carries both video and audio
func (f StreamFormat) IsCombined() bool {
	return f.HasVideo && f.HasAudio
}

// Selection is the outcome of evaluating a policy against the available formats
type Selection struct {
	Formats     []StreamFormat `json:"formats"`
	Alternative int            `json:"alternative"` // Index of the matching alternative in the expression
	CapExceeded bool           `json:"cap_exceeded"`
}

// Select evaluates the fallback chain against the available formats the way
// the resolver does. It returns false only when no alternative matches.
func (p FormatPolicy) Select(available []StreamFormat) (*Selection, bool) {
	container := p.container()
	capped := func(f StreamFormat) bool {
		return p.Quality.IsBest() || (f.Height > 0 && f.Height <= p.Quality.Height)
	}

	alternative := 0
	if p.MergeStreams {
		video := bestOf(available, func(f StreamFormat) bool {
			return f.HasVideo && !f.HasAudio && f.Ext == container && capped(f)
		})
		audio := bestOf(available, func(f StreamFormat) bool {
			return f.HasAudio && !f.HasVideo && f.Ext == mergeAudioExt
		})
		if video != nil && audio != nil {
			return &Selection{Formats: []StreamFormat{*video, *audio}}, true
		}
		alternative++
	}

	if !p.Quality.IsBest() {
		if f := bestOf(available, func(f StreamFormat) bool {
			return f.IsCombined() && f.Ext == container && capped(f)
		}); f != nil {
			return &Selection{Formats: []StreamFormat{*f}, Alternative: alternative}, true
		}
		alternative++
	}

	if f := bestOf(available, func(f StreamFormat) bool {
		return f.IsCombined() && f.Ext == container
	}); f != nil {
		return p.fallback(*f, alternative), true
	}
	alternative++

	if f := bestOf(available, StreamFormat.IsCombined); f != nil {
		return p.fallback(*f, alternative), true
	}

	return nil, false
}

func (p FormatPolicy) fallback(f StreamFormat, alternative int) *Selection {
	return &Selection{
		Formats:     []StreamFormat{f},
		Alternative: alternative,
		CapExceeded: !p.Quality.IsBest() && (f.Height == 0 || f.Height > p.Quality.Height),
	}
}

// bestOf ranks by height, then size; later entries win ties since resolvers
// list formats from worst to best.
func bestOf(formats []StreamFormat, match func(StreamFormat) bool) *StreamFormat {
	var best *StreamFormat
	for i := range formats {
		f := formats[i]
		if !match(f) {
			continue
		}
		if best == nil || f.Height > best.Height || (f.Height == best.Height && f.Size >= best.Size) {
			best = &formats[i]
		}
	}
	return best
}
