package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Quality is the resolution constraint of a fetch. A zero Height means best available.
type Quality struct {
	Height int
}

// BestQuality places no resolution cap
var BestQuality = Quality{}

// ParseQuality accepts "best", "720p" or "720"
func ParseQuality(s string) (Quality, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "best" {
		return BestQuality, nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(s, "p"))
	if err != nil {
		return Quality{}, fmt.Errorf("invalid quality %q: expected best or a height such as 720p", s)
	}
	if n <= 0 {
		return Quality{}, fmt.Errorf("invalid quality %q: height must be positive", s)
	}
	return Quality{Height: n}, nil
}

// IsBest reports whether the quality places no resolution cap
func (q Quality) IsBest() bool {
	return q.Height == 0
}

func (q Quality) String() string {
	if q.IsBest() {
		return "best"
	}
	return strconv.Itoa(q.Height) + "p"
}

// DeliveryMode selects where the finished artifact ends up
type DeliveryMode string

const (
	DeliveryDisk   DeliveryMode = "disk"   // Artifact stays in scratch storage
	DeliveryBuffer DeliveryMode = "buffer" // Artifact is read into memory and removed
)

// ValidateDelivery checks if a delivery mode is valid
func ValidateDelivery(mode DeliveryMode) bool {
	return mode == DeliveryDisk || mode == DeliveryBuffer
}

// FetchRequest is created per user action and never persisted as such
type FetchRequest struct {
	SourceURL string
	Quality   Quality
	Delivery  DeliveryMode
}

// Validate checks the request invariants
func (r FetchRequest) Validate() error {
	if strings.TrimSpace(r.SourceURL) == "" {
		return NewFetchError(KindInvalidRequest, "source URL is required", nil)
	}
	if r.Quality.Height < 0 {
		return NewFetchError(KindInvalidRequest, fmt.Sprintf("invalid height %d", r.Quality.Height), nil)
	}
	if r.Delivery != "" && !ValidateDelivery(r.Delivery) {
		return NewFetchError(KindInvalidRequest, fmt.Sprintf("invalid delivery mode: %s", r.Delivery), nil)
	}
	return nil
}

// FetchResult is owned by the caller once returned
type FetchResult struct {
	Path        string `json:"path,omitempty"`
	DisplayName string `json:"display_name"`
	Size        int64  `json:"size"`
	Title       string `json:"title"`
	Data        []byte `json:"-"`
}
