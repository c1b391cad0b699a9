package domain

import (
	"time"

	"github.com/google/uuid"
)

// FetchStatus represents the current status of a fetch job
type FetchStatus string

const (
	StatusQueued     FetchStatus = "queued"
	StatusProcessing FetchStatus = "processing"
	StatusCompleted  FetchStatus = "completed"
	StatusFailed     FetchStatus = "failed"
	StatusCancelled  FetchStatus = "cancelled"
)

// Fetch is the persisted record of one user-submitted fetch
type Fetch struct {
	ID           string         `json:"id" gorm:"primaryKey"`
	SourceURL    string         `json:"source_url" gorm:"not null"`
	URL          string         `json:"url" gorm:"not null;index"` // Normalized URL handed to the resolver
	Quality      string         `json:"quality" gorm:"not null"`
	Delivery     DeliveryMode   `json:"delivery" gorm:"default:disk"`
	Status       FetchStatus    `json:"status" gorm:"not null;index"`
	Progress     float64        `json:"progress"`
	Speed        string         `json:"speed,omitempty"`
	ETA          string         `json:"eta,omitempty"`
	Title        string         `json:"title,omitempty"`
	DisplayName  string         `json:"display_name,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	SizeBytes    int64          `json:"size_bytes,omitempty"`
	Slot         int            `json:"slot"`
	RetryCount   int            `json:"retry_count" gorm:"default:0"`
	ErrorKind    FetchErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// NewFetch creates a new queued fetch job
func NewFetch(sourceURL, normalizedURL string, quality Quality, delivery DeliveryMode) *Fetch {
	return &Fetch{
		ID:        uuid.New().String(),
		SourceURL: sourceURL,
		URL:       normalizedURL,
		Quality:   quality.String(),
		Delivery:  delivery,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// Request rebuilds the Fetch Request this job was created from
func (f *Fetch) Request() (FetchRequest, error) {
	quality, err := ParseQuality(f.Quality)
	if err != nil {
		return FetchRequest{}, err
	}
	return FetchRequest{
		SourceURL: f.URL,
		Quality:   quality,
		Delivery:  f.Delivery,
	}, nil
}

// MarkProcessing marks the fetch as processing on the given orchestrator slot
func (f *Fetch) MarkProcessing(slot int) {
	f.Status = StatusProcessing
	f.Slot = slot
	f.Progress = 0
	now := time.Now()
	f.StartedAt = &now
	f.UpdatedAt = now
}

// ApplyProgress copies the observable parts of a progress event onto the job
func (f *Fetch) ApplyProgress(event ProgressEvent) {
	if event.Fraction != nil {
		f.Progress = *event.Fraction
	}
	f.Speed = event.Speed
	f.ETA = event.ETA
	f.UpdatedAt = time.Now()
}

// MarkCompleted marks the fetch as completed
func (f *Fetch) MarkCompleted(result *FetchResult) {
	f.Status = StatusCompleted
	f.Progress = 1
	f.Speed = ""
	f.ETA = ""
	f.Title = result.Title
	f.DisplayName = result.DisplayName
	f.FilePath = result.Path
	f.SizeBytes = result.Size
	f.ErrorKind = ""
	f.ErrorMessage = ""
	now := time.Now()
	f.CompletedAt = &now
	f.UpdatedAt = now
}

// MarkFailed marks the fetch as failed, keeping the error kind when known
func (f *Fetch) MarkFailed(err error) {
	f.Status = StatusFailed
	f.ErrorKind = KindOf(err)
	f.ErrorMessage = err.Error()
	f.Speed = ""
	f.ETA = ""
	f.UpdatedAt = time.Now()
}

// MarkCancelled marks the fetch as cancelled
func (f *Fetch) MarkCancelled() {
	f.Status = StatusCancelled
	f.ErrorKind = KindCancelled
	f.Speed = ""
	f.ETA = ""
	f.UpdatedAt = time.Now()
}

// ResetForRetry puts a failed or cancelled fetch back into the queue
func (f *Fetch) ResetForRetry() {
	f.Status = StatusQueued
	f.RetryCount++
	f.Progress = 0
	f.ErrorKind = ""
	f.ErrorMessage = ""
	f.FilePath = ""
	f.SizeBytes = 0
	f.StartedAt = nil
	f.CompletedAt = nil
	f.UpdatedAt = time.Now()
}

// Requeue returns an interrupted fetch to the queue without counting a retry
func (f *Fetch) Requeue() {
	f.Status = StatusQueued
	f.Progress = 0
	f.Speed = ""
	f.ETA = ""
	f.StartedAt = nil
	f.UpdatedAt = time.Now()
}

// CanRetry checks if the caller may requeue the fetch
func (f *Fetch) CanRetry() bool {
	return f.Status == StatusFailed || f.Status == StatusCancelled
}

// IsTerminal checks if the fetch is in a terminal state
func (f *Fetch) IsTerminal() bool {
	return f.Status == StatusCompleted || f.Status == StatusFailed || f.Status == StatusCancelled
}

// IsPending checks if the fetch is waiting in the queue
func (f *Fetch) IsPending() bool {
	return f.Status == StatusQueued
}

// IsProcessing checks if the fetch is currently running
func (f *Fetch) IsProcessing() bool {
	return f.Status == StatusProcessing
}

// ValidateStatus checks if a status filter value is known
func ValidateStatus(status FetchStatus) bool {
	switch status {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
