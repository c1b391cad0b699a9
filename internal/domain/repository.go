package domain

// FetchRepository defines the interface for fetch job persistence
type FetchRepository interface {
	// Create creates a new fetch
	Create(fetch *Fetch) error

	// Update updates an existing fetch
	Update(fetch *Fetch) error

	// Delete deletes a fetch by ID
	Delete(id string) error

	// FindByID finds a fetch by ID, returning ErrFetchNotFound when absent
	FindByID(id string) (*Fetch, error)

	// FindByStatus finds fetches by status
	FindByStatus(status FetchStatus) ([]*Fetch, error)

	// FindPending finds all queued fetches ordered by creation time
	FindPending() ([]*Fetch, error)

	// FindByURL finds the most recent fetch of a normalized URL in any of the
	// given statuses, returning nil when none matches
	FindByURL(url string, statuses []FetchStatus) (*Fetch, error)

	// FindAll finds all fetches with optional filters
	FindAll(filters map[string]interface{}) ([]*Fetch, error)

	// ResetOrphanedProcessing requeues fetches left processing by a previous run
	ResetOrphanedProcessing() (int64, error)

	// GetStats returns fetch statistics
	GetStats() (*FetchStats, error)
}

// FetchStats represents fetch statistics
type FetchStats struct {
	Total      int64 `json:"total"`
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}
