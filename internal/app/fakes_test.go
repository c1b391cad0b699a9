package app

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/yourusername/clipfetch/internal/domain"
)

// fakeResolver stands in for yt-dlp. The download func writes into the
// request's output directory and drives the hook like the real process.
type fakeResolver struct {
	mu       sync.Mutex
	requests []domain.ResolveRequest
	download func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error)
	probe    func(ctx context.Context, url string) (*domain.MediaInfo, error)
}

func (f *fakeResolver) Download(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.download(ctx, req, hook)
}

func (f *fakeResolver) Probe(ctx context.Context, url string) (*domain.MediaInfo, error) {
	return f.probe(ctx, url)
}

func (f *fakeResolver) lastRequest() domain.ResolveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// writingResolver reports two progress steps and writes name with content
func writingResolver(title, name, content string) *fakeResolver {
	return &fakeResolver{
		download: func(ctx context.Context, req domain.ResolveRequest, hook domain.ResolverHook) (*domain.ResolvedMedia, error) {
			path := filepath.Join(req.OutputDir, name)
			total := int64(len(content))
			hook(domain.ResolverProgress{Status: domain.ResolverDownloading, DownloadedBytes: total / 2, TotalBytes: total, Speed: "1.0KiB/s", ETA: "00:01", Filename: path})
			hook(domain.ResolverProgress{Status: domain.ResolverFinished, DownloadedBytes: total, TotalBytes: total, Filename: path})
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return nil, err
			}
			return &domain.ResolvedMedia{ID: "ABC123", Title: title, Path: path}, nil
		},
	}
}

// eventRecorder is a ProgressSink safe for use from several goroutines
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (r *eventRecorder) sink(e domain.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) phases() []domain.ProgressPhase {
	r.mu.Lock()
	defer r.mu.Unlock()
	phases := make([]domain.ProgressPhase, len(r.events))
	for i, e := range r.events {
		phases[i] = e.Phase
	}
	return phases
}

func (r *eventRecorder) last() domain.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func dirEntries(dir string) []string {
	entries, _ := os.ReadDir(dir)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// memRepo implements domain.FetchRepository in memory
type memRepo struct {
	mu      sync.Mutex
	fetches []*domain.Fetch
}

func newMemRepo() *memRepo {
	return &memRepo{}
}

func (m *memRepo) Create(fetch *domain.Fetch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *fetch
	m.fetches = append(m.fetches, &cp)
	return nil
}

func (m *memRepo) Update(fetch *domain.Fetch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.fetches {
		if f.ID == fetch.ID {
			cp := *fetch
			m.fetches[i] = &cp
			return nil
		}
	}
	return domain.ErrFetchNotFound
}

func (m *memRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.fetches {
		if f.ID == id {
			m.fetches = append(m.fetches[:i], m.fetches[i+1:]...)
			return nil
		}
	}
	return domain.ErrFetchNotFound
}

func (m *memRepo) FindByID(id string) (*domain.Fetch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.fetches {
		if f.ID == id {
			cp := *f
			return &cp, nil
		}
	}
	return nil, domain.ErrFetchNotFound
}

func (m *memRepo) FindByStatus(status domain.FetchStatus) ([]*domain.Fetch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Fetch
	for _, f := range m.fetches {
		if f.Status == status {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) FindPending() ([]*domain.Fetch, error) {
	return m.FindByStatus(domain.StatusQueued)
}

func (m *memRepo) FindByURL(url string, statuses []domain.FetchStatus) (*domain.Fetch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.fetches) - 1; i >= 0; i-- {
		f := m.fetches[i]
		if f.URL != url {
			continue
		}
		for _, s := range statuses {
			if f.Status == s {
				cp := *f
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (m *memRepo) FindAll(filters map[string]interface{}) ([]*domain.Fetch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Fetch
	for i := len(m.fetches) - 1; i >= 0; i-- {
		f := m.fetches[i]
		if status, ok := filters["status"]; ok && f.Status != status {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepo) ResetOrphanedProcessing() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, f := range m.fetches {
		if f.Status == domain.StatusProcessing {
			f.Requeue()
			n++
		}
	}
	return n, nil
}

func (m *memRepo) GetStats() (*domain.FetchStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.FetchStats{Total: int64(len(m.fetches))}
	for _, f := range m.fetches {
		switch f.Status {
		case domain.StatusQueued:
			stats.Queued++
		case domain.StatusProcessing:
			stats.Processing++
		case domain.StatusCompleted:
			stats.Completed++
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

func (m *memRepo) status(id string) domain.FetchStatus {
	f, err := m.FindByID(id)
	if err != nil {
		return ""
	}
	return f.Status
}
