package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/clipfetch/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// filterColumns are the fields FindAll accepts as filters
var filterColumns = map[string]bool{
	"status":     true,
	"delivery":   true,
	"quality":    true,
	"url":        true,
	"slot":       true,
	"error_kind": true,
}

// SQLiteFetchRepository implements FetchRepository using SQLite
type SQLiteFetchRepository struct {
	db *gorm.DB
}

// NewSQLiteFetchRepository creates a new SQLite repository
func NewSQLiteFetchRepository(dbPath string) (*SQLiteFetchRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Fetch{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteFetchRepository{db: db}, nil
}

// Create creates a new fetch
func (r *SQLiteFetchRepository) Create(fetch *domain.Fetch) error {
	return r.db.Create(fetch).Error
}

// Update updates an existing fetch
func (r *SQLiteFetchRepository) Update(fetch *domain.Fetch) error {
	return r.db.Save(fetch).Error
}

// Delete deletes a fetch by ID
func (r *SQLiteFetchRepository) Delete(id string) error {
	result := r.db.Delete(&domain.Fetch{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrFetchNotFound
	}
	return nil
}

// FindByID finds a fetch by ID
func (r *SQLiteFetchRepository) FindByID(id string) (*domain.Fetch, error) {
	var fetch domain.Fetch
	err := r.db.First(&fetch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrFetchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fetch, nil
}

// FindByStatus finds fetches by status
func (r *SQLiteFetchRepository) FindByStatus(status domain.FetchStatus) ([]*domain.Fetch, error) {
	var fetches []*domain.Fetch
	err := r.db.Where("status = ?", status).Order("created_at ASC").Find(&fetches).Error
	return fetches, err
}

// FindPending finds all queued fetches, oldest first
func (r *SQLiteFetchRepository) FindPending() ([]*domain.Fetch, error) {
	return r.FindByStatus(domain.StatusQueued)
}

// FindByURL finds the most recent fetch of a URL in any of the given statuses
func (r *SQLiteFetchRepository) FindByURL(url string, statuses []domain.FetchStatus) (*domain.Fetch, error) {
	var fetch domain.Fetch
	err := r.db.Where("url = ? AND status IN ?", url, statuses).
		Order("created_at DESC").
		First(&fetch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fetch, nil
}

// FindAll finds all fetches, newest first, with optional filters
func (r *SQLiteFetchRepository) FindAll(filters map[string]interface{}) ([]*domain.Fetch, error) {
	var fetches []*domain.Fetch
	query := r.db

	for key, value := range filters {
		if !filterColumns[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("created_at DESC").Find(&fetches).Error
	return fetches, err
}

// ResetOrphanedProcessing requeues fetches a previous process left running
func (r *SQLiteFetchRepository) ResetOrphanedProcessing() (int64, error) {
	result := r.db.Model(&domain.Fetch{}).
		Where("status = ?", domain.StatusProcessing).
		Updates(map[string]interface{}{
			"status":     domain.StatusQueued,
			"progress":   0,
			"speed":      "",
			"eta":        "",
			"started_at": nil,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// GetStats returns fetch statistics
func (r *SQLiteFetchRepository) GetStats() (*domain.FetchStats, error) {
	stats := &domain.FetchStats{}

	statusCounts := []struct {
		Status domain.FetchStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.Fetch{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		stats.Total += sc.Count
		switch sc.Status {
		case domain.StatusQueued:
			stats.Queued = sc.Count
		case domain.StatusProcessing:
			stats.Processing = sc.Count
		case domain.StatusCompleted:
			stats.Completed = sc.Count
		case domain.StatusFailed:
			stats.Failed = sc.Count
		case domain.StatusCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteFetchRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
