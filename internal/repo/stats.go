// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides a small aggregate query used for
// conditional responses (ETag generation) on the incidents listing.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-errorcatcher/internal/domain"
)

// IncidentsStats returns the number of stored incidents and the most recent
// CreatedAt among them. When the table is empty, count is 0 and latest is nil.
func IncidentsStats(ctx context.Context, db *gorm.DB) (count int64, latest *time.Time, err error) {
	if err = db.WithContext(ctx).Model(&domain.Incident{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() which comes back as TEXT in SQLite.
	var row struct {
		CreatedAt time.Time
	}
	q := db.WithContext(ctx).Model(&domain.Incident{})
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
