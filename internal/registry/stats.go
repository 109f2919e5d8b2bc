package registry

import (
	"context"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"gorm.io/gorm"
)

// StatsAggregator counts scans and reports that reference a set of batches.
// It is the single place manufacturer stats touch scan and report rows, so a
// materialized counter can replace the scan without changing callers.
type StatsAggregator interface {
	CountScans(ctx context.Context, batchIDs map[int64]struct{}) (int64, error)
	CountReports(ctx context.Context, batchIDs map[int64]struct{}) (int64, error)
}

// ScanningAggregator streams the batch reference of every scan and report row
// and filters by membership
type ScanningAggregator struct {
	db *gorm.DB
}

func NewScanningAggregator(db *gorm.DB) *ScanningAggregator {
	return &ScanningAggregator{db: db}
}

func (a *ScanningAggregator) count(ctx context.Context, model interface{}, batchIDs map[int64]struct{}) (int64, error) {
	rows, err := a.db.WithContext(ctx).
		Model(model).
		Select("batch_id").
		Where("batch_id IS NOT NULL").
		Rows()
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var total int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		if _, ok := batchIDs[id]; ok {
			total++
		}
	}
	return total, rows.Err()
}

func (a *ScanningAggregator) CountScans(ctx context.Context, batchIDs map[int64]struct{}) (int64, error) {
	return a.count(ctx, &domain.ScanRecord{}, batchIDs)
}

func (a *ScanningAggregator) CountReports(ctx context.Context, batchIDs map[int64]struct{}) (int64, error) {
	return a.count(ctx, &domain.Report{}, batchIDs)
}
