package registry

import (
	"context"
	"time"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultScanLimit = 50
	UnknownMedicine  = "Unknown Medicine"
)

// ManualScan a scan submitted directly rather than through the verification engine
type ManualScan struct {
	BatchID    int64
	UnitID     *int64
	Result     string
	Location   string
	DeviceInfo string
	IPAddress  string
}

// RecordScan appends one scan record, rows are never updated afterwards
func (s *Store) RecordScan(ctx context.Context, rec *domain.ScanRecord) error {
	if rec.ID == 0 {
		rec.ID = common.UUIDint64()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.Wrap(err, "record scan")
	}
	zap.L().Debug("scan recorded", zap.String("namespace", "registry"),
		zap.Int64("batch_id", rec.BatchID), zap.String("token_id", rec.TokenID), zap.String("result", rec.Result))
	return nil
}

// RecordManualScan stores a scan against an existing batch; the user is taken from the actor
func (s *Store) RecordManualScan(ctx context.Context, actor domain.Actor, in ManualScan) (*domain.ScanRecord, error) {
	if in.Result != domain.ScanGenuine && in.Result != domain.ScanCounterfeit {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "unknown scan result %q", in.Result)
	}
	batch, err := s.GetBatch(ctx, in.BatchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	rec := &domain.ScanRecord{
		BatchID:         batch.ID,
		UnitID:          in.UnitID,
		TokenID:         batch.TokenID,
		ContractAddress: batch.ContractAddress,
		UserID:          actor.UserRef(),
		Result:          in.Result,
		Location:        in.Location,
		DeviceInfo:      in.DeviceInfo,
		IPAddress:       in.IPAddress,
	}
	if in.UnitID != nil {
		var unit domain.Unit
		err := s.db.WithContext(ctx).Where("id = ? AND batch_id = ?", *in.UnitID, batch.ID).First(&unit).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(domain.ErrNotFound, "unit")
		}
		if err != nil {
			return nil, err
		}
		rec.TokenID = unit.TokenID
	}
	if err := s.RecordScan(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// batchIndex loads the referenced batches in one query
func (s *Store) batchIndex(ctx context.Context, ids []int64) (map[int64]*domain.Batch, error) {
	index := make(map[int64]*domain.Batch, len(ids))
	if len(ids) == 0 {
		return index, nil
	}
	var batches []domain.Batch
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&batches).Error; err != nil {
		return nil, err
	}
	for i := range batches {
		index[batches[i].ID] = &batches[i]
	}
	return index, nil
}

// ListUserScans the caller's scans, newest first. Scans of deleted batches show as Unknown Medicine.
func (s *Store) ListUserScans(ctx context.Context, actor domain.Actor, limit int) ([]domain.ScanView, error) {
	views := make([]domain.ScanView, 0)
	if !actor.Authenticated() {
		return views, nil
	}
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	var recs []domain.ScanRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", actor.UserID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		if r.BatchID != 0 {
			ids = append(ids, r.BatchID)
		}
	}
	index, err := s.batchIndex(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		view := domain.ScanView{ScanRecord: r, MedicineName: UnknownMedicine}
		if b, ok := index[r.BatchID]; ok {
			view.Batch = b
			view.MedicineName = b.MedicineName
		}
		views = append(views, view)
	}
	return views, nil
}

// BatchScanStats counts scans of one batch by result
func (s *Store) BatchScanStats(ctx context.Context, batchID int64) (*domain.ScanStats, error) {
	type row struct {
		Result string
		Total  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&domain.ScanRecord{}).
		Select("result, count(*) as total").
		Where("batch_id = ?", batchID).
		Group("result").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := &domain.ScanStats{}
	for _, r := range rows {
		stats.TotalScans += r.Total
		switch r.Result {
		case domain.ScanGenuine:
			stats.GenuineScans = r.Total
		case domain.ScanCounterfeit:
			stats.CounterfeitScans = r.Total
		}
	}
	return stats, nil
}

// ListManufacturerScans every scan over the caller's batches, newest first
func (s *Store) ListManufacturerScans(ctx context.Context, actor domain.Actor) ([]domain.ScanRecord, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	recs := make([]domain.ScanRecord, 0)
	sub := s.db.Model(&domain.Batch{}).Select("id").Where("manufacturer_id = ?", actor.UserID)
	err := s.db.WithContext(ctx).
		Where("batch_id IN (?)", sub).
		Order("created_at DESC, id DESC").
		Find(&recs).Error
	return recs, err
}
