package registry

import (
	"context"
	"strings"
	"time"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/pkg/errors"
)

// Report match tiers, in precedence order
const (
	MatchedByBatchID      = "batch_id"
	MatchedByBatchNumber  = "batch_number"
	MatchedByMedicineName = "medicine_name"
)

// CreateReport appends a report
func (s *Store) CreateReport(ctx context.Context, report *domain.Report) error {
	if report.ID == 0 {
		report.ID = common.UUIDint64()
	}
	now := time.Now()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now
	return s.db.WithContext(ctx).Create(report).Error
}

// GetReport returns nil when the report does not exist
func (s *Store) GetReport(ctx context.Context, id int64) (*domain.Report, error) {
	var report domain.Report
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&report).Error
	return notFoundAsNil(&report, err)
}

// ListRecentReports newest reports first
func (s *Store) ListRecentReports(ctx context.Context, limit int) ([]domain.Report, error) {
	reports := make([]domain.Report, 0)
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&reports).Error
	return reports, err
}

// UpdateReportReview moves a report from one status to another. The update only
// applies while the row still has the expected status, a concurrent change yields
// ErrInvalidTransition.
func (s *Store) UpdateReportReview(ctx context.Context, id int64, from, to string, reviewer int64, notes string) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Report{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":       to,
			"reviewed_by":  reviewer,
			"review_notes": notes,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(domain.ErrInvalidTransition, "report %d is no longer %s", id, from)
	}
	return nil
}

// MatchReport decides whether a report belongs to a manufacturer with the given
// batches: by batch reference, then exact batch number, then case-insensitive
// medicine name. For the free-text tiers the first matching batch in the list wins.
func MatchReport(report *domain.Report, batches []domain.Batch) (*domain.Batch, string, bool) {
	if report.BatchID != nil {
		for i := range batches {
			if batches[i].ID == *report.BatchID {
				return &batches[i], MatchedByBatchID, true
			}
		}
	}
	if report.BatchNumber != "" {
		for i := range batches {
			if batches[i].BatchNumber == report.BatchNumber {
				return &batches[i], MatchedByBatchNumber, true
			}
		}
	}
	if name := strings.TrimSpace(report.MedicineName); name != "" {
		for i := range batches {
			if strings.EqualFold(strings.TrimSpace(batches[i].MedicineName), name) {
				return &batches[i], MatchedByMedicineName, true
			}
		}
	}
	return nil, "", false
}

// MatchReports keeps the reports that belong to the batches, in input order
func MatchReports(reports []domain.Report, batches []domain.Batch) []domain.ManufacturerReport {
	out := make([]domain.ManufacturerReport, 0)
	for i := range reports {
		if b, by, ok := MatchReport(&reports[i], batches); ok {
			out = append(out, domain.ManufacturerReport{Report: reports[i], MatchedBy: by, Batch: b})
		}
	}
	return out
}

// ListReportsForManufacturer reports matched to any of the caller's batches, newest first.
// Anonymous callers get an empty list.
func (s *Store) ListReportsForManufacturer(ctx context.Context, actor domain.Actor) ([]domain.ManufacturerReport, error) {
	if !actor.Authenticated() {
		return make([]domain.ManufacturerReport, 0), nil
	}
	batches, err := s.ManufacturerBatches(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return make([]domain.ManufacturerReport, 0), nil
	}
	var reports []domain.Report
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&reports).Error; err != nil {
		return nil, err
	}
	return MatchReports(reports, batches), nil
}

// ResolveReportBatch fills in the batch reference and display fields of a report
// from its QR payload when the payload identifies a registered batch.
func (s *Store) ResolveReportBatch(ctx context.Context, report *domain.Report) error {
	if report.BatchID != nil {
		batch, err := s.GetBatch(ctx, *report.BatchID)
		if err != nil {
			return err
		}
		if batch != nil {
			report.MedicineName = common.IfEmptyStr(report.MedicineName, batch.MedicineName)
			report.BatchNumber = common.IfEmptyStr(report.BatchNumber, batch.BatchNumber)
		}
		return nil
	}
	if report.QRPayload == "" {
		return nil
	}
	view, err := s.GetByQRPayload(ctx, report.QRPayload)
	if err != nil || view == nil {
		return err
	}
	id := view.ID
	report.BatchID = &id
	report.MedicineName = common.IfEmptyStr(report.MedicineName, view.MedicineName)
	report.BatchNumber = common.IfEmptyStr(report.BatchNumber, view.BatchNumber)
	return nil
}
