package reporting

import (
	"context"
	"strings"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/events"
	"github.com/dhanvantari/pharmaauth/internal/registry"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PublicLimit number of reports exposed on the public feed
const PublicLimit = 20

// SubmitInput a suspicion report. Every field except Reason is optional.
type SubmitInput struct {
	BatchID      *int64
	QRPayload    string
	MedicineName string
	BatchNumber  string
	Reason       string
	Description  string
	Location     string
}

// Service accepts and triages counterfeit reports
type Service struct {
	store *registry.Store
	bus   events.Publisher
}

func NewService(store *registry.Store, bus events.Publisher) *Service {
	if bus == nil {
		bus = events.Discard{}
	}
	return &Service{store: store, bus: bus}
}

// Submit stores a pending report. Anonymous reporters are allowed, and a batch is
// attached only when the QR payload or the given id resolves to one.
func (s *Service) Submit(ctx context.Context, actor domain.Actor, in SubmitInput) (*domain.Report, error) {
	reason := strings.ToLower(strings.TrimSpace(in.Reason))
	if !common.InSlice(reason, domain.ReportReasons) {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "unknown report reason %q", in.Reason)
	}
	report := &domain.Report{
		BatchID:      in.BatchID,
		QRPayload:    strings.TrimSpace(in.QRPayload),
		MedicineName: strings.TrimSpace(in.MedicineName),
		BatchNumber:  strings.TrimSpace(in.BatchNumber),
		Reason:       reason,
		Description:  strings.TrimSpace(in.Description),
		Location:     strings.TrimSpace(in.Location),
		ReporterID:   actor.UserRef(),
		Status:       domain.ReportPending,
	}
	if err := s.store.ResolveReportBatch(ctx, report); err != nil {
		zap.L().Warn("report batch resolution failed", zap.String("namespace", "report"), zap.Error(err))
	}
	if err := s.store.CreateReport(ctx, report); err != nil {
		return nil, err
	}
	zap.L().Info("report submitted", zap.String("namespace", "report"),
		zap.Int64("report_id", report.ID), zap.String("reason", report.Reason), zap.Bool("anonymous", report.ReporterID == nil))
	s.bus.Publish(events.TopicReportSubmitted, events.ReportEvent{ReportID: report.ID, BatchID: report.BatchID, Status: report.Status})
	return report, nil
}

// ListPublic the newest reports without reporter or reviewer fields
func (s *Service) ListPublic(ctx context.Context) ([]domain.PublicReport, error) {
	reports, err := s.store.ListRecentReports(ctx, PublicLimit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PublicReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, domain.PublicReport{
			ID:           r.ID,
			CreatedAt:    r.CreatedAt,
			MedicineName: common.IfEmptyStr(r.MedicineName, registry.UnknownMedicine),
			BatchNumber:  r.BatchNumber,
			Reason:       r.Reason,
			Location:     r.Location,
			Status:       r.Status,
			Description:  r.Description,
		})
	}
	return out, nil
}

// ListForManufacturer reports matched to the caller's batches
func (s *Service) ListForManufacturer(ctx context.Context, actor domain.Actor) ([]domain.ManufacturerReport, error) {
	return s.store.ListReportsForManufacturer(ctx, actor)
}

// CanTransition only a pending report moves, and only to resolved or dismissed
func CanTransition(from, to string) bool {
	return from == domain.ReportPending && (to == domain.ReportResolved || to == domain.ReportDismissed)
}

// UpdateStatus resolves or dismisses a report on behalf of the manufacturer that
// owns the matched batch
func (s *Service) UpdateStatus(ctx context.Context, actor domain.Actor, reportID int64, status, notes string) (*domain.Report, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status != domain.ReportResolved && status != domain.ReportDismissed {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "status %q", status)
	}
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, domain.ErrNotFound
	}

	batches, err := s.store.ManufacturerBatches(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if _, _, ok := registry.MatchReport(report, batches); !ok {
		return nil, domain.ErrUnauthorized
	}
	if !CanTransition(report.Status, status) {
		return nil, errors.Wrapf(domain.ErrInvalidTransition, "%s -> %s", report.Status, status)
	}

	notes = strings.TrimSpace(notes)
	if err := s.store.UpdateReportReview(ctx, report.ID, report.Status, status, actor.UserID, notes); err != nil {
		return nil, err
	}
	report.Status = status
	report.ReviewedBy = actor.UserRef()
	report.ReviewNotes = notes

	zap.L().Info("report status changed", zap.String("namespace", "report"),
		zap.Int64("report_id", report.ID), zap.String("status", status), zap.Int64("reviewer", actor.UserID))
	s.bus.Publish(events.TopicReportStatus, events.ReportEvent{ReportID: report.ID, BatchID: report.BatchID, Status: status})
	return report, nil
}
