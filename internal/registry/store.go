package registry

import (
	"context"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/identity"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListLimit caps listByManufacturer
const ListLimit = 100

// BatchInput fields the manufacturer supplies when registering a minted batch
type BatchInput struct {
	TokenID           string
	MedicineName      string
	ManufacturerName  string
	BatchNumber       string
	MedicineType      string
	ManufacturingDate string
	ExpiryDate        string
	MRP               decimal.Decimal
	Quantity          int
	QRPayload         string
	TransactionHash   string
	ContractAddress   string
}

// Store the off-chain registry of batches, units, scans and reports
type Store struct {
	db    *gorm.DB
	stats StatsAggregator
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, stats: NewScanningAggregator(db)}
}

// WithStatsAggregator swaps the aggregation step used by ComputeManufacturerStats
func (s *Store) WithStatsAggregator(agg StatsAggregator) *Store {
	s.stats = agg
	return s
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (in *BatchInput) normalize() error {
	in.TokenID = strings.TrimSpace(in.TokenID)
	in.MedicineName = strings.TrimSpace(in.MedicineName)
	in.BatchNumber = strings.TrimSpace(in.BatchNumber)
	in.MedicineType = strings.ToLower(strings.TrimSpace(in.MedicineType))

	if err := identity.ValidateBatchTokenID(in.TokenID); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	if in.MedicineName == "" {
		return errors.Wrap(domain.ErrInvalidInput, "medicine name is required")
	}
	if in.BatchNumber == "" {
		return errors.Wrap(domain.ErrInvalidInput, "batch number is required")
	}
	if !common.InSlice(in.MedicineType, domain.MedicineTypes) {
		return errors.Wrapf(domain.ErrInvalidInput, "unknown medicine type %q", in.MedicineType)
	}
	if in.MRP.IsNegative() {
		return errors.Wrap(domain.ErrInvalidInput, "mrp must not be negative")
	}
	if in.Quantity < 1 {
		return errors.Wrap(domain.ErrInvalidInput, "quantity must be at least 1")
	}
	addr, err := identity.ValidateAddress(in.ContractAddress)
	if err != nil {
		return err
	}
	in.ContractAddress = addr

	var mfg, exp time.Time
	if in.ManufacturingDate != "" {
		if mfg, err = dateparse.ParseAny(in.ManufacturingDate); err != nil {
			return errors.Wrapf(domain.ErrInvalidInput, "manufacturing date %q", in.ManufacturingDate)
		}
	}
	if in.ExpiryDate != "" {
		if exp, err = dateparse.ParseAny(in.ExpiryDate); err != nil {
			return errors.Wrapf(domain.ErrInvalidInput, "expiry date %q", in.ExpiryDate)
		}
	}
	if !mfg.IsZero() && !exp.IsZero() && exp.Before(mfg) {
		return errors.Wrap(domain.ErrInvalidInput, "expiry date is before manufacturing date")
	}
	return nil
}

// BuildUnits generates min(quantity, 100) units with dense serials starting at 1
func BuildUnits(batch *domain.Batch) []domain.Unit {
	n := batch.Quantity
	if n > domain.MaxUnitsPerBatch {
		n = domain.MaxUnitsPerBatch
	}
	if n < 0 {
		n = 0
	}
	units := make([]domain.Unit, 0, n)
	for serial := 1; serial <= n; serial++ {
		tokenID := identity.DeriveUnitID(batch.TokenID, serial)
		units = append(units, domain.Unit{
			ID:           common.UUIDint64(),
			BatchID:      batch.ID,
			TokenID:      tokenID,
			SerialNumber: serial,
			QRPayload:    identity.EncodeUnitQR(tokenID, batch.BatchNumber, batch.ContractAddress, serial),
			IsVerified:   true,
			Status:       domain.UnitMinted,
			CreatedAt:    batch.CreatedAt,
		})
	}
	return units
}

// CreateBatch inserts the batch and all of its units in one transaction
func (s *Store) CreateBatch(ctx context.Context, actor domain.Actor, in BatchInput) (*domain.Batch, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	batch := &domain.Batch{
		ID:                common.UUIDint64(),
		TokenID:           in.TokenID,
		MedicineName:      in.MedicineName,
		ManufacturerID:    actor.UserID,
		ManufacturerName:  common.IfEmptyStr(strings.TrimSpace(in.ManufacturerName), actor.Name),
		BatchNumber:       in.BatchNumber,
		MedicineType:      in.MedicineType,
		ManufacturingDate: in.ManufacturingDate,
		ExpiryDate:        in.ExpiryDate,
		MRP:               in.MRP.Round(2),
		Quantity:          in.Quantity,
		QRPayload:         in.QRPayload,
		TransactionHash:   strings.TrimSpace(in.TransactionHash),
		ContractAddress:   in.ContractAddress,
		IsActive:          true,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if batch.QRPayload == "" {
		batch.QRPayload = identity.EncodeBatchQR(batch.TokenID, batch.BatchNumber, batch.MedicineName)
	}
	units := BuildUnits(batch)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Batch{}).Where("token_id = ?", batch.TokenID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errors.Wrapf(domain.ErrConflict, "token id %s", batch.TokenID)
		}
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		if len(units) > 0 {
			return tx.CreateInBatches(units, domain.MaxUnitsPerBatch).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("batch registered", zap.String("namespace", "registry"),
		zap.Int64("batch_id", batch.ID), zap.String("token_id", batch.TokenID),
		zap.Int("units", len(units)), zap.Int64("manufacturer_id", actor.UserID))
	return batch, nil
}

func notFoundAsNil[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// GetBatch returns nil when the batch does not exist
func (s *Store) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	var batch domain.Batch
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	return notFoundAsNil(&batch, err)
}

// GetBatchByTokenID returns nil when no batch carries the token id
func (s *Store) GetBatchByTokenID(ctx context.Context, tokenID string) (*domain.Batch, error) {
	var batch domain.Batch
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&batch).Error
	return notFoundAsNil(&batch, err)
}

// GetUnitByTokenID returns nil when no unit carries the token id
func (s *Store) GetUnitByTokenID(ctx context.Context, tokenID string) (*domain.Unit, error) {
	var unit domain.Unit
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&unit).Error
	return notFoundAsNil(&unit, err)
}

// GetUnitWithBatch resolves a unit token id to its parent batch with the unit attached.
// A unit whose batch was deleted resolves to nil.
func (s *Store) GetUnitWithBatch(ctx context.Context, unitTokenID string) (*domain.BatchView, error) {
	unit, err := s.GetUnitByTokenID(ctx, unitTokenID)
	if err != nil || unit == nil {
		return nil, err
	}
	batch, err := s.GetBatch(ctx, unit.BatchID)
	if err != nil || batch == nil {
		return nil, err
	}
	return &domain.BatchView{Batch: *batch, Unit: unit}, nil
}

// GetByQRPayload checks batch payloads first, then unit payloads
func (s *Store) GetByQRPayload(ctx context.Context, payload string) (*domain.BatchView, error) {
	if payload == "" {
		return nil, nil
	}
	var batch domain.Batch
	err := s.db.WithContext(ctx).Where("qr_payload = ?", payload).First(&batch).Error
	if err == nil {
		return &domain.BatchView{Batch: batch}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var unit domain.Unit
	err = s.db.WithContext(ctx).Where("qr_payload = ?", payload).First(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	parent, err := s.GetBatch(ctx, unit.BatchID)
	if err != nil || parent == nil {
		return nil, err
	}
	return &domain.BatchView{Batch: *parent, Unit: &unit}, nil
}

// ListByManufacturer returns the caller's newest batches; anonymous callers get an empty list
func (s *Store) ListByManufacturer(ctx context.Context, actor domain.Actor) ([]domain.Batch, error) {
	batches := make([]domain.Batch, 0)
	if !actor.Authenticated() {
		return batches, nil
	}
	err := s.db.WithContext(ctx).
		Where("manufacturer_id = ?", actor.UserID).
		Order("created_at DESC, id DESC").
		Limit(ListLimit).
		Find(&batches).Error
	return batches, err
}

// ManufacturerBatches every batch of the manufacturer in creation order
func (s *Store) ManufacturerBatches(ctx context.Context, manufacturerID int64) ([]domain.Batch, error) {
	var batches []domain.Batch
	err := s.db.WithContext(ctx).
		Where("manufacturer_id = ?", manufacturerID).
		Order("created_at ASC, id ASC").
		Find(&batches).Error
	return batches, err
}

// ListByBatchNumber all batches sharing a printed batch number
func (s *Store) ListByBatchNumber(ctx context.Context, batchNumber string) ([]domain.Batch, error) {
	batches := make([]domain.Batch, 0)
	err := s.db.WithContext(ctx).
		Where("batch_number = ?", strings.TrimSpace(batchNumber)).
		Order("created_at DESC").
		Find(&batches).Error
	return batches, err
}

// ListUnits units of a batch ordered by serial
func (s *Store) ListUnits(ctx context.Context, batchID int64) ([]domain.Unit, error) {
	units := make([]domain.Unit, 0)
	err := s.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("serial_number ASC").
		Find(&units).Error
	return units, err
}

// ownedBatch loads a batch for mutation. Missing batches are ErrNotFound, foreign ones ErrUnauthorized.
func (s *Store) ownedBatch(ctx context.Context, actor domain.Actor, batchID int64) (*domain.Batch, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	if batch.ManufacturerID != actor.UserID {
		return nil, domain.ErrUnauthorized
	}
	return batch, nil
}

// ToggleActive sets the authenticity flag of an owned batch
func (s *Store) ToggleActive(ctx context.Context, actor domain.Actor, batchID int64, active bool) (*domain.Batch, error) {
	batch, err := s.ownedBatch(ctx, actor, batchID)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).
		Model(&domain.Batch{}).
		Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return nil, err
	}
	batch.IsActive = active
	zap.L().Info("batch status changed", zap.String("namespace", "registry"),
		zap.Int64("batch_id", batchID), zap.Bool("active", active))
	return batch, nil
}

// DeleteBatch removes the batch row only. Units, scans and reports keep their dangling reference.
func (s *Store) DeleteBatch(ctx context.Context, actor domain.Actor, batchID int64) error {
	if _, err := s.ownedBatch(ctx, actor, batchID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&domain.Batch{}, batchID).Error; err != nil {
		return err
	}
	zap.L().Info("batch deleted", zap.String("namespace", "registry"), zap.Int64("batch_id", batchID))
	return nil
}

// ComputeManufacturerStats batch counts plus scans and reports over the caller's batches
func (s *Store) ComputeManufacturerStats(ctx context.Context, actor domain.Actor) (*domain.ManufacturerStats, error) {
	if !actor.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	batches, err := s.ManufacturerBatches(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	stats := &domain.ManufacturerStats{TotalMedicines: int64(len(batches))}
	ids := make(map[int64]struct{}, len(batches))
	for _, b := range batches {
		ids[b.ID] = struct{}{}
		if b.IsActive {
			stats.ActiveMedicines++
		}
	}
	if len(ids) == 0 {
		return stats, nil
	}
	if stats.TotalScans, err = s.stats.CountScans(ctx, ids); err != nil {
		return nil, err
	}
	if stats.RecentReports, err = s.stats.CountReports(ctx, ids); err != nil {
		return nil, err
	}
	return stats, nil
}
