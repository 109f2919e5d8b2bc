package registry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/identity"
	"github.com/dhanvantari/pharmaauth/internal/testutil"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContract = "0x71C95911e9A5d330F4d621842eC243ee134329A2"

var (
	acme   = domain.Actor{UserID: 1001, Name: "Acme Pharma"}
	globex = domain.Actor{UserID: 2002, Name: "Globex Labs"}
)

func newStore(t *testing.T) *Store {
	return NewStore(testutil.NewTestDB(t))
}

func batchInput(tokenID string, quantity int) BatchInput {
	return BatchInput{
		TokenID:           tokenID,
		MedicineName:      "Paracetamol",
		BatchNumber:       "B-" + tokenID,
		MedicineType:      domain.MedicineTablet,
		ManufacturingDate: "2024-01-10",
		ExpiryDate:        "2026-01-10",
		MRP:               decimal.RequireFromString("12.50"),
		Quantity:          quantity,
		ContractAddress:   testContract,
	}
}

func mustCreate(t *testing.T, s *Store, actor domain.Actor, in BatchInput) *domain.Batch {
	t.Helper()
	b, err := s.CreateBatch(context.Background(), actor, in)
	require.NoError(t, err)
	return b
}

func TestCreateBatchUnitCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, q := range []int{1, 3, 99, 100, 101, 250} {
		b := mustCreate(t, s, acme, batchInput(fmt.Sprintf("NFT-Q%dX", q), q))
		units, err := s.ListUnits(ctx, b.ID)
		require.NoError(t, err)

		want := q
		if want > domain.MaxUnitsPerBatch {
			want = domain.MaxUnitsPerBatch
		}
		require.Len(t, units, want, "quantity %d", q)
		for i, u := range units {
			assert.Equal(t, i+1, u.SerialNumber)
			assert.Equal(t, identity.DeriveUnitID(b.TokenID, i+1), u.TokenID)
			assert.Equal(t, identity.EncodeUnitQR(u.TokenID, b.BatchNumber, b.ContractAddress, i+1), u.QRPayload)
			assert.Equal(t, domain.UnitMinted, u.Status)
		}
	}
}

func TestCreateBatchMintsUnits(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := mustCreate(t, s, acme, batchInput("NFT-AAA", 3))
	assert.True(t, b.IsActive)
	assert.Equal(t, acme.UserID, b.ManufacturerID)
	assert.Equal(t, acme.Name, b.ManufacturerName)
	assert.Equal(t, identity.EncodeBatchQR("NFT-AAA", "B-NFT-AAA", "Paracetamol"), b.QRPayload)

	for _, id := range []string{"NFT-AAA-1", "NFT-AAA-2", "NFT-AAA-3"} {
		view, err := s.GetUnitWithBatch(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, view, id)
		assert.Equal(t, b.ID, view.Batch.ID)
	}
	missing, err := s.GetUnitByTokenID(ctx, "NFT-AAA-4")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateBatchValidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.CreateBatch(ctx, domain.Actor{}, batchInput("NFT-AAA", 1))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = s.CreateBatch(ctx, acme, batchInput("NFT-AAA-12", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in := batchInput("NFT-BBB", 0)
	_, err = s.CreateBatch(ctx, acme, in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in = batchInput("NFT-BBB", 1)
	in.MedicineType = "powder"
	_, err = s.CreateBatch(ctx, acme, in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in = batchInput("NFT-BBB", 1)
	in.MRP = decimal.NewFromInt(-1)
	_, err = s.CreateBatch(ctx, acme, in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in = batchInput("NFT-BBB", 1)
	in.ExpiryDate = "2020-01-01"
	_, err = s.CreateBatch(ctx, acme, in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in = batchInput("NFT-BBB", 1)
	in.ContractAddress = "0x1234...abcd"
	_, err = s.CreateBatch(ctx, acme, in)
	var aerr *identity.AddressError
	assert.ErrorAs(t, err, &aerr)
}

func TestCreateBatchDuplicateTokenID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	mustCreate(t, s, acme, batchInput("NFT-AAA", 2))
	_, err := s.CreateBatch(ctx, globex, batchInput("NFT-AAA", 2))
	assert.ErrorIs(t, err, domain.ErrConflict)

	var units int64
	require.NoError(t, s.DB().Model(&domain.Unit{}).Count(&units).Error)
	assert.Equal(t, int64(2), units)
}

func TestCreateBatchRollsBackOnUnitFailure(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	taken := domain.Unit{
		ID:           common.UUIDint64(),
		TokenID:      "NFT-XYZ-2",
		SerialNumber: 2,
		Status:       domain.UnitMinted,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, s.DB().Create(&taken).Error)

	_, err := s.CreateBatch(ctx, acme, batchInput("NFT-XYZ", 3))
	require.Error(t, err)

	var batches, units int64
	require.NoError(t, s.DB().Model(&domain.Batch{}).Count(&batches).Error)
	require.NoError(t, s.DB().Model(&domain.Unit{}).Count(&units).Error)
	assert.Equal(t, int64(0), batches)
	assert.Equal(t, int64(1), units)

	got, err := s.GetBatchByTokenID(ctx, "NFT-XYZ")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLookupsReturnNilOnMiss(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b, err := s.GetBatchByTokenID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, b)
	v, err := s.GetByQRPayload(ctx, `{"id":"nope"}`)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestGetByQRPayload(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := mustCreate(t, s, acme, batchInput("NFT-AAA", 2))

	view, err := s.GetByQRPayload(ctx, b.QRPayload)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Nil(t, view.Unit)

	unitQR := identity.EncodeUnitQR("NFT-AAA-2", b.BatchNumber, b.ContractAddress, 2)
	view, err = s.GetByQRPayload(ctx, unitQR)
	require.NoError(t, err)
	require.NotNil(t, view)
	require.NotNil(t, view.Unit)
	assert.Equal(t, 2, view.Unit.SerialNumber)
	assert.Equal(t, b.ID, view.ID)
}

func TestGetByQRPayloadBatchWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	first := mustCreate(t, s, acme, batchInput("NFT-AAA", 1))
	units, err := s.ListUnits(ctx, first.ID)
	require.NoError(t, err)

	in := batchInput("NFT-CCC", 1)
	in.QRPayload = units[0].QRPayload
	second := mustCreate(t, s, globex, in)

	view, err := s.GetByQRPayload(ctx, units[0].QRPayload)
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, second.ID, view.ID)
	assert.Nil(t, view.Unit)
}

func TestListByManufacturer(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a1 := mustCreate(t, s, acme, batchInput("NFT-A1X", 1))
	a2 := mustCreate(t, s, acme, batchInput("NFT-A2X", 1))
	mustCreate(t, s, globex, batchInput("NFT-G1X", 1))

	list, err := s.ListByManufacturer(ctx, acme)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a2.ID, list[0].ID)
	assert.Equal(t, a1.ID, list[1].ID)

	anon, err := s.ListByManufacturer(ctx, domain.Actor{})
	require.NoError(t, err)
	assert.NotNil(t, anon)
	assert.Empty(t, anon)
}

func TestListByBatchNumber(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	in := batchInput("NFT-A1X", 1)
	in.BatchNumber = "LOT-9"
	mustCreate(t, s, acme, in)
	in = batchInput("NFT-G1X", 1)
	in.BatchNumber = "LOT-9"
	mustCreate(t, s, globex, in)

	list, err := s.ListByBatchNumber(ctx, "LOT-9")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestToggleAndDeleteAuthorization(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := mustCreate(t, s, acme, batchInput("NFT-AAA", 1))

	_, err := s.ToggleActive(ctx, domain.Actor{}, b.ID, false)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = s.ToggleActive(ctx, acme, 42, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.ToggleActive(ctx, globex, b.ID, false)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	updated, err := s.ToggleActive(ctx, acme, b.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	reloaded, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)

	assert.ErrorIs(t, s.DeleteBatch(ctx, globex, b.ID), domain.ErrUnauthorized)
	assert.ErrorIs(t, s.DeleteBatch(ctx, acme, 42), domain.ErrNotFound)
	require.NoError(t, s.DeleteBatch(ctx, acme, b.ID))
	gone, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDeleteLeavesOrphansReadable(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := mustCreate(t, s, acme, batchInput("NFT-AAA", 2))
	_, err := s.RecordManualScan(ctx, acme, ManualScan{BatchID: b.ID, Result: domain.ScanGenuine})
	require.NoError(t, err)
	require.NoError(t, s.DeleteBatch(ctx, acme, b.ID))

	units, err := s.ListUnits(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, units, 2)

	view, err := s.GetUnitWithBatch(ctx, "NFT-AAA-1")
	require.NoError(t, err)
	assert.Nil(t, view)

	scans, err := s.ListUserScans(ctx, acme, 0)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, UnknownMedicine, scans[0].MedicineName)
	assert.Nil(t, scans[0].Batch)
}

type countingAggregator struct {
	calls int
}

func (c *countingAggregator) CountScans(ctx context.Context, ids map[int64]struct{}) (int64, error) {
	c.calls++
	return 7, nil
}

func (c *countingAggregator) CountReports(ctx context.Context, ids map[int64]struct{}) (int64, error) {
	c.calls++
	return 3, nil
}

func TestComputeManufacturerStats(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a1 := mustCreate(t, s, acme, batchInput("NFT-A1X", 1))
	a2 := mustCreate(t, s, acme, batchInput("NFT-A2X", 1))
	g1 := mustCreate(t, s, globex, batchInput("NFT-G1X", 1))
	_, err := s.ToggleActive(ctx, acme, a2.ID, false)
	require.NoError(t, err)

	for _, id := range []int64{a1.ID, a1.ID, a2.ID, g1.ID} {
		_, err := s.RecordManualScan(ctx, domain.Actor{}, ManualScan{BatchID: id, Result: domain.ScanGenuine})
		require.NoError(t, err)
	}
	require.NoError(t, s.CreateReport(ctx, &domain.Report{BatchID: &a1.ID, Reason: domain.ReasonQuality, Status: domain.ReportPending}))
	require.NoError(t, s.CreateReport(ctx, &domain.Report{BatchID: &g1.ID, Reason: domain.ReasonQuality, Status: domain.ReportPending}))
	require.NoError(t, s.CreateReport(ctx, &domain.Report{MedicineName: "x", Reason: domain.ReasonOther, Status: domain.ReportPending}))

	stats, err := s.ComputeManufacturerStats(ctx, acme)
	require.NoError(t, err)
	assert.Equal(t, domain.ManufacturerStats{TotalMedicines: 2, ActiveMedicines: 1, TotalScans: 3, RecentReports: 1}, *stats)

	_, err = s.ComputeManufacturerStats(ctx, domain.Actor{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	agg := &countingAggregator{}
	stats, err = s.WithStatsAggregator(agg).ComputeManufacturerStats(ctx, acme)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.calls)
	assert.Equal(t, int64(7), stats.TotalScans)
	assert.Equal(t, int64(3), stats.RecentReports)
}

func TestScanHistoryAndStats(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := mustCreate(t, s, acme, batchInput("NFT-AAA", 2))
	units, err := s.ListUnits(ctx, b.ID)
	require.NoError(t, err)

	_, err = s.RecordManualScan(ctx, globex, ManualScan{BatchID: b.ID, UnitID: &units[1].ID, Result: domain.ScanGenuine})
	require.NoError(t, err)
	_, err = s.RecordManualScan(ctx, globex, ManualScan{BatchID: b.ID, Result: domain.ScanCounterfeit})
	require.NoError(t, err)
	_, err = s.RecordManualScan(ctx, globex, ManualScan{BatchID: b.ID, Result: "maybe"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = s.RecordManualScan(ctx, globex, ManualScan{BatchID: 9, Result: domain.ScanGenuine})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stats, err := s.BatchScanStats(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStats{TotalScans: 2, GenuineScans: 1, CounterfeitScans: 1}, *stats)

	mine, err := s.ListUserScans(ctx, globex, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Paracetamol", mine[0].MedicineName)

	exported, err := s.ListManufacturerScans(ctx, acme)
	require.NoError(t, err)
	assert.Len(t, exported, 2)
	none, err := s.ListManufacturerScans(ctx, globex)
	require.NoError(t, err)
	assert.Empty(t, none)
}
