package registry

import (
	"context"
	"testing"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func TestMatchReportTiers(t *testing.T) {
	batches := []domain.Batch{
		{ID: 1, BatchNumber: "LOT-1", MedicineName: "Paracetamol"},
		{ID: 2, BatchNumber: "LOT-2", MedicineName: "Ibuprofen"},
		{ID: 3, BatchNumber: "LOT-3", MedicineName: "paracetamol"},
	}
	cases := []struct {
		name    string
		report  domain.Report
		batchID int64
		by      string
	}{
		{"batch reference", domain.Report{BatchID: int64p(2), BatchNumber: "LOT-1"}, 2, MatchedByBatchID},
		{"batch number", domain.Report{BatchNumber: "LOT-3", MedicineName: "Ibuprofen"}, 3, MatchedByBatchNumber},
		{"foreign batch falls through", domain.Report{BatchID: int64p(99), BatchNumber: "LOT-2"}, 2, MatchedByBatchNumber},
		{"medicine name case insensitive", domain.Report{MedicineName: "PARACETAMOL"}, 1, MatchedByMedicineName},
		{"batch number is case sensitive", domain.Report{BatchNumber: "lot-2", MedicineName: "ibuprofen"}, 2, MatchedByMedicineName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, by, ok := MatchReport(&tc.report, batches)
			require.True(t, ok)
			assert.Equal(t, tc.batchID, b.ID)
			assert.Equal(t, tc.by, by)
		})
	}

	_, _, ok := MatchReport(&domain.Report{MedicineName: "Aspirin", BatchNumber: "LOT-9"}, batches)
	assert.False(t, ok)
	_, _, ok = MatchReport(&domain.Report{}, []domain.Batch{{ID: 5}})
	assert.False(t, ok, "empty free text never matches")
}

func TestListReportsForManufacturer(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	in := batchInput("NFT-AAA", 1)
	in.MedicineName = "Paracetamol"
	mine := mustCreate(t, s, acme, in)
	other := batchInput("NFT-GGG", 1)
	other.MedicineName = "Cetirizine"
	theirs := mustCreate(t, s, globex, other)

	require.NoError(t, s.CreateReport(ctx, &domain.Report{MedicineName: "paracetamol", Reason: domain.ReasonPackaging, Status: domain.ReportPending}))
	require.NoError(t, s.CreateReport(ctx, &domain.Report{BatchID: &theirs.ID, Reason: domain.ReasonQuality, Status: domain.ReportPending}))
	require.NoError(t, s.CreateReport(ctx, &domain.Report{BatchNumber: mine.BatchNumber, Reason: domain.ReasonPrice, Status: domain.ReportPending}))

	list, err := s.ListReportsForManufacturer(ctx, acme)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, MatchedByBatchNumber, list[0].MatchedBy)
	assert.Equal(t, MatchedByMedicineName, list[1].MatchedBy)
	assert.Equal(t, mine.ID, list[1].Batch.ID)

	anon, err := s.ListReportsForManufacturer(ctx, domain.Actor{})
	require.NoError(t, err)
	assert.Empty(t, anon)
}

func TestResolveReportBatchFromQR(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := mustCreate(t, s, acme, batchInput("NFT-AAA", 2))
	units, err := s.ListUnits(ctx, b.ID)
	require.NoError(t, err)

	r := &domain.Report{QRPayload: units[0].QRPayload}
	require.NoError(t, s.ResolveReportBatch(ctx, r))
	require.NotNil(t, r.BatchID)
	assert.Equal(t, b.ID, *r.BatchID)
	assert.Equal(t, "Paracetamol", r.MedicineName)
	assert.Equal(t, b.BatchNumber, r.BatchNumber)

	unknown := &domain.Report{QRPayload: "garbage"}
	require.NoError(t, s.ResolveReportBatch(ctx, unknown))
	assert.Nil(t, unknown.BatchID)
}

func TestUpdateReportReviewIsConditional(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	r := &domain.Report{MedicineName: "x", Reason: domain.ReasonOther, Status: domain.ReportPending}
	require.NoError(t, s.CreateReport(ctx, r))

	require.NoError(t, s.UpdateReportReview(ctx, r.ID, domain.ReportPending, domain.ReportResolved, acme.UserID, "recalled"))
	err := s.UpdateReportReview(ctx, r.ID, domain.ReportPending, domain.ReportDismissed, acme.UserID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportResolved, got.Status)
	assert.Equal(t, "recalled", got.ReviewNotes)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, acme.UserID, *got.ReviewedBy)
}
