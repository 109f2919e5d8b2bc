package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dhanvantari/pharmaauth/internal/chain"
	"github.com/dhanvantari/pharmaauth/internal/chain/chaintest"
	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/events"
	"github.com/dhanvantari/pharmaauth/internal/identity"
	"github.com/dhanvantari/pharmaauth/internal/registry"
	"github.com/dhanvantari/pharmaauth/internal/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testContract  = "0x71C95911e9A5d330F4d621842eC243ee134329A2"
	otherContract = "0xdead000000000000000000000000000000000000"
)

var (
	acme    = domain.Actor{UserID: 1001, Name: "Acme Pharma"}
	scanner = domain.Actor{UserID: 3003, Name: "pharmacist"}
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000A1")
)

type recordingBus struct {
	mu     sync.Mutex
	topics []string
	args   []interface{}
}

func (b *recordingBus) Publish(topic string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics = append(b.topics, topic)
	b.args = append(b.args, args...)
}

type fixture struct {
	store   *registry.Store
	backend *chaintest.Backend
	engine  *Engine
	bus     *recordingBus
}

func newFixture(t *testing.T) *fixture {
	store := registry.NewStore(testutil.NewTestDB(t))
	backend := chaintest.NewBackend(80002)
	adapter := chain.NewAdapter([]string{"http://wallet"}, 80002, time.Second, backend.Dialer())
	bus := &recordingBus{}
	return &fixture{store: store, backend: backend, engine: NewEngine(store, adapter, bus), bus: bus}
}

func (f *fixture) createBatch(t *testing.T, tokenID string, quantity int) *domain.Batch {
	t.Helper()
	b, err := f.store.CreateBatch(context.Background(), acme, registry.BatchInput{
		TokenID:           tokenID,
		MedicineName:      "Paracetamol",
		BatchNumber:       "LOT-" + tokenID,
		MedicineType:      domain.MedicineTablet,
		ManufacturingDate: "2024-01-10",
		ExpiryDate:        "2099-01-10",
		MRP:               decimal.NewFromInt(25),
		Quantity:          quantity,
		ContractAddress:   testContract,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) scans(t *testing.T) []domain.ScanRecord {
	t.Helper()
	var recs []domain.ScanRecord
	require.NoError(t, f.store.DB().Order("created_at ASC").Find(&recs).Error)
	return recs
}

func (f *fixture) unitQR(t *testing.T, batch *domain.Batch, serial int) string {
	t.Helper()
	units, err := f.store.ListUnits(context.Background(), batch.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(units), serial)
	return units[serial-1].QRPayload
}

func TestInvalidPayloadIsSilent(t *testing.T) {
	f := newFixture(t)
	for _, raw := range []string{"not a url or json", "", `{"foo":1}`, "https://example.com/?tokenId=1"} {
		res, err := f.engine.Verify(context.Background(), Request{Raw: raw, Actor: scanner})
		require.NoError(t, err)
		assert.Equal(t, InvalidPayload, res.Verdict, raw)
	}
	assert.Empty(t, f.scans(t))
	assert.Equal(t, 0, f.backend.Calls())
}

func TestUnitScanVerified(t *testing.T) {
	f := newFixture(t)
	batch := f.createBatch(t, "NFT-AAA", 3)

	res, err := f.engine.Verify(context.Background(), Request{
		Raw: f.unitQR(t, batch, 2), Actor: scanner, Location: "Pune", IPAddress: "10.0.0.8",
	})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Verdict)
	assert.Equal(t, SourceRegistry, res.Source)
	require.NotNil(t, res.Unit)
	assert.Equal(t, 2, res.Unit.SerialNumber)
	assert.Equal(t, "NFT-AAA-2", res.TokenID)
	require.NotNil(t, res.Batch)
	assert.Equal(t, "NFT-AAA", res.Batch.TokenID)
	assert.Equal(t, "Paracetamol", res.Name)
	assert.False(t, res.Expired)

	recs := f.scans(t)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ScanGenuine, recs[0].Result)
	assert.Equal(t, batch.ID, recs[0].BatchID)
	require.NotNil(t, recs[0].UnitID)
	assert.Equal(t, res.Unit.ID, *recs[0].UnitID)
	require.NotNil(t, recs[0].UserID)
	assert.Equal(t, scanner.UserID, *recs[0].UserID)
	assert.Equal(t, "Pune", recs[0].Location)
	assert.Equal(t, res.ScanID, recs[0].ID)
	assert.Contains(t, f.bus.topics, events.TopicScanRecorded)
}

func TestRepeatedScansAreNotDeduplicated(t *testing.T) {
	f := newFixture(t)
	batch := f.createBatch(t, "NFT-AAA", 1)
	raw := f.unitQR(t, batch, 1)
	for i := 0; i < 3; i++ {
		res, err := f.engine.Verify(context.Background(), Request{Raw: raw})
		require.NoError(t, err)
		assert.Equal(t, Verified, res.Verdict)
	}
	assert.Len(t, f.scans(t), 3)
}

func TestDeactivationVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := f.createBatch(t, "NFT-AAA", 3)
	_, err := f.store.ToggleActive(ctx, acme, batch.ID, false)
	require.NoError(t, err)

	payloads := []string{
		f.unitQR(t, batch, 1),
		f.unitQR(t, batch, 3),
		batch.QRPayload,
		identity.VerificationURL("https://pharma.example", testContract, "NFT-AAA"),
		identity.VerificationURL("https://pharma.example", testContract, "NFT-AAA-2"),
		`{"id":"NFT-AAA-1"}`,
	}
	for _, raw := range payloads {
		res, err := f.engine.Verify(ctx, Request{Raw: raw})
		require.NoError(t, err)
		assert.Equal(t, Deactivated, res.Verdict, raw)
	}
	for _, rec := range f.scans(t) {
		assert.Equal(t, domain.ScanCounterfeit, rec.Result)
	}
}

func TestRegistryOverridesChainMiss(t *testing.T) {
	f := newFixture(t)
	f.createBatch(t, "999", 1)

	res, err := f.engine.Verify(context.Background(), Request{
		Raw: identity.VerificationURL("https://pharma.example", testContract, "999"),
	})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Verdict)
	assert.Equal(t, ChainNotFound, res.ChainStatus)
	assert.Nil(t, res.Chain)
	assert.False(t, res.Degraded)
	assert.Greater(t, f.backend.Calls(), 0)
}

func TestRegistryContractWins(t *testing.T) {
	f := newFixture(t)
	f.createBatch(t, "777", 1)
	f.backend.Mint("777", owner, "ipfs://777")

	res, err := f.engine.Verify(context.Background(), Request{
		Raw: identity.VerificationURL("https://pharma.example", otherContract, "777"),
	})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Verdict)
	assert.Equal(t, testContract, res.Contract)
	require.NotNil(t, res.Chain)
	assert.Equal(t, testContract, res.Chain.Contract)
	assert.Equal(t, owner.Hex(), res.Chain.Owner)
}

func TestZeroOwnerIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.backend.Mint("999", common.Address{}, "")

	res, err := f.engine.Verify(context.Background(), Request{
		Raw: "https://pharma.example/verify?contract=" + otherContract + "&tokenId=999",
	})
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Verdict)
	assert.Equal(t, ChainNotFound, res.ChainStatus)
	assert.Empty(t, f.scans(t))
}

func TestChainOnlyProvenance(t *testing.T) {
	f := newFixture(t)
	f.backend.Mint("4242", owner, "ipfs://4242")

	res, err := f.engine.Verify(context.Background(), Request{
		Raw: identity.VerificationURL("https://pharma.example", otherContract, "4242"), Actor: scanner,
	})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Verdict)
	assert.Equal(t, SourceChain, res.Source)
	assert.Equal(t, "PharmaAuth Batches", res.Name)
	assert.Nil(t, res.Batch)
	require.NotNil(t, res.Chain)
	assert.Equal(t, "ipfs://4242", res.Chain.TokenURI)

	recs := f.scans(t)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(0), recs[0].BatchID)
	assert.Equal(t, "4242", recs[0].TokenID)
	assert.Equal(t, common.HexToAddress(otherContract).Hex(), recs[0].ContractAddress)
}

func TestDefaultContractFillsMissingAddress(t *testing.T) {
	f := newFixture(t)
	f.backend.Mint("4242", owner, "ipfs://4242")
	ctx := context.Background()

	res, err := f.engine.Verify(ctx, Request{Raw: `{"id":4242}`})
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Verdict)
	assert.Equal(t, ChainSkipped, res.ChainStatus)
	assert.Equal(t, 0, f.backend.Calls())

	_, err = f.engine.WithDefaultContract("0x1234")
	var aerr *identity.AddressError
	require.ErrorAs(t, err, &aerr)

	_, err = f.engine.WithDefaultContract(testContract)
	require.NoError(t, err)
	res, err = f.engine.Verify(ctx, Request{Raw: `{"id":4242}`})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Verdict)
	assert.Equal(t, SourceChain, res.Source)
	assert.Equal(t, testContract, res.Contract)
	assert.Equal(t, "4242", res.TokenID)
}

func TestDegradedMode(t *testing.T) {
	store := registry.NewStore(testutil.NewTestDB(t))
	adapter := chain.NewAdapter([]string{"http://wallet", "https://public"}, 80002, time.Second, chaintest.Unreachable())
	engine := NewEngine(store, adapter, nil)
	f := &fixture{store: store, engine: engine}
	batch := f.createBatch(t, "NFT-AAA", 1)

	res, err := engine.Verify(context.Background(), Request{Raw: f.unitQR(t, batch, 1)})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Verdict)
	assert.True(t, res.Degraded)
	assert.Equal(t, ChainUnavailable, res.ChainStatus)

	res, err = engine.Verify(context.Background(), Request{
		Raw: identity.VerificationURL("https://pharma.example", testContract, "31337"),
	})
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Verdict)
	assert.True(t, res.Degraded)

	nochain := NewEngine(store, nil, nil)
	res, err = nochain.Verify(context.Background(), Request{Raw: batch.QRPayload})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Verdict)
	assert.True(t, res.Degraded)
}

func TestChainTimeoutIsBounded(t *testing.T) {
	f := newFixture(t)
	f.createBatch(t, "555", 1)
	f.backend.Mint("555", owner, "")
	adapter := chain.NewAdapter([]string{"http://wallet"}, 0, 5*time.Second, f.backend.Dialer())
	engine := NewEngine(f.store, adapter, nil).WithTimeout(50 * time.Millisecond)
	f.backend.Delay = 2 * time.Second

	start := time.Now()
	res, err := engine.Verify(context.Background(), Request{
		Raw: identity.VerificationURL("https://pharma.example", testContract, "555"),
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Verified, res.Verdict)
	assert.True(t, res.Degraded)
}

func TestMalformedContractRejectedBeforeLookup(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Verify(context.Background(), Request{
		Raw: `{"id":"999","batch":"B1","contract":"0x1234...abcd","unit":1}`,
	})
	var aerr *identity.AddressError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, identity.AddressTruncated, aerr.Kind)
	assert.Equal(t, 0, f.backend.Calls())
	assert.Empty(t, f.scans(t))
}

func TestExpiredFlag(t *testing.T) {
	f := newFixture(t)
	b, err := f.store.CreateBatch(context.Background(), acme, registry.BatchInput{
		TokenID: "NFT-OLD", MedicineName: "Amoxicillin", BatchNumber: "LOT-OLD",
		MedicineType: domain.MedicineCapsule, ManufacturingDate: "2019-01-01", ExpiryDate: "2020-01-01",
		Quantity: 1, ContractAddress: testContract,
	})
	require.NoError(t, err)
	res, err := f.engine.Verify(context.Background(), Request{Raw: b.QRPayload})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Verdict)
	assert.True(t, res.Expired)
}

type brokenRegistry struct {
	Registry
	lookupErr error
	recordErr error
}

func (b *brokenRegistry) GetByQRPayload(ctx context.Context, payload string) (*domain.BatchView, error) {
	if b.lookupErr != nil {
		return nil, b.lookupErr
	}
	return b.Registry.GetByQRPayload(ctx, payload)
}

func (b *brokenRegistry) RecordScan(ctx context.Context, rec *domain.ScanRecord) error {
	if b.recordErr != nil {
		return b.recordErr
	}
	return b.Registry.RecordScan(ctx, rec)
}

func TestRegistryFailureIsTemporary(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(&brokenRegistry{Registry: f.store, lookupErr: errors.New("connection refused")}, nil, nil)
	_, err := engine.Verify(context.Background(), Request{Raw: `{"id":"NFT-AAA-1"}`})
	assert.ErrorIs(t, err, domain.ErrTemporarilyUnavailable)
}

func TestScanWriteFailureKeepsVerdict(t *testing.T) {
	f := newFixture(t)
	batch := f.createBatch(t, "NFT-AAA", 1)
	engine := NewEngine(&brokenRegistry{Registry: f.store, recordErr: errors.New("disk full")}, nil, nil)
	res, err := engine.Verify(context.Background(), Request{Raw: batch.QRPayload})
	require.NoError(t, err)
	assert.Equal(t, Verified, res.Verdict)
	assert.Zero(t, res.ScanID)
}

func TestGenerateLink(t *testing.T) {
	f := newFixture(t)
	f.backend.Mint("999", owner, "")
	ctx := context.Background()

	link, err := f.engine.GenerateLink(ctx, "https://pharma.example/", "0x71c95911e9a5d330f4d621842ec243ee134329a2", "999")
	require.NoError(t, err)
	assert.Equal(t, "https://pharma.example/verify?contract="+testContract+"&tokenId=999", link.URL)
	assert.Equal(t, testContract, link.Contract)
	assert.Equal(t, owner.Hex(), link.Owner)
	assert.Equal(t, "PharmaAuth Batches", link.Name)

	_, err = f.engine.GenerateLink(ctx, "https://pharma.example", testContract, "1000")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	calls := f.backend.Calls()
	_, err = f.engine.GenerateLink(ctx, "https://pharma.example", "0x71C9", "999")
	var aerr *identity.AddressError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, identity.AddressWrongLength, aerr.Kind)
	assert.Equal(t, calls, f.backend.Calls())

	_, err = NewEngine(f.store, nil, nil).GenerateLink(ctx, "https://pharma.example", testContract, "999")
	assert.ErrorIs(t, err, domain.ErrTemporarilyUnavailable)
}
