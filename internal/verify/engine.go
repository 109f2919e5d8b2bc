package verify

import (
	"context"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dhanvantari/pharmaauth/internal/chain"
	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/events"
	"github.com/dhanvantari/pharmaauth/internal/identity"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultChainTimeout bounds every chain lookup of one verification
const DefaultChainTimeout = 10 * time.Second

type Verdict string

const (
	Verified       Verdict = "verified"
	Deactivated    Verdict = "deactivated"
	NotFound       Verdict = "not_found"
	InvalidPayload Verdict = "invalid_payload"
)

// Chain lookup outcome carried in the result
const (
	ChainFound       = "found"
	ChainNotFound    = "not_found"
	ChainUnavailable = "unavailable"
	ChainSkipped     = "skipped"
)

// Result sources
const (
	SourceRegistry = "registry"
	SourceChain    = "chain"
)

// Registry the store reads and the scan write the engine needs
type Registry interface {
	GetBatchByTokenID(ctx context.Context, tokenID string) (*domain.Batch, error)
	GetUnitWithBatch(ctx context.Context, unitTokenID string) (*domain.BatchView, error)
	GetByQRPayload(ctx context.Context, payload string) (*domain.BatchView, error)
	RecordScan(ctx context.Context, rec *domain.ScanRecord) error
}

// Chain the read-only token registry
type Chain interface {
	Lookup(ctx context.Context, contract, tokenID string) (*chain.TokenInfo, error)
	GetOwner(ctx context.Context, contract, tokenID string) (string, error)
	GetCollectionName(ctx context.Context, contract string) string
}

// Request one scan. Actor, location, device and ip only feed the scan record.
type Request struct {
	Raw        string
	Actor      domain.Actor
	Location   string
	DeviceInfo string
	IPAddress  string
}

// Result the verdict and whatever detail backs it
type Result struct {
	Verdict     Verdict          `json:"verdict"`
	Source      string           `json:"source,omitempty"`
	TokenID     string           `json:"token_id,omitempty"`
	Contract    string           `json:"contract,omitempty"`
	Name        string           `json:"name,omitempty"`
	Batch       *domain.Batch    `json:"medicine,omitempty"`
	Unit        *domain.Unit     `json:"unit,omitempty"`
	Chain       *chain.TokenInfo `json:"chain,omitempty"`
	ChainStatus string           `json:"chain_status"`
	Expired     bool             `json:"expired"`
	Degraded    bool             `json:"degraded"`
	ScanID      int64            `json:"scan_id,string,omitempty"`
}

// Engine turns a raw scanned string into exactly one verdict
type Engine struct {
	registry        Registry
	chain           Chain
	bus             events.Publisher
	timeout         time.Duration
	defaultContract string
	now             func() time.Time
}

// NewEngine builds an engine; a nil chain runs every verification in degraded mode
func NewEngine(registry Registry, ch Chain, bus events.Publisher) *Engine {
	if bus == nil {
		bus = events.Discard{}
	}
	return &Engine{registry: registry, chain: ch, bus: bus, timeout: DefaultChainTimeout, now: time.Now}
}

// WithTimeout overrides the chain race timeout
func (e *Engine) WithTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// WithDefaultContract sets the contract used when neither the payload nor the
// registry row carries one. An empty or malformed address is rejected.
func (e *Engine) WithDefaultContract(contract string) (*Engine, error) {
	addr, err := identity.ValidateAddress(contract)
	if err != nil {
		return e, err
	}
	e.defaultContract = addr
	return e, nil
}

type chainOutcome struct {
	info   *chain.TokenInfo
	status string
}

// Verify parses, looks up the registry and the chain, and derives the verdict.
// Only a malformed contract address or a failing registry returns an error.
func (e *Engine) Verify(ctx context.Context, req Request) (*Result, error) {
	p := identity.ParsePayload(req.Raw)
	if p.Kind == identity.PayloadInvalid {
		e.publish(&Result{Verdict: InvalidPayload}, 0)
		return &Result{Verdict: InvalidPayload, ChainStatus: ChainSkipped}, nil
	}

	var payloadContract string
	if p.Contract != "" {
		addr, err := identity.ValidateAddress(p.Contract)
		if err != nil {
			return nil, err
		}
		payloadContract = addr
	}
	chainTokenID := p.BatchTokenID()

	var (
		view     *domain.BatchView
		outcome  = chainOutcome{status: ChainSkipped}
		earlyRun bool
	)
	// With a contract in the payload both lookups can start at once.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.lookupRegistry(gctx, p)
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	if payloadContract != "" && chainTokenID != "" {
		earlyRun = true
		g.Go(func() error {
			outcome = e.lookupChain(gctx, payloadContract, chainTokenID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		zap.L().Error("registry lookup failed", zap.String("namespace", "verify"),
			zap.String("token_id", p.TokenID), zap.Error(err))
		return nil, errors.Wrap(domain.ErrTemporarilyUnavailable, err.Error())
	}

	contract, tokenID := payloadContract, chainTokenID
	if view != nil {
		if view.ContractAddress != "" {
			contract = view.ContractAddress
		}
		tokenID = view.TokenID
	}
	if contract == "" {
		contract = e.defaultContract
	}
	if contract != "" && tokenID != "" && (!earlyRun || contract != payloadContract || tokenID != chainTokenID) {
		outcome = e.lookupChain(ctx, contract, tokenID)
	}

	res := e.derive(p, view, outcome, contract)
	e.record(ctx, req, res)
	e.publish(res, batchIDOf(res))
	return res, nil
}

func batchIDOf(res *Result) int64 {
	if res.Batch != nil {
		return res.Batch.ID
	}
	return 0
}

// lookupRegistry JSON payloads are matched on their stored QR text first, then by
// token id. Unit-shaped ids only ever resolve through the unit table.
func (e *Engine) lookupRegistry(ctx context.Context, p identity.Payload) (*domain.BatchView, error) {
	if p.Kind == identity.PayloadUnit || p.Kind == identity.PayloadBatch {
		view, err := e.registry.GetByQRPayload(ctx, p.Raw)
		if err != nil || view != nil {
			return view, err
		}
	}
	if p.TokenID == "" {
		return nil, nil
	}
	if p.IsUnitScoped() {
		return e.registry.GetUnitWithBatch(ctx, p.TokenID)
	}
	batch, err := e.registry.GetBatchByTokenID(ctx, p.TokenID)
	if err != nil || batch == nil {
		return nil, err
	}
	return &domain.BatchView{Batch: *batch}, nil
}

// lookupChain races the adapter against the timeout. A timeout, a missing provider
// or any transport failure all degrade to ChainUnavailable.
func (e *Engine) lookupChain(ctx context.Context, contract, tokenID string) chainOutcome {
	if e.chain == nil {
		return chainOutcome{status: ChainUnavailable}
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type reply struct {
		info *chain.TokenInfo
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		info, err := e.chain.Lookup(ctx, contract, tokenID)
		ch <- reply{info: info, err: err}
	}()

	select {
	case r := <-ch:
		switch {
		case r.err == nil:
			return chainOutcome{info: r.info, status: ChainFound}
		case errors.Is(r.err, chain.ErrTokenNotFound):
			return chainOutcome{status: ChainNotFound}
		default:
			zap.L().Warn("chain lookup unavailable", zap.String("namespace", "verify"),
				zap.String("token_id", tokenID), zap.Error(r.err))
			return chainOutcome{status: ChainUnavailable}
		}
	case <-ctx.Done():
		zap.L().Warn("chain lookup timed out", zap.String("namespace", "verify"),
			zap.String("token_id", tokenID), zap.Duration("timeout", e.timeout))
		return chainOutcome{status: ChainUnavailable}
	}
}

// derive the registry row decides whenever it exists; the chain only speaks for
// tokens the registry has never seen
func (e *Engine) derive(p identity.Payload, view *domain.BatchView, outcome chainOutcome, contract string) *Result {
	res := &Result{
		TokenID:     p.TokenID,
		Contract:    contract,
		ChainStatus: outcome.status,
		Degraded:    outcome.status == ChainUnavailable,
	}
	if outcome.status == ChainFound {
		res.Chain = outcome.info
	}

	if view != nil {
		batch := view.Batch
		res.Source = SourceRegistry
		res.Batch = &batch
		res.Unit = view.Unit
		res.Name = batch.MedicineName
		res.Expired = e.expired(batch.ExpiryDate)
		if view.Unit != nil {
			res.TokenID = view.Unit.TokenID
		} else {
			res.TokenID = batch.TokenID
		}
		if batch.IsActive {
			res.Verdict = Verified
		} else {
			res.Verdict = Deactivated
		}
		return res
	}

	if outcome.status == ChainFound {
		res.Verdict = Verified
		res.Source = SourceChain
		res.Name = outcome.info.Name
		if outcome.info.Contract != "" {
			res.Contract = outcome.info.Contract
		}
		return res
	}
	res.Verdict = NotFound
	return res
}

func (e *Engine) expired(expiry string) bool {
	if expiry == "" {
		return false
	}
	t, err := dateparse.ParseAny(expiry)
	if err != nil {
		return false
	}
	return t.Before(e.now())
}

// record writes one scan for Verified (genuine) and Deactivated (counterfeit).
// A failed write is logged and never changes the verdict.
func (e *Engine) record(ctx context.Context, req Request, res *Result) {
	var outcome string
	switch res.Verdict {
	case Verified:
		outcome = domain.ScanGenuine
	case Deactivated:
		outcome = domain.ScanCounterfeit
	default:
		return
	}
	rec := &domain.ScanRecord{
		TokenID:         res.TokenID,
		ContractAddress: res.Contract,
		UserID:          req.Actor.UserRef(),
		Result:          outcome,
		Location:        req.Location,
		DeviceInfo:      req.DeviceInfo,
		IPAddress:       req.IPAddress,
	}
	if res.Batch != nil {
		rec.BatchID = res.Batch.ID
	}
	if res.Unit != nil {
		id := res.Unit.ID
		rec.UnitID = &id
	}
	if err := e.registry.RecordScan(ctx, rec); err != nil {
		zap.L().Error("scan record failed", zap.String("namespace", "verify"),
			zap.String("token_id", res.TokenID), zap.Error(err))
		return
	}
	res.ScanID = rec.ID
	e.bus.Publish(events.TopicScanRecorded, events.ScanEvent{ScanID: rec.ID, BatchID: rec.BatchID, Result: outcome})
}

func (e *Engine) publish(res *Result, batchID int64) {
	e.bus.Publish(events.TopicVerified, events.VerifyEvent{
		Verdict:  string(res.Verdict),
		TokenID:  res.TokenID,
		BatchID:  batchID,
		Degraded: res.Degraded,
	})
}
