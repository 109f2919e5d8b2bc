package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/dhanvantari/pharmaauth/config"
	"github.com/dhanvantari/pharmaauth/internal/identity"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	UnknownCollection = "Unknown Collection"
	DefaultSymbol     = "NFT"
)

var (
	ErrTokenNotFound = errors.New("token does not exist on chain")
	ErrUnavailable   = errors.New("chain data unavailable")
	ErrNoProvider    = errors.New("no chain provider available")

	errReverted = errors.New("execution reverted")
)

// Backend the subset of an ethereum client used for read calls
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Dialer opens a Backend for an RPC endpoint
type Dialer func(ctx context.Context, endpoint string) (Backend, error)

// DialEthClient dials a JSON-RPC endpoint with ethclient
func DialEthClient(ctx context.Context, endpoint string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// TokenInfo what the chain says about one batch token
type TokenInfo struct {
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
	Owner    string `json:"owner"`
	TokenURI string `json:"token_uri,omitempty"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
}

// Adapter reads ownership and metadata of batch tokens. It never sends transactions.
// Endpoints are tried in order; the first one that answers eth_chainId is kept
// until a transport error drops it.
type Adapter struct {
	endpoints []string
	chainID   int64
	timeout   time.Duration
	dial      Dialer

	mu       sync.Mutex
	backend  Backend
	endpoint string
}

func NewAdapter(endpoints []string, chainID int64, timeout time.Duration, dial Dialer) *Adapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if dial == nil {
		dial = DialEthClient
	}
	var eps []string
	for _, ep := range endpoints {
		if ep = strings.TrimSpace(ep); ep != "" {
			eps = append(eps, ep)
		}
	}
	return &Adapter{endpoints: eps, chainID: chainID, timeout: timeout, dial: dial}
}

// NewAdapterFromConfig prefers the wallet endpoint and falls back to the public RPC
func NewAdapterFromConfig(cfg config.ChainConfig) *Adapter {
	return NewAdapter([]string{cfg.WalletRpc, cfg.PublicRpc}, cfg.ChainId,
		time.Duration(cfg.TimeoutSec)*time.Second, nil)
}

func (a *Adapter) Timeout() time.Duration {
	return a.timeout
}

func (a *Adapter) connect(ctx context.Context) (Backend, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend != nil {
		return a.backend, nil
	}
	for _, ep := range a.endpoints {
		dctx, cancel := context.WithTimeout(ctx, a.timeout)
		b, err := a.dial(dctx, ep)
		if err != nil {
			cancel()
			zap.L().Warn("chain endpoint dial failed", zap.String("namespace", "chain"),
				zap.String("endpoint", ep), zap.Error(err))
			continue
		}
		id, err := b.ChainID(dctx)
		cancel()
		if err != nil {
			b.Close()
			zap.L().Warn("chain endpoint not connected", zap.String("namespace", "chain"),
				zap.String("endpoint", ep), zap.Error(err))
			continue
		}
		if a.chainID != 0 && id.Int64() != a.chainID {
			b.Close()
			zap.L().Warn("chain endpoint on wrong network", zap.String("namespace", "chain"),
				zap.String("endpoint", ep), zap.Int64("want", a.chainID), zap.String("got", id.String()))
			continue
		}
		a.backend = b
		a.endpoint = ep
		zap.L().Info("chain endpoint connected", zap.String("namespace", "chain"), zap.String("endpoint", ep))
		return b, nil
	}
	return nil, ErrNoProvider
}

func (a *Adapter) drop(b Backend) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend == b {
		a.backend.Close()
		a.backend = nil
		a.endpoint = ""
	}
}

// Close releases the current connection
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backend != nil {
		a.backend.Close()
		a.backend = nil
	}
}

// Probe connects if needed and returns the chain id and endpoint in use
func (a *Adapter) Probe(ctx context.Context) (int64, string, error) {
	b, err := a.connect(ctx)
	if err != nil {
		return 0, "", err
	}
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	id, err := b.ChainID(cctx)
	if err != nil {
		a.drop(b)
		return 0, "", errors.Wrap(ErrUnavailable, err.Error())
	}
	a.mu.Lock()
	ep := a.endpoint
	a.mu.Unlock()
	return id.Int64(), ep, nil
}

func isRevert(err error) bool {
	if strings.Contains(strings.ToLower(err.Error()), "execution reverted") {
		return true
	}
	var rerr rpc.Error
	return errors.As(err, &rerr) && rerr.ErrorCode() == 3
}

func (a *Adapter) call(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := erc721.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}
	b, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	out, err := b.CallContract(cctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, errReverted
		}
		if !errors.Is(err, context.Canceled) {
			a.drop(b)
		}
		return nil, errors.Wrapf(ErrUnavailable, "%s: %v", method, err)
	}
	if len(out) == 0 {
		return nil, errReverted
	}
	vals, err := erc721.Unpack(method, out)
	if err != nil || len(vals) == 0 {
		return nil, errReverted
	}
	return vals, nil
}

// parseTokenID token ids are decimal uint256 values; anything else cannot exist on chain
func parseTokenID(tokenID string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(tokenID), 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 256 {
		return nil, false
	}
	return n, true
}

func parseContract(contract string) (common.Address, error) {
	addr, err := identity.ValidateAddress(contract)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(addr), nil
}

// GetOwner returns the checksummed owner. A revert or the zero address is ErrTokenNotFound.
// Without a reachable provider every id, numeric or not, fails with ErrNoProvider.
func (a *Adapter) GetOwner(ctx context.Context, contract, tokenID string) (string, error) {
	addr, err := parseContract(contract)
	if err != nil {
		return "", err
	}
	if _, err := a.connect(ctx); err != nil {
		return "", err
	}
	id, ok := parseTokenID(tokenID)
	if !ok {
		return "", ErrTokenNotFound
	}
	vals, err := a.call(ctx, addr, "ownerOf", id)
	if err != nil {
		if errors.Is(err, errReverted) {
			return "", ErrTokenNotFound
		}
		return "", err
	}
	owner, ok := vals[0].(common.Address)
	if !ok || owner == (common.Address{}) {
		return "", ErrTokenNotFound
	}
	return owner.Hex(), nil
}

// GetTokenURI is best effort, a revert yields ErrUnavailable
func (a *Adapter) GetTokenURI(ctx context.Context, contract, tokenID string) (string, error) {
	addr, err := parseContract(contract)
	if err != nil {
		return "", err
	}
	if _, err := a.connect(ctx); err != nil {
		return "", err
	}
	id, ok := parseTokenID(tokenID)
	if !ok {
		return "", ErrUnavailable
	}
	vals, err := a.call(ctx, addr, "tokenURI", id)
	if err != nil {
		if errors.Is(err, errReverted) {
			return "", ErrUnavailable
		}
		return "", err
	}
	uri, _ := vals[0].(string)
	if uri == "" {
		return "", ErrUnavailable
	}
	return uri, nil
}

func (a *Adapter) stringOr(ctx context.Context, contract, method, fallback string) string {
	addr, err := parseContract(contract)
	if err != nil {
		return fallback
	}
	vals, err := a.call(ctx, addr, method)
	if err != nil {
		return fallback
	}
	if s, _ := vals[0].(string); s != "" {
		return s
	}
	return fallback
}

// GetCollectionName falls back to "Unknown Collection"
func (a *Adapter) GetCollectionName(ctx context.Context, contract string) string {
	return a.stringOr(ctx, contract, "name", UnknownCollection)
}

// GetSymbol falls back to "NFT"
func (a *Adapter) GetSymbol(ctx context.Context, contract string) string {
	return a.stringOr(ctx, contract, "symbol", DefaultSymbol)
}

// Lookup resolves the owner, then reads the display metadata concurrently.
// Only the owner decides existence.
func (a *Adapter) Lookup(ctx context.Context, contract, tokenID string) (*TokenInfo, error) {
	owner, err := a.GetOwner(ctx, contract, tokenID)
	if err != nil {
		return nil, err
	}
	checksummed, _ := identity.ValidateAddress(contract)
	info := &TokenInfo{Contract: checksummed, TokenID: tokenID, Owner: owner}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		uri, err := a.GetTokenURI(gctx, contract, tokenID)
		if err == nil {
			info.TokenURI = uri
		}
		return nil
	})
	g.Go(func() error {
		info.Name = a.GetCollectionName(gctx, contract)
		return nil
	})
	g.Go(func() error {
		info.Symbol = a.GetSymbol(gctx, contract)
		return nil
	})
	_ = g.Wait()
	return info, nil
}
