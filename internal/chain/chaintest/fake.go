package chaintest

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/dhanvantari/pharmaauth/internal/chain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Token on-chain state of one token id
type Token struct {
	Owner common.Address
	URI   string
}

// Backend an in-memory ERC-721 contract. Unknown token ids revert like a real contract.
type Backend struct {
	mu sync.Mutex

	ID     int64
	Name   string
	Symbol string
	Tokens map[string]Token
	// Err fails every call as a transport error
	Err error
	// Delay blocks each call, honouring context cancellation
	Delay time.Duration

	calls  int
	closed bool
}

func NewBackend(chainID int64) *Backend {
	return &Backend{ID: chainID, Name: "PharmaAuth Batches", Symbol: "PHARMA", Tokens: map[string]Token{}}
}

// Mint records an owner for a token id
func (b *Backend) Mint(tokenID string, owner common.Address, uri string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Tokens[tokenID] = Token{Owner: owner, URI: uri}
}

func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Backend) wait(ctx context.Context) error {
	b.mu.Lock()
	delay, err := b.Delay, b.Err
	b.calls++
	b.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	return big.NewInt(b.ID), nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	if len(msg.Data) < 4 {
		return nil, errors.New("execution reverted")
	}
	contract := chain.ContractABI()
	method, err := contract.MethodById(msg.Data[:4])
	if err != nil {
		return nil, errors.New("execution reverted")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	switch method.Name {
	case "name":
		if b.Name == "" {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(b.Name)
	case "symbol":
		if b.Symbol == "" {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(b.Symbol)
	}

	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil || len(args) != 1 {
		return nil, errors.New("execution reverted")
	}
	id, _ := args[0].(*big.Int)
	if id == nil {
		return nil, errors.New("execution reverted")
	}
	tok, ok := b.Tokens[id.String()]
	if !ok {
		return nil, errors.New("execution reverted: ERC721: invalid token ID")
	}
	switch method.Name {
	case "ownerOf":
		return method.Outputs.Pack(tok.Owner)
	case "tokenURI":
		if tok.URI == "" {
			return nil, errors.New("execution reverted: URI query for nonexistent token")
		}
		return method.Outputs.Pack(tok.URI)
	}
	return nil, errors.New("execution reverted")
}

func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Dialer hands out the same backend for every endpoint
func (b *Backend) Dialer() chain.Dialer {
	return func(ctx context.Context, endpoint string) (chain.Backend, error) {
		return b, nil
	}
}

// Dialers routes each endpoint to its own backend; unknown endpoints fail to dial
func Dialers(backends map[string]*Backend) chain.Dialer {
	return func(ctx context.Context, endpoint string) (chain.Backend, error) {
		if b, ok := backends[endpoint]; ok {
			return b, nil
		}
		return nil, errors.New("dial " + endpoint + ": connection refused")
	}
}

// Unreachable a dialer that never connects
func Unreachable() chain.Dialer {
	return func(ctx context.Context, endpoint string) (chain.Backend, error) {
		return nil, errors.New("dial " + endpoint + ": connection refused")
	}
}
