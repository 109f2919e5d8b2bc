package verify

import (
	"context"
	"strings"

	"github.com/dhanvantari/pharmaauth/internal/chain"
	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/identity"
	"github.com/pkg/errors"
)

// Link a shareable verification URL for a token that exists on chain
type Link struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
}

// GenerateLink validates the address before touching the network, confirms the
// token has an owner and renders <origin>/verify?contract=..&tokenId=..
func (e *Engine) GenerateLink(ctx context.Context, origin, contract, tokenID string) (*Link, error) {
	addr, err := identity.ValidateAddress(contract)
	if err != nil {
		return nil, err
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "token id is required")
	}
	if e.chain == nil {
		return nil, errors.Wrap(domain.ErrTemporarilyUnavailable, chain.ErrNoProvider.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	owner, err := e.chain.GetOwner(ctx, addr, tokenID)
	switch {
	case errors.Is(err, chain.ErrTokenNotFound):
		return nil, errors.Wrapf(domain.ErrNotFound, "token %s does not exist on %s", tokenID, addr)
	case err != nil:
		return nil, errors.Wrap(domain.ErrTemporarilyUnavailable, err.Error())
	}
	return &Link{
		URL:      identity.VerificationURL(origin, addr, tokenID),
		Name:     e.chain.GetCollectionName(ctx, addr),
		Owner:    owner,
		Contract: addr,
		TokenID:  tokenID,
	}, nil
}
