package identity

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type AddressErrorKind string

const (
	AddressWrongLength   AddressErrorKind = "wrong_length"
	AddressMissingPrefix AddressErrorKind = "missing_prefix"
	AddressInvalidHex    AddressErrorKind = "invalid_hex"
	AddressTruncated     AddressErrorKind = "truncated"
)

// AddressError a contract address the user can correct
type AddressError struct {
	Kind   AddressErrorKind
	Input  string
	Detail string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("malformed address (%s): %s", e.Kind, e.Detail)
}

// ValidateAddress checks a contract address without touching the network and
// returns its EIP-55 checksummed form. Mixed-case input must carry a valid checksum.
func ValidateAddress(input string) (string, error) {
	addr := strings.TrimSpace(input)
	if strings.Contains(addr, "...") || strings.Contains(addr, "…") {
		return "", &AddressError{Kind: AddressTruncated, Input: input,
			Detail: "address appears truncated, paste the full 42-character address"}
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", &AddressError{Kind: AddressMissingPrefix, Input: input,
			Detail: "address must start with 0x"}
	}
	if len(addr) != 42 {
		return "", &AddressError{Kind: AddressWrongLength, Input: input,
			Detail: fmt.Sprintf("address must be 42 characters, got %d", len(addr))}
	}
	if !common.IsHexAddress(addr) {
		return "", &AddressError{Kind: AddressInvalidHex, Input: input,
			Detail: "address contains non-hexadecimal characters"}
	}
	body := addr[2:]
	checksummed := common.HexToAddress(addr).Hex()
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && checksummed[2:] != body {
		return "", &AddressError{Kind: AddressInvalidHex, Input: input,
			Detail: "address checksum does not match"}
	}
	return checksummed, nil
}
