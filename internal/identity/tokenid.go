package identity

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// unitSuffix matches the "-<serial>" tail that DeriveUnitID appends
var unitSuffix = regexp.MustCompile(`-([0-9]+)$`)

var (
	ErrEmptyTokenID      = errors.New("token id is empty")
	ErrAmbiguousTokenID  = errors.New("batch token id must not end with -<digits>")
	ErrInvalidSerial     = errors.New("serial must be >= 1")
	ErrTokenIDWhitespace = errors.New("token id must not contain whitespace")
)

// DeriveUnitID returns "<batchTokenID>-<serial>"
func DeriveUnitID(batchTokenID string, serial int) string {
	return batchTokenID + "-" + strconv.Itoa(serial)
}

// SplitUnitID splits a unit token id into its batch id and serial.
// ok is false when the id carries no numeric suffix.
func SplitUnitID(tokenID string) (batchTokenID string, serial int, ok bool) {
	m := unitSuffix.FindStringSubmatchIndex(tokenID)
	if m == nil || m[0] == 0 {
		return tokenID, 0, false
	}
	n, err := strconv.Atoi(tokenID[m[2]:m[3]])
	if err != nil || n < 1 {
		return tokenID, 0, false
	}
	return tokenID[:m[0]], n, true
}

// UnitIDToBatchID strips the serial suffix, ids without one are returned as is
func UnitIDToBatchID(unitTokenID string) string {
	batch, _, _ := SplitUnitID(unitTokenID)
	return batch
}

// IsUnitID reports whether the id is shaped like a derived unit id
func IsUnitID(tokenID string) bool {
	_, _, ok := SplitUnitID(tokenID)
	return ok
}

// ValidateBatchTokenID enforces that a batch id can never be read back as a unit id
func ValidateBatchTokenID(tokenID string) error {
	if strings.TrimSpace(tokenID) == "" {
		return ErrEmptyTokenID
	}
	if strings.ContainsAny(tokenID, " \t\r\n") {
		return ErrTokenIDWhitespace
	}
	if unitSuffix.MatchString(tokenID) {
		return errors.Wrapf(ErrAmbiguousTokenID, "token id %q", tokenID)
	}
	return nil
}
