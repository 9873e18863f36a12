// Package ident canonicalizes the identifier encodings observed across the
// raw event sources: condition IDs arrive with and without 0x prefixes and
// in mixed case, token IDs arrive as decimal or hex strings, and some
// sources report 1-based outcome positions. Every identifier is normalized
// to a single internal representation before anything downstream keys on it;
// an identifier that cannot be normalized is rejected, never coerced.
package ident

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/polyledger/pnlengine/internal/domain"
)

// conditionHexLen is the length of a canonical condition ID: a 32-byte hash
// rendered as lowercase hex without the 0x prefix.
const conditionHexLen = 64

// ConditionID normalizes a condition identifier to lowercase, prefix-free,
// fixed-length hex. Two inputs differing only in case or prefix normalize
// identically. Returns domain.ErrInvalidIdentifier for anything that is not
// exactly 32 bytes of hex after normalization.
func ConditionID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != conditionHexLen {
		return "", fmt.Errorf("ident: condition id %q has length %d, want %d: %w",
			raw, len(s), conditionHexLen, domain.ErrInvalidIdentifier)
	}
	s = strings.ToLower(s)
	if _, err := hexutil.Decode("0x" + s); err != nil {
		return "", fmt.Errorf("ident: condition id %q: %w", raw, domain.ErrInvalidIdentifier)
	}
	return s, nil
}

// TokenID normalizes an ERC-1155 outcome token identifier to its canonical
// decimal string form. Inputs may be decimal ("1234...") or 0x-prefixed hex;
// both encodings of the same uint256 normalize to the same output. Values
// outside the uint256 range are invalid.
func TokenID(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("ident: empty token id: %w", domain.ErrInvalidIdentifier)
	}

	// Hex token IDs may carry leading zeros from fixed-width encoders, so
	// they are parsed with big.Int rather than hexutil.DecodeBig, which
	// rejects them.
	var n *big.Int
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok = new(big.Int).SetString(s[2:], 16)
	} else {
		n, ok = new(big.Int).SetString(s, 10)
	}
	if !ok {
		return "", fmt.Errorf("ident: token id %q: %w", raw, domain.ErrInvalidIdentifier)
	}

	if n.Sign() < 0 || n.Cmp(math.MaxBig256) > 0 {
		return "", fmt.Errorf("ident: token id %q outside uint256 range: %w", raw, domain.ErrInvalidIdentifier)
	}
	return n.String(), nil
}

// Wallet normalizes an EVM wallet address to lowercase 0x-prefixed hex.
func Wallet(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 40 {
		return "", fmt.Errorf("ident: wallet %q has length %d, want 40: %w",
			raw, len(s), domain.ErrInvalidIdentifier)
	}
	s = strings.ToLower(s)
	if _, err := hexutil.Decode("0x" + s); err != nil {
		return "", fmt.Errorf("ident: wallet %q: %w", raw, domain.ErrInvalidIdentifier)
	}
	return "0x" + s, nil
}

// OutcomeIndex normalizes an outcome position to 0-based indexing.
// oneIndexed marks sources that report positions starting at 1.
func OutcomeIndex(raw int, oneIndexed bool) (int, error) {
	idx := raw
	if oneIndexed {
		idx--
	}
	if idx < 0 {
		return 0, fmt.Errorf("ident: outcome index %d (one_indexed=%t): %w",
			raw, oneIndexed, domain.ErrInvalidIdentifier)
	}
	return idx, nil
}
