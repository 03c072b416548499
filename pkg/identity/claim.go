package identity

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"nostrrepos/pkg/types"

	"github.com/decred/dcrd/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	hrpPublicKey = "npub"
	hrpProfile   = "nprofile"

	// nprofile TLV entry carrying the 32-byte public key
	tlvSpecial = 0
)

// claimPattern finds bech32-encoded keys, with or without a "nostr:" URI
// prefix. The bech32 alphabet excludes 1, b, i and o.
var claimPattern = regexp.MustCompile(`(?i)\b(?:nostr:)?((?:npub|nprofile)1[qpzry9x8gf2tvdw0s3jn54khce6mua7l]{6,})`)

// FindClaim scans fields in order and returns the first embedded key that
// decodes to a valid public key. Tokens that fail to decode are skipped.
func FindClaim(fields ...string) (types.PubKey, bool) {
	for _, field := range fields {
		for _, m := range claimPattern.FindAllStringSubmatch(field, -1) {
			if key, err := ParseClaim(m[1]); err == nil {
				return key, true
			}
		}
	}
	return "", false
}

// ParseClaim decodes an npub or nprofile token into a hex public key. The
// key must be a valid secp256k1 x-only point.
func ParseClaim(token string) (types.PubKey, error) {
	token = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(token)), "nostr:")

	hrp, data, err := bech32.DecodeNoLimit(token)
	if err != nil {
		return "", fmt.Errorf("failed to decode %q: %w", token, err)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("failed to convert %q: %w", token, err)
	}

	var key []byte
	switch hrp {
	case hrpPublicKey:
		key = raw
	case hrpProfile:
		key, err = profileKey(raw)
		if err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported prefix %q", hrp)
	}

	if err := validateXOnly(key); err != nil {
		return "", err
	}
	return types.PubKey(hex.EncodeToString(key)), nil
}

// validateXOnly checks that key is the x coordinate of a curve point. Any
// valid x has an even-y point, so it parses in compressed form with 0x02.
func validateXOnly(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("invalid public key: want 32 bytes, have %d", len(key))
	}
	if _, err := secp256k1.ParsePubKey(append([]byte{0x02}, key...)); err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	return nil
}

// profileKey walks nprofile TLV entries and returns the special (key) entry
func profileKey(tlv []byte) ([]byte, error) {
	for len(tlv) >= 2 {
		typ, length := tlv[0], int(tlv[1])
		tlv = tlv[2:]
		if length > len(tlv) {
			return nil, fmt.Errorf("truncated nprofile entry")
		}
		if typ == tlvSpecial {
			return tlv[:length], nil
		}
		tlv = tlv[length:]
	}
	return nil, fmt.Errorf("nprofile has no public key entry")
}
