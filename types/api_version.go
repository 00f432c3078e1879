package types

import (
	"fmt"
	"strings"
)

// APIVersion represents the Iris API version used for attestation lookups
type APIVersion int

const (
	APIVersionV1 APIVersion = iota + 1 // v1: /attestations/{messageHash}
	APIVersionV2                       // v2: /v2/messages/{sourceDomain}?transactionHash={txHash}
)

func (v APIVersion) String() string {
	switch v {
	case APIVersionV1:
		return "v1"
	default:
		return "v2"
	}
}

// ParseAPIVersion parses a string into APIVersion, returns error for invalid values.
// An empty value selects v2, the only version that can look attestations up by tx hash.
func ParseAPIVersion(s string) (APIVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1":
		return APIVersionV1, nil
	case "v2", "2", "":
		return APIVersionV2, nil
	default:
		return 0, fmt.Errorf("invalid API version %q: must be 'v1' or 'v2'", s)
	}
}
