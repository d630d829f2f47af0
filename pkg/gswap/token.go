package gswap

import (
	"fmt"
	"strings"
)

// TokenKey identifies a GalaChain token class. Config spells it
// collection|category|type|additionalKey; the gateway wants $ separators.
type TokenKey struct {
	Collection    string `json:"collection"`
	Category      string `json:"category"`
	Type          string `json:"type"`
	AdditionalKey string `json:"additionalKey"`
}

func ParseTokenKey(s string) (TokenKey, error) {
	sep := "|"
	if strings.Contains(s, "$") {
		sep = "$"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 4 {
		return TokenKey{}, fmt.Errorf("gswap: invalid token class key %q", s)
	}
	for _, p := range parts {
		if p == "" {
			return TokenKey{}, fmt.Errorf("gswap: invalid token class key %q", s)
		}
	}
	return TokenKey{Collection: parts[0], Category: parts[1], Type: parts[2], AdditionalKey: parts[3]}, nil
}

func (k TokenKey) String() string {
	return strings.Join([]string{k.Collection, k.Category, k.Type, k.AdditionalKey}, "$")
}

// Symbol is the name balances are reported under.
func (k TokenKey) Symbol() string {
	return k.Collection
}
