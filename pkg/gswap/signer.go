package gswap

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const addressPrefix = "eth|"

// Signer signs GalaChain DTOs with the wallet's secp256k1 key: keccak256 over
// the key-sorted JSON payload, signature encoded as r||s||v hex.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("gswap: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the GalaChain form of the signing wallet, eth|<hex>.
func (s *Signer) Address() string {
	return NormalizeAddress(s.address.Hex())
}

// Sign returns the signature of payload. Payload is canonicalized by a JSON
// round trip through map[string]any, which orders keys at every level.
func (s *Signer) Sign(payload any) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}

	digest := ethcrypto.Keccak256(canonical)
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("gswap: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hex.EncodeToString(sig), nil
}

// NormalizeAddress turns 0xABC.., ABC.. or eth|ABC.. into eth|ABC...
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	if strings.HasPrefix(address, addressPrefix) {
		return address
	}
	return addressPrefix + strings.TrimPrefix(address, "0x")
}

// SameAddress compares two wallet addresses ignoring prefix and case.
func SameAddress(a, b string) bool {
	return strings.EqualFold(NormalizeAddress(a), NormalizeAddress(b))
}

func canonicalJSON(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gswap: encode payload: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("gswap: decode payload: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("gswap: canonicalize payload: %w", err)
	}
	return canonical, nil
}
