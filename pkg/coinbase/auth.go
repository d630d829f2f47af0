package coinbase

import (
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTTL = 2 * time.Minute

// CDPKey is a Coinbase Developer Platform API key. The feed only ever needs
// it to mint one bearer token per ticker request.
type CDPKey struct {
	name string
	key  *ecdsa.PrivateKey
	now  func() time.Time
}

type cdpClaims struct {
	jwt.RegisteredClaims
	URI string `json:"uri"`
}

// ParseCDPKey accepts the key name as organizations/{org}/apiKeys/{id} and an
// EC or PKCS#8 PEM, with newlines either real or escaped.
func ParseCDPKey(name, privateKeyPEM string) (*CDPKey, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 4 || parts[0] != "organizations" || parts[2] != "apiKeys" || parts[1] == "" || parts[3] == "" {
		return nil, fmt.Errorf("coinbase: key name %q is not organizations/{org}/apiKeys/{id}", name)
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(strings.ReplaceAll(privateKeyPEM, `\n`, "\n")))
	if err != nil {
		return nil, fmt.Errorf("coinbase: parse private key: %w", err)
	}
	return &CDPKey{name: name, key: key, now: time.Now}, nil
}

func (k *CDPKey) Name() string { return k.name }

// Token signs a token scoped to a single "METHOD host/path" request.
func (k *CDPKey) Token(method, hostPath string) (string, error) {
	now := k.now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, cdpClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "cdp",
			Subject:   k.name,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		URI: method + " " + hostPath,
	})
	token.Header["kid"] = k.name
	token.Header["nonce"] = strings.ReplaceAll(uuid.NewString(), "-", "")

	signed, err := token.SignedString(k.key)
	if err != nil {
		return "", fmt.Errorf("coinbase: sign token: %w", err)
	}
	return signed, nil
}

// tokenTransport authorizes every outgoing request with a fresh token.
type tokenTransport struct {
	key  *CDPKey
	base http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.key.Token(req.Method, req.URL.Host+req.URL.Path)
	if err != nil {
		return nil, err
	}
	signed := req.Clone(req.Context())
	signed.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(signed)
}
