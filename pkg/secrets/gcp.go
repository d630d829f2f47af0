package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// accessor is the part of the Secret Manager client this package calls.
type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type GCPSecretManager struct {
	client    accessor
	projectID string
	logger    *logrus.Logger
}

// NewGCPSecretManager connects with application default credentials, or with
// credentialsFile when one is given.
func NewGCPSecretManager(ctx context.Context, projectID, credentialsFile string, logger *logrus.Logger) (*GCPSecretManager, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secretmanager client: %w", err)
	}

	return &GCPSecretManager{
		client:    client,
		projectID: projectID,
		logger:    logger,
	}, nil
}

func (g *GCPSecretManager) GetSecret(ctx context.Context, secretName string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", g.projectID, secretName)

	result, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", secretName, err)
	}
	return strings.TrimSpace(string(result.GetPayload().GetData())), nil
}

func (g *GCPSecretManager) GetSecretWithDefault(ctx context.Context, secretName, defaultValue string) string {
	if secretName == "" {
		return defaultValue
	}
	value, err := g.GetSecret(ctx, secretName)
	if err != nil || value == "" {
		g.logger.WithError(err).WithField("secret", secretName).Debug("Failed to get secret, using default")
		return defaultValue
	}
	return value
}

func (g *GCPSecretManager) Close() error {
	return g.client.Close()
}

type SecretNames struct {
	WalletAddress string `mapstructure:"wallet_address"`
	PrivateKey    string `mapstructure:"private_key"`

	CoinbaseKeyName    string `mapstructure:"coinbase_key_name"`
	CoinbasePrivateKey string `mapstructure:"coinbase_private_key"`
}

func DefaultSecretNames() SecretNames {
	return SecretNames{
		WalletAddress:      "gswap-wallet-address",
		PrivateKey:         "gswap-private-key",
		CoinbaseKeyName:    "coinbase-api-key-name",
		CoinbasePrivateKey: "coinbase-private-key",
	}
}

type Credentials struct {
	WalletAddress      string
	PrivateKey         string
	CoinbaseKeyName    string
	CoinbasePrivateKey string
}

// Resolve fills every field of fallback that has a secret behind it. Missing
// secrets keep the fallback value.
func (g *GCPSecretManager) Resolve(ctx context.Context, names SecretNames, fallback Credentials) Credentials {
	creds := Credentials{
		WalletAddress:      g.GetSecretWithDefault(ctx, names.WalletAddress, fallback.WalletAddress),
		PrivateKey:         g.GetSecretWithDefault(ctx, names.PrivateKey, fallback.PrivateKey),
		CoinbaseKeyName:    g.GetSecretWithDefault(ctx, names.CoinbaseKeyName, fallback.CoinbaseKeyName),
		CoinbasePrivateKey: g.GetSecretWithDefault(ctx, names.CoinbasePrivateKey, fallback.CoinbasePrivateKey),
	}
	g.logger.WithFields(logrus.Fields{
		"project":        g.projectID,
		"wallet_address": creds.WalletAddress != "",
		"private_key":    creds.PrivateKey != "",
		"coinbase_key":   creds.CoinbaseKeyName != "",
	}).Info("Resolved credentials from Secret Manager")
	return creds
}
