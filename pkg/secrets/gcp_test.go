package secrets

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccessor struct {
	values   map[string]string
	requests []string
}

func (f *fakeAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.requests = append(f.requests, req.GetName())
	v, ok := f.values[req.GetName()]
	if !ok {
		return nil, errors.New("not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(v)}}, nil
}

func (f *fakeAccessor) Close() error { return nil }

func newTestManager(values map[string]string) (*GCPSecretManager, *fakeAccessor) {
	logger, _ := test.NewNullLogger()
	fake := &fakeAccessor{values: values}
	return &GCPSecretManager{client: fake, projectID: "proj", logger: logger}, fake
}

func TestGetSecretTrimsPayload(t *testing.T) {
	g, fake := newTestManager(map[string]string{
		"projects/proj/secrets/gswap-private-key/versions/latest": "0xabc\n",
	})

	v, err := g.GetSecret(context.Background(), "gswap-private-key")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", v)
	assert.Equal(t, []string{"projects/proj/secrets/gswap-private-key/versions/latest"}, fake.requests)
}

func TestResolveKeepsFallbacks(t *testing.T) {
	g, _ := newTestManager(map[string]string{
		"projects/proj/secrets/gswap-wallet-address/versions/latest": "eth|wallet",
	})

	creds := g.Resolve(context.Background(), DefaultSecretNames(), Credentials{
		WalletAddress: "env-wallet",
		PrivateKey:    "env-key",
	})
	assert.Equal(t, "eth|wallet", creds.WalletAddress)
	assert.Equal(t, "env-key", creds.PrivateKey)
	assert.Empty(t, creds.CoinbaseKeyName)
}

func TestGetSecretWithDefaultSkipsUnnamed(t *testing.T) {
	g, fake := newTestManager(nil)
	assert.Equal(t, "dflt", g.GetSecretWithDefault(context.Background(), "", "dflt"))
	assert.Empty(t, fake.requests)
}
