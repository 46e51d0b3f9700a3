package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var local = Endpoint{Scheme: "http", Host: "localhost", Port: 8000}

func TestEndpoint_URL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000", local.URL())
	assert.Equal(t, "localhost:8000", local.Address())
	assert.Equal(t, "http://[::1]:9000", Endpoint{Scheme: "http", Host: "::1", Port: 9000}.URL())
}

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint("http://localhost:8000")
	require.NoError(t, err)
	assert.Equal(t, local, e)

	for _, raw := range []string{"localhost:8000", "ftp://localhost:21", "http://localhost", "http://localhost:99999", "://"} {
		_, err := ParseEndpoint(raw)
		assert.Error(t, err, raw)
	}
}

func TestBackendURL_Stable(t *testing.T) {
	b := New(NewStaticBroker(local), "v1.0.0", "linux")

	first, err := b.BackendURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", first)

	for i := 0; i < 10; i++ {
		got, err := b.BackendURL(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}

type failingBroker struct{}

func (failingBroker) Resolve(ctx context.Context) (Endpoint, error) {
	return Endpoint{}, errors.New("no port negotiated")
}

func TestBackendURL_BrokerError(t *testing.T) {
	b := New(failingBroker{}, "v1.0.0", "linux")

	_, err := b.BackendURL(context.Background())
	assert.ErrorContains(t, err, "no port negotiated")
}

func TestInvoke(t *testing.T) {
	b := New(NewStaticBroker(local), "v1.0.0", "darwin")
	ctx := context.Background()

	tests := map[string]string{
		ChannelBackendURL: "http://localhost:8000",
		ChannelAppVersion: "v1.0.0",
		ChannelPlatform:   "darwin",
	}
	for channel, want := range tests {
		got, err := b.Invoke(ctx, channel)
		require.NoError(t, err, channel)
		assert.Equal(t, want, got, channel)
	}

	_, err := b.Invoke(ctx, "get-secrets")
	assert.True(t, errors.Is(err, ErrUnknownChannel))
}

func TestChannels(t *testing.T) {
	b := New(NewStaticBroker(local), "dev", "linux")
	assert.Equal(t, []string{ChannelAppVersion, ChannelBackendURL, ChannelPlatform}, b.Channels())
}
