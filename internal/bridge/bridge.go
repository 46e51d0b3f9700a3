// Package bridge is the request/response channel the UI uses to ask the host
// for infrastructure metadata: where the engine lives and which version the
// application is. No business data crosses it.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
)

// Channel names understood by Invoke.
const (
	ChannelBackendURL = "get-backend-url"
	ChannelAppVersion = "get-app-version"
	ChannelPlatform   = "get-platform"
)

// ErrUnknownChannel is returned by Invoke for channels it does not serve.
var ErrUnknownChannel = errors.New("unknown bridge channel")

// Endpoint is the network address of the compute engine.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

// URL returns the base URL, e.g. "http://localhost:8000".
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s://%s", e.Scheme, e.Address())
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string { return e.URL() }

// ParseEndpoint parses a base URL with an explicit port.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid engine url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, fmt.Errorf("invalid engine url %q: scheme must be http or https", raw)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid engine url %q: missing or invalid port", raw)
	}
	return Endpoint{Scheme: u.Scheme, Host: u.Hostname(), Port: port}, nil
}

// Broker resolves the engine endpoint. The query is asynchronous so that a
// dynamic strategy (port negotiation) can replace the static one.
type Broker interface {
	Resolve(ctx context.Context) (Endpoint, error)
}

// StaticBroker always returns the configured endpoint.
type StaticBroker struct {
	endpoint Endpoint
}

// NewStaticBroker creates a broker for a fixed endpoint.
func NewStaticBroker(e Endpoint) *StaticBroker {
	return &StaticBroker{endpoint: e}
}

func (b *StaticBroker) Resolve(ctx context.Context) (Endpoint, error) {
	return b.endpoint, nil
}

// Bridge serves the bridge channels. It never reads supervisor state and
// never probes the engine: reachability is the caller's concern.
type Bridge struct {
	broker   Broker
	version  string
	platform string
}

// New creates a bridge.
func New(broker Broker, version, platform string) *Bridge {
	return &Bridge{broker: broker, version: version, platform: platform}
}

// BackendURL returns the engine base URL.
func (b *Bridge) BackendURL(ctx context.Context) (string, error) {
	e, err := b.broker.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve engine address: %w", err)
	}
	return e.URL(), nil
}

// AppVersion returns the host application version.
func (b *Bridge) AppVersion() string { return b.version }

// Platform returns the host operating system (GOOS).
func (b *Bridge) Platform() string { return b.platform }

// Channels lists the channel names Invoke accepts.
func (b *Bridge) Channels() []string {
	channels := []string{ChannelBackendURL, ChannelAppVersion, ChannelPlatform}
	sort.Strings(channels)
	return channels
}

// Invoke dispatches a request by channel name.
func (b *Bridge) Invoke(ctx context.Context, channel string) (string, error) {
	switch channel {
	case ChannelBackendURL:
		return b.BackendURL(ctx)
	case ChannelAppVersion:
		return b.AppVersion(), nil
	case ChannelPlatform:
		return b.Platform(), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
}
