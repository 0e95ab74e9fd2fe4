package skiff

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var UserAgent = fmt.Sprintf("Skiff/%s (https://github.com/skiff-works/skiff)", Version)

// NewProxyClient creates an HTTP client that redirects all requests through
// a specified host. This is useful when using a rest proxy such as twilight
// or nirn.
func NewProxyClient(client http.Client, host url.URL) *http.Client {
	if client.Transport == nil {
		client.Transport = http.DefaultTransport
	}

	client.Transport = &proxyTransport{
		host:      host,
		transport: client.Transport,
	}

	return &client
}

type proxyTransport struct {
	host      url.URL
	transport http.RoundTripper
}

func (t *proxyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	proxyReq := req.Clone(req.Context())

	// Keep the original path and query, swap the host.
	proxyReq.URL.Host = t.host.Host
	proxyReq.URL.Scheme = t.host.Scheme
	proxyReq.Host = t.host.Host

	if !strings.HasPrefix(proxyReq.URL.String(), "/api") {
		proxyReq.URL.Path = "/api/v10" + proxyReq.URL.Path
	}

	proxyReq.Header.Set("User-Agent", UserAgent)

	resp, err := t.transport.RoundTrip(proxyReq)
	if err != nil {
		return nil, fmt.Errorf("failed to round trip: %w", err)
	}

	return resp, nil
}
