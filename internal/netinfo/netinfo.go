package netinfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint = "http://checkip.amazonaws.com/"
	DefaultTimeout  = 10 * time.Second

	maxBody = 256
)

// ErrNoAddress is returned when no usable local address exists.
var ErrNoAddress = errors.New("no non-loopback IPv4 address")

type Client struct {
	Endpoint string
	HTTP     *http.Client
}

func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{Endpoint: endpoint, HTTP: &http.Client{Timeout: DefaultTimeout}}
}

// PublicIP asks the echo endpoint for our address.
func (c *Client) PublicIP(ctx context.Context) (net.IP, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("public ip lookup %s: %s", c.Endpoint, resp.Status)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(strings.TrimSpace(string(b)))
	if ip == nil {
		return nil, fmt.Errorf("public ip lookup %s: unexpected body %q", c.Endpoint, b)
	}
	return ip, nil
}

// LocalIP returns the first non-loopback IPv4 address of this host.
func LocalIP() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	return firstIPv4(addrs)
}

func firstIPv4(addrs []net.Addr) (net.IP, error) {
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() {
			continue
		}
		if v4 := ipn.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, ErrNoAddress
}

// IsLocalhost reports whether ip is a loopback address.
func IsLocalhost(ip net.IP) bool {
	return ip != nil && ip.IsLoopback()
}

// Describe formats ip for display, flagging loopback addresses.
func Describe(ip net.IP) string {
	if IsLocalhost(ip) {
		return "running on localhost"
	}
	return ip.String()
}
