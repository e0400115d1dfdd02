package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBytes bounds the lookup response body.
const maxResponseBytes = 64 << 10

// IPInfoClient looks up origins through the ipinfo.io JSON API. It never
// retries.
type IPInfoClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// ClientOption configures an IPInfoClient
type ClientOption func(*IPInfoClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *IPInfoClient) {
		client.httpClient = c
	}
}

// NewIPInfoClient creates a client for the given API base URL and token
func NewIPInfoClient(baseURL, token string, opts ...ClientOption) *IPInfoClient {
	c := &IPInfoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ipinfoResponse struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Org      string `json:"org"`
	Postal   string `json:"postal"`
	Timezone string `json:"timezone"`
	Bogon    bool   `json:"bogon"`
}

// Lookup implements Lookuper
func (c *IPInfoClient) Lookup(ctx context.Context, ip string) (*Origin, error) {
	endpoint := fmt.Sprintf("%s/%s/json?token=%s", c.baseURL, url.PathEscape(ip), url.QueryEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error carries the request URL and with it the token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("origin lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read lookup response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("origin lookup returned status %d", resp.StatusCode)
	}

	var out ipinfoResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}
	if out.Bogon {
		return nil, fmt.Errorf("origin lookup: %s is not a routable address", ip)
	}

	origin := &Origin{
		IP:       ip,
		Hostname: out.Hostname,
		Org:      out.Org,
		City:     out.City,
		Region:   out.Region,
		Country:  out.Country,
		Postal:   out.Postal,
		Timezone: out.Timezone,
		Resolved: true,
	}
	if out.IP != "" {
		origin.IP = out.IP
	}
	return origin, nil
}
