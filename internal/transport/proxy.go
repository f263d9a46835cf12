package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/klauspost/compress/gzhttp"
	"github.com/oklog/ulid/v2"

	"github.com/Vasu1712/scenesync/internal/models"
)

// DefaultCallTimeout bounds a single remote call.
const DefaultCallTimeout = 5 * time.Second

// Proxy is a handle on one remote service object.
type Proxy struct {
	address string
	client  *http.Client
	token   string
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithTimeout bounds every call made through the proxy.
func WithTimeout(d time.Duration) ProxyOption {
	return func(p *Proxy) { p.client.Timeout = d }
}

// WithToken sends token as a bearer credential on every call.
func WithToken(token string) ProxyOption {
	return func(p *Proxy) { p.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ProxyOption {
	return func(p *Proxy) { p.client = c }
}

// Dial returns a proxy for the object at address. No request is made.
func Dial(address string, opts ...ProxyOption) (*Proxy, error) {
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: bad address %q", models.ErrConnectionFailed, address)
	}
	p := &Proxy{
		address: strings.TrimRight(address, "/"),
		client: &http.Client{
			Transport: gzhttp.Transport(http.DefaultTransport),
			Timeout:   DefaultCallTimeout,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Address returns the object's address.
func (p *Proxy) Address() string { return p.address }

// Call invokes method with args and decodes the result into out. A null
// result leaves out untouched. Remote errors come back as the matching
// sentinel errors; transport failures wrap ErrConnectionFailed.
func (p *Proxy) Call(ctx context.Context, method string, args any, out any) error {
	if args == nil {
		args = struct{}{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s arguments: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.address+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	reqID := ulid.Make().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, reqID)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrConnectionFailed, method, err)
	}
	defer resp.Body.Close()
	glog.V(2).Infof("[rpc] %s %s <- %d in %s", reqID, method, resp.StatusCode, time.Since(start))

	var cr callResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%w: %s: http %d", models.ErrConnectionFailed, method, resp.StatusCode)
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if cr.Error != nil {
		if cr.Error.Kind == "unknown_method" {
			return fmt.Errorf("%w: %s", ErrUnknownMethod, cr.Error.Message)
		}
		return models.ErrorFromKind(cr.Error.Kind, cr.Error.Message)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: http %d", models.ErrConnectionFailed, method, resp.StatusCode)
	}
	if out == nil || len(cr.Result) == 0 || string(cr.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(cr.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Close releases idle connections held by the proxy.
func (p *Proxy) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
