package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	v1 "github.com/f9-o/warden/api/v1"
)

// userAgent identifies probe traffic in endpoint access logs.
const userAgent = "warden-probe/1"

// maxRedirects bounds redirect chains followed by http probes.
const maxRedirects = 5

// maxDrain is how much of a probe response body is read before closing.
const maxDrain = 64 << 10

func newProbeClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 2
	transport.IdleConnTimeout = 90 * time.Second
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
}

// checkHTTP GETs the endpoint's health URL. With no expected code any 2xx
// passes.
func (p *Probe) checkHTTP(ctx context.Context, ep v1.ServiceEndpoint) error {
	url := JoinURL(ep.Address, ep.HealthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	switch {
	case ep.ExpectedCode != 0 && resp.StatusCode != ep.ExpectedCode:
		return fmt.Errorf("GET %s: status %d, want %d", url, resp.StatusCode, ep.ExpectedCode)
	case ep.ExpectedCode == 0 && (resp.StatusCode < 200 || resp.StatusCode > 299):
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// JoinURL appends a health path to a base address, tolerating duplicate or
// missing slashes.
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
