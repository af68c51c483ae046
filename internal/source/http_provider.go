package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tangram-go/tangramcore/internal/model"
)

// HTTPProvider implements external.DataProvider against a remote tile
// server named by a `{z}`/`{x}`/`{y}` URL template, fitted with a
// token-bucket limiter so a misconfigured batch job cannot hammer a
// public tile service.
type HTTPProvider struct {
	Template string
	Client   *http.Client
	Limiter  *rate.Limiter
}

// NewHTTPProvider builds a provider for template (containing "{z}",
// "{x}", "{y}"), rate-limited to at most requestsPerSecond requests/sec
// with a burst of int(requestsPerSecond)+1.
func NewHTTPProvider(template string, requestsPerSecond float64) *HTTPProvider {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 4
	}
	return &HTTPProvider{
		Template: template,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1),
	}
}

func (p *HTTPProvider) url(tile model.TileID) string {
	url := p.Template
	url = strings.ReplaceAll(url, "{z}", strconv.FormatUint(uint64(tile.Z), 10))
	url = strings.ReplaceAll(url, "{x}", strconv.FormatUint(uint64(tile.X), 10))
	url = strings.ReplaceAll(url, "{y}", strconv.FormatUint(uint64(tile.Y), 10))
	return url
}

// Fetch retries is left at zero by default ("retry
// policy is not coupled to the decoder... typically zero by default");
// a single attempt either returns bytes or a network error.
func (p *HTTPProvider) Fetch(ctx context.Context, tile model.TileID) ([]byte, error) {
	if err := p.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(tile), nil)
	if err != nil {
		return nil, fmt.Errorf("source: building request for %s: %w", tile, err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source: fetching %s: %w", tile, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source: fetching %s: unexpected status %s", tile, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("source: reading body for %s: %w", tile, err)
	}
	return data, nil
}
