package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// prober performs one HTTP GET against the backend's health endpoint.
// Only a 2xx answer counts as ready.
type prober struct {
	url    string
	client *http.Client
}

func newProber(url string, timeout time.Duration) *prober {
	return &prober{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			// A redirect from the health endpoint is not readiness.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// probe returns true when the endpoint answered 2xx, otherwise a short
// description of why it did not.
func (p *prober) probe(ctx context.Context) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, ""
	}
	return false, fmt.Sprintf("HTTP %d", resp.StatusCode)
}
