// Package netx holds the HTTP client policy used for remote metadata and
// content requests.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/models"
)

// DefaultTimeout bounds every request when the caller gives none.
const DefaultTimeout = 30 * time.Second

// NewClient returns a client that never follows redirects: a 3xx response
// is returned as-is and treated as a failure by Do.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Do sends method to url with optional basic auth. Non-2xx responses are
// closed and reported as common.ErrUnexpectedStatus; timeouts as
// common.ErrTimeout. On success the caller owns resp.Body.
func Do(ctx context.Context, client *http.Client, method, url string, login *models.Login) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidURL, err)
	}
	if !login.Empty() {
		req.SetBasicAuth(login.Username, login.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		if common.IsTimeout(err) {
			return nil, fmt.Errorf("%s %s: %w", method, common.RedactURL(url), common.ErrTimeout)
		}
		return nil, fmt.Errorf("%s %s: %w", method, common.RedactURL(url), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w: %s", method, common.RedactURL(url), common.ErrUnexpectedStatus, resp.Status)
	}
	return resp, nil
}
