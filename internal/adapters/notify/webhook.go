package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/longregen/counsel/internal/adapters/retry"
)

// webhook posts JSON to one endpoint with a bearer secret, retrying
// transient failures.
type webhook struct {
	url        string
	secret     string
	httpClient *http.Client
	policy     retry.Policy
}

func newWebhook(url, secret string) webhook {
	return webhook{
		url:        url,
		secret:     secret,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		policy:     retry.DefaultPolicy(),
	}
}

func (w *webhook) post(ctx context.Context, name string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	return retry.Do(ctx, w.policy, name, func(int) (retry.Result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return retry.Result{}, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if w.secret != "" {
			req.Header.Set("Authorization", "Bearer "+w.secret)
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return retry.Result{}, fmt.Errorf("failed to send request: %w", err)
		}
		resp.Body.Close()

		result := retry.Result{Status: resp.StatusCode, RetryAfter: retry.ParseRetryAfter(resp.Header)}
		if resp.StatusCode >= 300 {
			return result, fmt.Errorf("%s returned %s", name, resp.Status)
		}
		return result, nil
	})
}
