package attachments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/longregen/counsel/internal/adapters/circuitbreaker"
	"github.com/longregen/counsel/internal/adapters/metrics"
	"github.com/longregen/counsel/internal/adapters/retry"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

const (
	// LookupTimeout bounds a single attachment lookup including retries
	LookupTimeout = 10 * time.Second
)

// Client looks attachments up in the upload service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
	breaker    *circuitbreaker.CircuitBreaker
}

var _ ports.AttachmentService = (*Client)(nil)

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		policy:     retry.DefaultPolicy(),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:        "attachments",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			OnStateChange: func(name string, _, to circuitbreaker.State) {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		}),
	}
}

type attachmentResponse struct {
	URI         string `json:"uri"`
	MimeType    string `json:"mime_type"`
	DisplayName string `json:"display_name"`
}

// GetByMessageID returns the files linked to a message. A message without
// attachments yields an empty slice.
func (c *Client) GetByMessageID(ctx context.Context, messageID string) ([]models.Attachment, error) {
	ctx, cancel := context.WithTimeout(ctx, LookupTimeout)
	defer cancel()

	endpoint := c.baseURL + "/v1/messages/" + url.PathEscape(messageID) + "/attachments"

	var body []byte
	err := c.breaker.Execute(func() error {
		return retry.Do(ctx, c.policy, "attachment lookup", func(int) (retry.Result, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return retry.Result{}, fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "application/json")
			if c.apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+c.apiKey)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return retry.Result{}, fmt.Errorf("failed to send request: %w", err)
			}
			defer resp.Body.Close()

			result := retry.Result{Status: resp.StatusCode, RetryAfter: retry.ParseRetryAfter(resp.Header)}
			if resp.StatusCode == http.StatusNotFound {
				body = nil
				return retry.Result{}, nil
			}
			if resp.StatusCode != http.StatusOK {
				return result, fmt.Errorf("upload service returned %s", resp.Status)
			}

			body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return result, fmt.Errorf("failed to read body: %w", err)
			}
			return result, nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("attachments for %s: %w", messageID, err)
	}
	if len(body) == 0 {
		return []models.Attachment{}, nil
	}

	var decoded []attachmentResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode attachments: %w", err)
	}

	out := make([]models.Attachment, 0, len(decoded))
	for _, a := range decoded {
		if a.URI == "" {
			continue
		}
		out = append(out, models.Attachment{URI: a.URI, MimeType: a.MimeType, DisplayName: a.DisplayName})
	}
	return out, nil
}

// Disabled serves deployments without an upload service.
type Disabled struct{}

func (Disabled) GetByMessageID(context.Context, string) ([]models.Attachment, error) {
	return []models.Attachment{}, nil
}
