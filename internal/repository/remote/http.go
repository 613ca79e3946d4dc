// Package remote implements the authoritative tier of the content store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/debemdeboas/docsave/internal/repository"
)

// SaveContentPath is the save/load endpoint relative to the base URL.
const SaveContentPath = "/api/save-content"

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 32 << 20
)

// HTTPClient talks to the save-content endpoint. It makes exactly one
// request per call; the limiter only spaces requests out.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

type HTTPOption func(*HTTPClient)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.client = c
	}
}

func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// WithRateLimit bounds outgoing requests to r per second with the given burst.
func WithRateLimit(r float64, burst int) HTTPOption {
	return func(h *HTTPClient) {
		if r > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(r), max(burst, 1))
		}
	}
}

func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type saveRequest struct {
	Content string `json:"content"`
	ID      string `json:"id"`
}

type saveResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

type loadResponse struct {
	Success bool    `json:"success"`
	Content *string `json:"content"`
	Error   string  `json:"error,omitempty"`
}

func (h *HTTPClient) Save(ctx context.Context, id repository.ContentID, content string) (repository.SaveResult, error) {
	if content == "" {
		return repository.SaveResult{}, repository.ErrContentRequired()
	}
	id = id.OrDefault()

	body, err := json.Marshal(saveRequest{Content: content, ID: string(id)})
	if err != nil {
		return repository.SaveResult{}, repository.NewRemoteUnavailable("save", "Failed to save: "+err.Error(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+SaveContentPath, bytes.NewReader(body))
	if err != nil {
		return repository.SaveResult{}, repository.NewRemoteUnavailable("save", "Failed to save: "+err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out saveResponse
	if err := h.do(req, "save", &out); err != nil {
		return repository.SaveResult{}, err
	}
	if !out.Success {
		return repository.SaveResult{}, repository.NewRemoteUnavailable("save", "Failed to save: "+nonEmpty(out.Error, "unconfirmed"), nil)
	}

	result := repository.SaveResult{ID: repository.ContentID(nonEmpty(out.ID, string(id)))}
	if ts, err := time.Parse(time.RFC3339Nano, out.Timestamp); err == nil {
		result.Timestamp = ts
	} else {
		result.Timestamp = h.now()
	}
	return result, nil
}

func (h *HTTPClient) Load(ctx context.Context, id repository.ContentID) (string, bool, error) {
	q := url.Values{}
	q.Set("id", string(id.OrDefault()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+SaveContentPath+"?"+q.Encode(), nil)
	if err != nil {
		return "", false, repository.NewRemoteUnavailable("load", "Failed to load: "+err.Error(), err)
	}

	var out loadResponse
	if err := h.do(req, "load", &out); err != nil {
		return "", false, err
	}
	if !out.Success {
		return "", false, repository.NewRemoteUnavailable("load", "Failed to load: "+nonEmpty(out.Error, "unconfirmed"), nil)
	}
	if out.Content == nil {
		return "", false, nil
	}
	return *out.Content, true, nil
}

// do sends req and decodes a 2xx JSON body into out. Every failure is a
// RemoteUnavailableError whose reason reads "Failed to <op>: <why>".
func (h *HTTPClient) do(req *http.Request, op string, out any) error {
	prefix := "Failed to " + op + ": "

	if err := h.limiter.Wait(req.Context()); err != nil {
		return repository.NewRemoteUnavailable(op, prefix+err.Error(), err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return repository.NewRemoteUnavailable(op, prefix+err.Error(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return repository.NewRemoteUnavailable(op, prefix+err.Error(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		repository.Logger().Debug().
			Int("status", resp.StatusCode).
			Str("op", op).
			Bytes("body", data).
			Msg("Remote store returned an error status")
		return repository.NewRemoteUnavailable(op, prefix+http.StatusText(resp.StatusCode),
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return repository.NewRemoteUnavailable(op, prefix+"invalid response", err)
	}
	return nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
