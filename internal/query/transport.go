package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"rental_dashboard/internal/httpcache"
	"rental_dashboard/internal/retry"
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	maxResponseBytes   = 8 << 20
)

// Response is one API reply.
type Response struct {
	Status      int
	Body        json.RawMessage
	CacheStatus string
}

// Transport reaches the dashboard API.
type Transport interface {
	Fetch(ctx context.Context, key string) (Response, error)
	Send(ctx context.Context, method string, path string, body any) (Response, error)
}

// StatusError is a non-success API reply.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.Status)
	}
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

// HTTPFetcher calls the API over HTTP with a bearer token. Reads are retried
// per Retry. Writes are sent exactly once: a retried write whose first attempt
// was applied would report the wrong outcome.
type HTTPFetcher struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Retry   retry.Policy
}

func NewHTTPFetcher(baseURL string, token string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPFetcher{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, Client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, key string) (Response, error) {
	resp, err := f.doWithRetry(ctx, f.Retry, http.MethodGet, key, nil)
	if err != nil {
		return Response{}, err
	}
	if resp.Status != http.StatusOK {
		return Response{}, statusError(resp)
	}
	return resp, nil
}

func (f *HTTPFetcher) Send(ctx context.Context, method string, path string, body any) (Response, error) {
	resp, err := f.do(ctx, method, path, body)
	if err != nil {
		return Response{}, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return Response{}, statusError(resp)
	}
	return resp, nil
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, policy retry.Policy, method string, path string, body any) (Response, error) {
	var resp Response
	_, err := retry.Do(ctx, policy, func(ctx context.Context) (int, error) {
		var err error
		resp, err = f.do(ctx, method, path, body)
		return resp.Status, err
	})
	return resp, err
}

func (f *HTTPFetcher) do(ctx context.Context, method string, path string, body any) (Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, f.BaseURL+path, reader)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	res, err := f.Client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, path, &retry.ReadError{Err: err})
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = nil
	}
	return Response{Status: res.StatusCode, Body: data, CacheStatus: res.Header.Get(httpcache.HeaderCache)}, nil
}

func statusError(resp Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(resp.Body, &body)
	return &StatusError{Status: resp.Status, Message: body.Error}
}
