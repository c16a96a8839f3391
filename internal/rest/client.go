package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tildaslashalef/edusync/internal/loggy"
)

// Config configures a Client
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	// RetryDelay is the first backoff interval between GET attempts
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// Client handles HTTP communication with the platform API
type Client struct {
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	// uploads are streamed, so they run without the overall request timeout
	uploadClient *http.Client
	logger       *loggy.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a new HTTP client for the platform API
func NewClient(cfg Config, logger *loggy.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = loggy.GetGlobalLogger()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		}
		httpClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		}
	}
	uploadClient := &http.Client{Transport: httpClient.Transport}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		httpClient:   httpClient,
		uploadClient: uploadClient,
		logger:       logger.With("comp", "rest"),
		token:        cfg.Token,
	}
}

// SetToken updates the authentication token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// WithBaseURL returns a client for another base URL sharing this client's
// transport and token
func (c *Client) WithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		maxRetries:   c.maxRetries,
		retryDelay:   c.retryDelay,
		httpClient:   c.httpClient,
		uploadClient: c.uploadClient,
		logger:       c.logger,
		token:        c.GetToken(),
	}
}

// GetToken returns the current token
func (c *Client) GetToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// APIError represents an error response from the API
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	ErrorCode  string `json:"error"`
}

func (e APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d: %s - %s", e.StatusCode, e.ErrorCode, e.Message)
}

// Temporary reports whether retrying the request may succeed
func (e APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ListConversations fetches the user's conversations with their unread counts
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	return getList[Conversation](ctx, c, "/api/chat/conversations")
}

// ListNotifications fetches the user's notifications
func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	return getList[Notification](ctx, c, "/api/notifications")
}

// MarkAllNotificationsRead marks every notification as read on the server
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.sendRequest(ctx, http.MethodPatch, "/api/notifications/read-all", nil, nil)
}

// VerifyToken verifies if the current token is valid
func (c *Client) VerifyToken(ctx context.Context) (bool, error) {
	err := c.get(ctx, "/api/auth/verify", nil)
	if err == nil {
		return true, nil
	}

	var apiErr APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return false, nil
	}
	return false, err
}

// UploadFile streams body to the server as a multipart form. body is read
// exactly once, so the request is never retried.
func (c *Client) UploadFile(ctx context.Context, meta UploadMeta, body io.Reader, size int64) (*UploadResult, error) {
	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(form, meta, body))
	}()

	// a stalled body must not keep the transport waiting after ctx ends
	stop := context.AfterFunc(ctx, func() { pr.CloseWithError(ctx.Err()) })
	defer stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/uploads", pr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", form.FormDataContentType())

	c.logger.Debug("Uploading file", "file", meta.FileName, "size", size)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &result, nil
}

func writeUploadForm(form *multipart.Writer, meta UploadMeta, body io.Reader) error {
	if meta.Title != "" {
		if err := form.WriteField("title", meta.Title); err != nil {
			return fmt.Errorf("writing title field: %w", err)
		}
	}

	part, err := form.CreateFormFile("file", meta.FileName)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return fmt.Errorf("streaming file: %w", err)
	}
	return form.Close()
}

// get performs an idempotent GET, retrying transport failures and 5xx
// responses with exponential backoff. 4xx responses are returned at once.
func (c *Client) get(ctx context.Context, path string, out any) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.maxRetries)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := c.sendRequest(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}

		var apiErr APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}

		c.logger.Debug("GET failed, will retry", "path", path, "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(operation, policy)
}

// sendRequest is a helper function to send JSON requests to the API
func (c *Client) sendRequest(ctx context.Context, method, path string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if token := c.GetToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	if id := loggy.GetRequestID(req.Context()); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
}

// checkResponse turns a non-2xx response into an APIError
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}

// getList fetches a listing that is either a bare JSON array or wrapped as {"data": [...]}
func getList[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var raw json.RawMessage
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env listEnvelope[T]
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return env.Data, nil
	}

	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return items, nil
}
