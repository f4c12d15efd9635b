// Package gateway wraps the REST API of the WhatsApp message gateway the
// platform sends and transcribes through.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
)

const (
	defaultBaseURL   = "https://gateway.agendia.app/v1"
	defaultUserAgent = "agendia-messaging/0.1"
)

// Config controls how the gateway client behaves.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client wraps the gateway endpoints used by the platform.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gateway: API key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// SendTextRequest is an outbound text message.
type SendTextRequest struct {
	CompanyID uuid.UUID `json:"company_id"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
}

func (r SendTextRequest) validate() error {
	if r.CompanyID == uuid.Nil {
		return errors.New("gateway: company id required")
	}
	if strings.TrimSpace(r.To) == "" {
		return errors.New("gateway: recipient required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("gateway: text required")
	}
	return nil
}

// MessageResponse is the gateway acknowledgment of an accepted message.
type MessageResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SendText posts an outbound text message and returns the gateway ack.
func (c *Client) SendText(ctx context.Context, req SendTextRequest) (*MessageResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal send body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/messages", body)
	if err != nil {
		return nil, err
	}
	return decodeDataWrapper[MessageResponse](data)
}

// TranscriptionResponse carries the text of a transcribed audio message.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe converts an inbound audio payload to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("gateway: audio payload required")
	}
	body, err := json.Marshal(map[string]string{
		"audio": base64.StdEncoding.EncodeToString(audio),
	})
	if err != nil {
		return "", fmt.Errorf("gateway: marshal transcription body: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/transcriptions", body)
	if err != nil {
		return "", err
	}
	resp, err := decodeDataWrapper[TranscriptionResponse](data)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway: request failed with status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) invoke(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	fullURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("gateway: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !shouldRetry(0, err) || attempt == c.maxRetries {
				return nil, fmt.Errorf("gateway: http error: %w", err)
			}
			lastErr = err
			c.logRetry(path, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("gateway: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return data, nil
		}
		apiErr := decodeAPIError(resp.StatusCode, data)
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode, nil) {
			lastErr = apiErr
			c.logRetry(path, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("gateway: request failed without response")
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(path string, attempt, status int, err error) {
	c.logger.Warn("gateway request retrying",
		"path", path, "attempt", attempt+1, "status", status, "error", err)
}

func shouldRetry(statusCode int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return errors.Is(err, io.EOF)
	}
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func decodeAPIError(statusCode int, data []byte) *APIError {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(data, &payload)
	return &APIError{StatusCode: statusCode, Message: payload.Error.Message}
}

func decodeDataWrapper[T any](data []byte) (*T, error) {
	var wrapper struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("gateway: decode response: %w", err)
	}
	return &wrapper.Data, nil
}
