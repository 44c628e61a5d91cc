package emailfn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"member-portal/internal/domain"
	"member-portal/internal/infra/metrics"
)

// ErrRejected возвращается, если функция отклонила письмо (4xx). Повтор бессмысленен.
var ErrRejected = errors.New("письмо отклонено функцией отправки")

type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithAPIKey задаёт ключ, передаваемый в заголовке Authorization.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// New создаёт клиента функции отправки писем.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Send отправляет письмо через POST {base}/send-email.
func (c *Client) Send(ctx context.Context, email domain.Email) error {
	if strings.TrimSpace(email.To) == "" {
		return fmt.Errorf("%w: пустой адрес получателя", ErrRejected)
	}
	payload := sendRequest{To: email.To, Subject: email.Subject, HTML: email.HTML, ReplyTo: email.ReplyTo}
	req, err := c.newRequest(ctx, http.MethodPost, "/send-email", payload)
	if err != nil {
		return err
	}
	start := time.Now()
	err = c.do(req)
	metrics.ObserveNetworkRequest("http", "send_email", "email_function", start, err)
	if err != nil {
		metrics.EmailSendErrors.Inc()
	}
	return err
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	resolved := *c.baseURL
	basePath := strings.TrimSuffix(c.baseURL.Path, "/")
	resolved.Path = path.Clean(basePath + endpoint)
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email function request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr apiError
		data, readErr := io.ReadAll(resp.Body)
		if readErr == nil && len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return mapAPIError(resp.StatusCode, apiErr)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func mapAPIError(status int, err apiError) error {
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return fmt.Errorf("%w: status=%d message=%s", ErrRejected, status, err.Error)
	}
	if err.Code != "" {
		return fmt.Errorf("email function error [%s]: %s", err.Code, err.Error)
	}
	return fmt.Errorf("email function error: status=%d message=%s", status, err.Error)
}

var _ domain.EmailSender = (*Client)(nil)
