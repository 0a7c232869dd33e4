package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/bioshop-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.paystack.co"
	defaultTimeout              = 15 * time.Second
	responseBodyReadLimit int64 = 64 * 1024

	OperationInitializeTransaction = "transaction_initialize"

	defaultInitializeFailure = "Failed to initialize transaction"
)

// ErrSecretKeyMissing is returned when the client is used without a secret key.
var ErrSecretKeyMissing = errors.New("paystack secret key is not configured")

// RequestObserver records provider call latency.
type RequestObserver interface {
	ObservePaystackRequest(operation string, elapsed time.Duration, err error)
}

// Client wraps the Paystack REST endpoints used by the paywall.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	observer   RequestObserver
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the Paystack API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithObserver(observer RequestObserver) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds the client. An empty secret key is accepted so the process
// can boot; every call then fails with a configuration error.
func NewClient(secretKey string, opts ...Option) *Client {
	client := &Client{
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Configured reports whether a secret key is present.
func (c *Client) Configured() bool {
	return c != nil && c.secretKey != ""
}

// InitializeTransactionRequest is the body of POST /transaction/initialize.
type InitializeTransactionRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Plan        string            `json:"plan,omitempty"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InitializeTransactionResult is the hosted-checkout handle returned by Paystack.
type InitializeTransactionResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
	CustomerCode     string `json:"customer_code,omitempty"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction starts a hosted checkout for the configured plan.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeTransactionRequest) (result *InitializeTransactionResult, err error) {
	if !c.Configured() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, ErrSecretKeyMissing, "PAYSTACK_SECRET_KEY not configured")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "transaction amount must be positive")
	}

	started := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObservePaystackRequest(OperationInitializeTransaction, time.Since(started), err)
		}
	}()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal initialize request")
	}

	envelope, err := c.post(ctx, "transaction/initialize", payload)
	if err != nil {
		return nil, err
	}
	if !envelope.Status {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, providerMessage(envelope.Message))
	}

	var data InitializeTransactionResult
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, defaultInitializeFailure)
	}
	if data.AuthorizationURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, providerMessage(envelope.Message))
	}
	return &data, nil
}

func (c *Client) post(ctx context.Context, path string, payload []byte) (*apiEnvelope, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paystack request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, defaultInitializeFailure)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "read paystack response")
	}

	var envelope apiEnvelope
	decodeErr := json.Unmarshal(body, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, cause, providerMessage(envelope.Message))
	}
	if decodeErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, decodeErr, "decode paystack response")
	}
	return &envelope, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

func providerMessage(msg string) string {
	if trimmed := strings.TrimSpace(msg); trimmed != "" {
		return trimmed
	}
	return defaultInitializeFailure
}
