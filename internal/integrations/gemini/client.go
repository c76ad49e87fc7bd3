package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"coach-agent/internal/domain"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com"
	defaultModel      = "gemini-2.0-flash"
	defaultAPIVersion = "v1beta"

	// kickoffInstruction follows the system prompt when the AI opens a dialogue.
	kickoffInstruction = "위 정보를 바탕으로 대화를 시작하는 첫 메시지를 작성해주세요."
)

// TokenSource resolves the API key. *paramstore.Client satisfies it.
type TokenSource interface {
	Token(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures an error envelope returned by the API.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d (%s): %s", e.StatusCode, e.Status, e.Message)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Overloaded reports whether the upstream signalled transient capacity
// exhaustion.
func (e *HTTPStatusError) Overloaded() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.Status == "UNAVAILABLE"
}

// Unwrap lets errors.Is(err, domain.ErrUpstreamOverloaded) match overload
// responses.
func (e *HTTPStatusError) Unwrap() error {
	if e.Overloaded() {
		return domain.ErrUpstreamOverloaded
	}
	return nil
}

// UnavailableError is returned when every attempt failed with an overload.
// It matches domain.ErrServiceUnavailable and unwraps to the last cause.
type UnavailableError struct {
	Attempts int
	Last     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("gemini: service unavailable after %d attempts: %v", e.Attempts, e.Last)
}

func (e *UnavailableError) Is(target error) bool {
	return target == domain.ErrServiceUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Last
}

// Client drives Gemini generateContent through the genai SDK and adds
// overload retry on top.
type Client struct {
	baseURL     string
	model       string
	httpClient  *http.Client
	tokens      TokenSource
	paramPrefix string
	retry       RetryPolicy
	logger      *slog.Logger

	// wait blocks between attempts; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	sdk    *genai.Client
	sdkKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		c.model = strings.TrimSpace(model)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client that reads its API key from
// {paramPrefix}/gemini-api-key through ts.
func NewClient(ts TokenSource, paramPrefix string, opts ...Option) (*Client, error) {
	if ts == nil {
		return nil, errors.New("gemini: token source must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		tokens:      ts,
		paramPrefix: paramPrefix,
		retry:       DefaultRetryPolicy(),
		logger:      slog.Default(),
		wait:        sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	c.retry = c.retry.normalized()
	c.logger = c.logger.With("provider", "gemini", "model", c.model)
	return c, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/gemini-api-key"
}

// models returns an SDK client for the current key. The SDK client is
// rebuilt only when the stored key changes.
func (c *Client) models(ctx context.Context) (*genai.Client, error) {
	apiKey, err := c.tokens.Token(ctx, c.tokenParameterName())
	if err != nil {
		return nil, fmt.Errorf("gemini: resolve api key: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sdk != nil && c.sdkKey == apiKey {
		return c.sdk, nil
	}
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    strings.TrimRight(c.baseURL, "/") + "/",
			APIVersion: defaultAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create sdk client: %w", err)
	}
	c.sdk, c.sdkKey = sdk, apiKey
	return sdk, nil
}

// InitialMessage asks the model to open a dialogue described by prompt.
func (c *Client) InitialMessage(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, []*genai.Content{
		textContent(domain.RoleUser, prompt),
		textContent(domain.RoleUser, kickoffInstruction),
	})
}

// ContinueChat sends prompt, the prior turns (oldest first) and the new user
// message as one ordered conversation.
func (c *Client) ContinueChat(ctx context.Context, prompt string, history []domain.ChatMessage, userMessage string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+2)
	contents = append(contents, textContent(domain.RoleUser, prompt))
	for _, m := range history {
		role := domain.RoleUser
		if m.Role == domain.RoleModel {
			role = domain.RoleModel
		}
		contents = append(contents, textContent(role, m.Content))
	}
	contents = append(contents, textContent(domain.RoleUser, userMessage))
	return c.generate(ctx, contents)
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}

func (c *Client) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	sdk, err := c.models(ctx)
	if err != nil {
		return "", err
	}

	for attempt := 1; ; attempt++ {
		text, err := c.generateOnce(ctx, sdk, contents)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("gemini request succeeded after retry", "attempts", attempt)
			}
			return text, nil
		}
		if !errors.Is(err, domain.ErrUpstreamOverloaded) {
			c.logger.Debug("gemini request failed", "attempt", attempt, "err", err)
			return "", err
		}
		if attempt >= c.retry.MaxAttempts {
			c.logger.Warn("gemini overloaded, retries exhausted", "attempts", attempt)
			return "", &UnavailableError{Attempts: attempt, Last: err}
		}

		delay := c.retry.Backoff(attempt)
		c.logger.Warn("gemini overloaded, backing off",
			"attempt", attempt,
			"maxAttempts", c.retry.MaxAttempts,
			"delay", delay,
		)
		if werr := c.wait(ctx, delay); werr != nil {
			return "", fmt.Errorf("gemini: retry aborted after %d attempts: %w", attempt, werr)
		}
	}
}

func (c *Client) generateOnce(ctx context.Context, sdk *genai.Client, contents []*genai.Content) (string, error) {
	resp, err := sdk.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", classify(err)
	}
	return firstText(resp)
}

// classify maps SDK errors onto HTTPStatusError so overload can be matched
// with errors.Is. Context errors pass through unchanged.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPStatusError{StatusCode: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &HTTPStatusError{StatusCode: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("gemini: request failed: %w", err)
}

// firstText returns the first part of the first candidate.
func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("gemini: no candidates in response: %w", domain.ErrUpstreamMalformed)
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 || cand.Content.Parts[0] == nil ||
		strings.TrimSpace(cand.Content.Parts[0].Text) == "" {
		return "", fmt.Errorf("gemini: empty candidate (finishReason=%q): %w", cand.FinishReason, domain.ErrUpstreamMalformed)
	}
	return cand.Content.Parts[0].Text, nil
}
