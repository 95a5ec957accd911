// Package completion sends transcripts to an OpenAI-compatible chat
// completion endpoint and classifies its failures.
package completion

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"github.com/zulandar/momotalk/internal/models"
)

// Completer produces one reply for an ordered list of turns.
type Completer interface {
	Complete(ctx context.Context, turns []models.Turn, model string) (models.Turn, error)
}

// ClientOpts configures a Client.
type ClientOpts struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // per call; zero means no limit beyond ctx

	// Transport is the underlying round tripper. Defaults to
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// Client calls the chat completion API. Each Complete builds its own
// go-openai client so the raw response can be captured per call.
type Client struct {
	baseURL   string
	apiKey    string
	timeout   time.Duration
	transport http.RoundTripper
}

// NewClient creates a Client from opts.
func NewClient(opts ClientOpts) *Client {
	tr := opts.Transport
	if tr == nil {
		tr = http.DefaultTransport
	}
	return &Client{
		baseURL:   opts.BaseURL,
		apiKey:    opts.APIKey,
		timeout:   opts.Timeout,
		transport: tr,
	}
}

// Complete sends turns to the endpoint with stream disabled and returns the
// first choice. Failures are returned as *AuthError, *TransportError,
// *StatusError, or *ResponseError. Nothing is retried.
func (c *Client) Complete(ctx context.Context, turns []models.Turn, model string) (models.Turn, error) {
	if c.apiKey == "" {
		return models.Turn{}, &AuthError{}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	rec := &recorder{next: c.transport}
	client := c.makeClient(rec)

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAI(turns),
		Stream:   false,
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, req)
	status, body, gotResponse := rec.result()
	log.Debug().
		Str("model", model).
		Int("turns", len(turns)).
		Int("status", status).
		Dur("elapsed", time.Since(start)).
		Msg("completion request finished")

	if err != nil {
		return models.Turn{}, classify(err, status, body, gotResponse)
	}
	if len(resp.Choices) == 0 {
		return models.Turn{}, &ResponseError{Body: body, Err: ErrNoChoices}
	}

	msg := resp.Choices[0].Message
	role := models.Role(msg.Role)
	if role == "" {
		role = models.RoleAssistant
	}
	return models.Turn{Role: role, Content: msg.Content}, nil
}

func (c *Client) makeClient(rt http.RoundTripper) *openai.Client {
	config := openai.DefaultConfig(c.apiKey)
	if c.baseURL != "" {
		config.BaseURL = c.baseURL
	}
	config.HTTPClient = &http.Client{Transport: rt}
	return openai.NewClientWithConfig(config)
}

func classify(err error, status int, body string, gotResponse bool) error {
	switch {
	case !gotResponse:
		return &TransportError{Err: err}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{StatusCode: status, Body: body}
	case status < 200 || status > 299:
		return &StatusError{StatusCode: status, Body: body}
	default:
		return &ResponseError{Body: body, Err: err}
	}
}

func toOpenAI(turns []models.Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		out[i] = openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content}
	}
	return out
}

// recorder is an http.RoundTripper that keeps a copy of the response status
// and body so errors can carry the raw reply.
type recorder struct {
	next http.RoundTripper

	mu     sync.Mutex
	status int
	body   []byte
	got    bool
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	data, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	r.mu.Lock()
	r.status = resp.StatusCode
	r.body = data
	r.got = true
	r.mu.Unlock()
	return resp, nil
}

func (r *recorder) result() (status int, body string, got bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, string(r.body), r.got
}
